package registry

// Builtin returns a registry pre-populated with the supported service
// catalog.
func Builtin() *Registry {
	r := New()
	for _, svc := range builtinCatalog {
		// Slugs in the builtin catalog are unique by construction.
		if err := r.Register(svc); err != nil {
			panic(err)
		}
	}
	return r
}

var builtinCatalog = []Service{
	{
		Slug:        "openai",
		DisplayName: "OpenAI / GPT",
		Category:    "AI & Content",
		Icon:        "cpu",
		Description: "AI-powered content generation and chatbot",
		SecretFields: []Field{
			{Name: "api_key", Label: "API Key", Kind: FieldPassword, Placeholder: "sk-...", Required: true, HelpText: "Your OpenAI API key"},
		},
	},
	{
		Slug:        "google_ads",
		DisplayName: "Google Ads",
		Category:    "Advertising",
		Icon:        "target",
		Description: "Google Ads campaign management",
		ConfigFields: []Field{
			{Name: "customer_id", Label: "Customer ID", Kind: FieldText, Placeholder: "123-456-7890", Required: true, HelpText: "Your Google Ads customer ID"},
		},
		SecretFields: []Field{
			{Name: "developer_token", Label: "Developer Token", Kind: FieldPassword, Required: true},
			{Name: "client_id", Label: "Client ID", Kind: FieldPassword, Required: true},
			{Name: "client_secret", Label: "Client Secret", Kind: FieldPassword, Required: true},
			{Name: "refresh_token", Label: "Refresh Token", Kind: FieldPassword, Required: true},
		},
	},
	{
		Slug:        "exoclick",
		DisplayName: "ExoClick",
		Category:    "Advertising",
		Icon:        "zap",
		Description: "ExoClick ad network integration",
		ConfigFields: []Field{
			{Name: "api_base", Label: "API Base URL", Kind: FieldURL, Placeholder: "https://api.exoclick.com", Required: true},
		},
		SecretFields: []Field{
			{Name: "api_token", Label: "API Token", Kind: FieldPassword, Required: true, HelpText: "Your ExoClick API token"},
		},
	},
	{
		Slug:        "clickadilla",
		DisplayName: "ClickAdilla",
		Category:    "Advertising",
		Icon:        "mouse-pointer",
		Description: "ClickAdilla ad network",
		SecretFields: []Field{
			{Name: "api_token", Label: "API Token", Kind: FieldPassword, Required: true},
		},
	},
	{
		Slug:        "tubecorporate",
		DisplayName: "TubeCorporate",
		Category:    "Advertising",
		Icon:        "video",
		Description: "TubeCorporate advertising platform",
		ConfigFields: []Field{
			{Name: "campaign_id", Label: "Campaign ID", Kind: FieldText},
			{Name: "promo", Label: "Promo Code", Kind: FieldText},
			{Name: "dc", Label: "DC", Kind: FieldText},
			{Name: "mc", Label: "MC", Kind: FieldText},
			{Name: "tc", Label: "TC", Kind: FieldText},
		},
	},
	{
		Slug:        "woocommerce",
		DisplayName: "WooCommerce",
		Category:    "E-commerce",
		Icon:        "shopping-cart",
		Description: "WooCommerce store integration",
		ConfigFields: []Field{
			{Name: "store_url", Label: "Store URL", Kind: FieldURL, Placeholder: "https://your-store.com", Required: true, HelpText: "Your WooCommerce store URL"},
		},
		SecretFields: []Field{
			{Name: "consumer_key", Label: "Consumer Key", Kind: FieldPassword, Required: true},
			{Name: "consumer_secret", Label: "Consumer Secret", Kind: FieldPassword, Required: true},
		},
	},
	{
		Slug:        "twitter",
		DisplayName: "Twitter / X",
		Category:    "Social Media",
		Icon:        "twitter",
		Description: "Twitter API integration",
		SecretFields: []Field{
			{Name: "api_key", Label: "API Key", Kind: FieldPassword, Required: true},
			{Name: "api_secret", Label: "API Secret", Kind: FieldPassword, Required: true},
			{Name: "bearer_token", Label: "Bearer Token", Kind: FieldPassword},
			{Name: "client_id", Label: "Client ID", Kind: FieldPassword},
			{Name: "client_secret", Label: "Client Secret", Kind: FieldPassword},
		},
	},
	{
		Slug:        "google_analytics",
		DisplayName: "Google Analytics 4",
		Category:    "Analytics",
		Icon:        "bar-chart-2",
		Description: "Google Analytics 4 integration",
		ConfigFields: []Field{
			{Name: "property_id", Label: "Property ID", Kind: FieldText, Placeholder: "123456789", Required: true, HelpText: "Your GA4 property ID"},
		},
		SecretFields: []Field{
			{Name: "service_account_json", Label: "Service Account JSON", Kind: FieldTextarea, Required: true, HelpText: "Paste your service account JSON key here"},
		},
	},
	{
		Slug:        "ms365",
		DisplayName: "Microsoft 365",
		Category:    "Email & Calendar",
		Icon:        "mail",
		Description: "Microsoft 365 / Outlook integration",
		ConfigFields: []Field{
			{Name: "tenant_id", Label: "Tenant ID", Kind: FieldText, Required: true},
		},
		SecretFields: []Field{
			{Name: "client_id", Label: "Client ID", Kind: FieldPassword, Required: true},
			{Name: "client_secret", Label: "Client Secret", Kind: FieldPassword, Required: true},
		},
	},
	{
		Slug:        "smtp",
		DisplayName: "SMTP Email",
		Category:    "Email & Calendar",
		Icon:        "send",
		Description: "Custom SMTP email server",
		ConfigFields: []Field{
			{Name: "host", Label: "SMTP Host", Kind: FieldText, Placeholder: "smtp.gmail.com", Required: true},
			{Name: "port", Label: "SMTP Port", Kind: FieldNumber, Placeholder: "587", Required: true},
			{Name: "from_email", Label: "From Email", Kind: FieldEmail, Placeholder: "noreply@example.com", Required: true},
			{Name: "from_name", Label: "From Name", Kind: FieldText, Placeholder: "Your Company"},
			{Name: "use_tls", Label: "Use TLS", Kind: FieldCheckbox, Default: "true"},
		},
		SecretFields: []Field{
			{Name: "username", Label: "SMTP Username", Kind: FieldText, Required: true},
			{Name: "password", Label: "SMTP Password", Kind: FieldPassword, Required: true},
		},
	},
}
