// Package registry is the static catalog of integrable external services:
// which services exist, what config and secret fields each one takes, and
// whether a submitted configuration satisfies the field schemas.
package registry

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownService is returned when a slug is not in the catalog.
var ErrUnknownService = errors.New("unknown service")

// FieldKind identifies how a field is rendered and interpreted.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldPassword FieldKind = "password"
	FieldURL      FieldKind = "url"
	FieldNumber   FieldKind = "number"
	FieldEmail    FieldKind = "email"
	FieldCheckbox FieldKind = "checkbox"
	FieldTextarea FieldKind = "textarea"
)

// Field describes one config or secret field of a service.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Label       string    `json:"label" yaml:"label"`
	Kind        FieldKind `json:"kind" yaml:"kind"`
	Placeholder string    `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required    bool      `json:"required" yaml:"required"`
	HelpText    string    `json:"help_text,omitempty" yaml:"help_text,omitempty"`
	Default     string    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Service describes an integrable external service. Descriptors are
// registered at startup and read-only afterwards; field order is the
// definition order.
type Service struct {
	Slug         string  `json:"slug" yaml:"slug"`
	DisplayName  string  `json:"display_name" yaml:"display_name"`
	Category     string  `json:"category" yaml:"category"`
	Icon         string  `json:"icon,omitempty" yaml:"icon,omitempty"`
	Description  string  `json:"description,omitempty" yaml:"description,omitempty"`
	ConfigFields []Field `json:"config_fields" yaml:"config_fields"`
	SecretFields []Field `json:"secret_fields" yaml:"secret_fields"`
}

// ValidationError reports every schema violation of a submitted
// configuration at once, so a caller gets the complete list in a single
// round trip.
type ValidationError struct {
	Slug     string
	Problems []string
}

// Error returns the semicolon-joined aggregate message.
func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Registry holds the service catalog. It is populated at startup and
// read-only afterwards, so it is safe to share across requests.
type Registry struct {
	services map[string]*Service
	order    []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{services: make(map[string]*Service)}
}

// Register adds a service descriptor to the catalog. Duplicate slugs and
// empty slugs are rejected.
func (r *Registry) Register(svc Service) error {
	if svc.Slug == "" {
		return fmt.Errorf("service slug is required")
	}
	if _, exists := r.services[svc.Slug]; exists {
		return fmt.Errorf("service %s is already registered", svc.Slug)
	}

	r.services[svc.Slug] = &svc
	r.order = append(r.order, svc.Slug)
	return nil
}

// Get returns the descriptor for a slug.
func (r *Registry) Get(slug string) (*Service, bool) {
	svc, ok := r.services[slug]
	return svc, ok
}

// All returns every registered service in definition order.
func (r *Registry) All() []*Service {
	services := make([]*Service, 0, len(r.order))
	for _, slug := range r.order {
		services = append(services, r.services[slug])
	}
	return services
}

// ByCategory groups all services by category. Within a category,
// services keep their definition order.
func (r *Registry) ByCategory() map[string][]*Service {
	categories := make(map[string][]*Service)
	for _, slug := range r.order {
		svc := r.services[slug]
		category := svc.Category
		if category == "" {
			category = "Other"
		}
		categories[category] = append(categories[category], svc)
	}
	return categories
}

// ValidateConfig checks a submitted configuration against the service's
// field schemas. An unknown slug returns ErrUnknownService. Missing
// required fields are all collected into one ValidationError rather than
// failing on the first. A nil return means the configuration is valid.
func (r *Registry) ValidateConfig(slug string, config, secrets map[string]string) error {
	svc, ok := r.Get(slug)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, slug)
	}

	var problems []string
	for _, field := range svc.ConfigFields {
		if field.Required && config[field.Name] == "" {
			problems = append(problems, field.Label+" is required")
		}
	}
	for _, field := range svc.SecretFields {
		if field.Required && secrets[field.Name] == "" {
			problems = append(problems, field.Label+" is required")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Slug: slug, Problems: problems}
	}
	return nil
}

// catalogFile is the on-disk shape accepted by LoadCatalog.
type catalogFile struct {
	Services []Service `yaml:"services"`
}

// LoadCatalog registers additional service descriptors from a YAML
// document, for operator-defined integrations beyond the builtin
// catalog.
func (r *Registry) LoadCatalog(reader io.Reader) error {
	var file catalogFile
	if err := yaml.NewDecoder(reader).Decode(&file); err != nil {
		return fmt.Errorf("parsing catalog: %w", err)
	}

	for _, svc := range file.Services {
		if err := r.Register(svc); err != nil {
			return fmt.Errorf("registering catalog service: %w", err)
		}
	}
	return nil
}
