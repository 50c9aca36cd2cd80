package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nimbuslabs/integration-hub/internal/models"
	"github.com/nimbuslabs/integration-hub/internal/store"
)

// getTestDSN returns the test database DSN, or empty to skip DB tests.
func getTestDSN() string {
	return os.Getenv("TEST_DATABASE_URL")
}

// setupTestDB creates a test database connection and applies the schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := getTestDSN()
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to ping database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// runMigrations applies the database schema for testing.
func runMigrations(db *sql.DB) error {
	_, _ = db.Exec("DROP TABLE IF EXISTS integration_audit_log CASCADE")
	_, _ = db.Exec("DROP TABLE IF EXISTS integration_configs CASCADE")
	_, _ = db.Exec("DROP TABLE IF EXISTS company_members CASCADE")
	_, _ = db.Exec("DROP TABLE IF EXISTS companies CASCADE")

	schema := `
		CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

		CREATE TABLE companies (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(63) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE company_members (
			company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			user_id VARCHAR(255) NOT NULL,
			role VARCHAR(63) NOT NULL DEFAULT 'member',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (company_id, user_id)
		);

		CREATE TABLE integration_configs (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			service_slug VARCHAR(63) NOT NULL,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			config JSONB NOT NULL DEFAULT '{}',
			encrypted_secrets JSONB NOT NULL DEFAULT '{}',
			status VARCHAR(31) NOT NULL DEFAULT 'active',
			test_status VARCHAR(31),
			test_message TEXT,
			last_tested_at TIMESTAMPTZ,
			created_by VARCHAR(255),
			updated_by VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT integration_configs_company_service_unique UNIQUE (company_id, service_slug)
		);

		CREATE TABLE integration_audit_log (
			id UUID PRIMARY KEY,
			company_id UUID NOT NULL,
			config_id UUID,
			service_slug VARCHAR(63) NOT NULL,
			action VARCHAR(31) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			config_fields JSONB NOT NULL DEFAULT '[]',
			secret_fields JSONB NOT NULL DEFAULT '[]',
			ip_address VARCHAR(63),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX idx_integration_configs_company ON integration_configs(company_id);
		CREATE INDEX idx_audit_log_company ON integration_audit_log(company_id, created_at DESC);
	`
	_, err := db.Exec(schema)
	return err
}

func newDBTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// createTestCompany inserts a company row for foreign keys.
func createTestCompany(t *testing.T, db *sql.DB) string {
	t.Helper()

	logger := newDBTestLogger()
	companies := &CompanyStore{db: db, logger: logger}
	company := &models.Company{
		ID:   uuid.NewString(),
		Name: "Test Co",
		Slug: "test-co-" + uuid.NewString()[:8],
	}
	if err := companies.Create(context.Background(), company); err != nil {
		t.Fatalf("failed to create company: %v", err)
	}
	return company.ID
}

func TestIntegrationConfigUpsertRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	logger := newDBTestLogger()
	integrations := &IntegrationStore{db: db, logger: logger}
	companyID := createTestCompany(t, db)

	cfg := &models.IntegrationConfig{
		CompanyID:   companyID,
		ServiceSlug: "mailgun",
		DisplayName: "Mailgun",
		Config:      map[string]string{"domain": "mg.example.com"},
		EncryptedSecrets: map[string]string{
			"api_key": "b2xkIGJsb2I=",
		},
		Status:    models.StatusActive,
		CreatedBy: "user-1",
		UpdatedBy: "user-1",
	}

	if err := integrations.Upsert(ctx, cfg); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if cfg.ID == "" {
		t.Fatal("upsert did not fill in the record ID")
	}

	got, err := integrations.Get(ctx, companyID, "mailgun")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != cfg.ID {
		t.Errorf("id = %q, want %q", got.ID, cfg.ID)
	}
	if got.Config["domain"] != "mg.example.com" {
		t.Errorf("config = %v", got.Config)
	}
	if got.EncryptedSecrets["api_key"] != "b2xkIGJsb2I=" {
		t.Errorf("encrypted secrets = %v", got.EncryptedSecrets)
	}

	// Second upsert for the same (company, service) keeps the ID.
	cfg2 := &models.IntegrationConfig{
		CompanyID:        companyID,
		ServiceSlug:      "mailgun",
		DisplayName:      "Mailgun",
		Config:           map[string]string{"domain": "mg2.example.com"},
		EncryptedSecrets: map[string]string{"api_key": "bmV3IGJsb2I="},
		Status:           models.StatusActive,
		UpdatedBy:        "user-2",
	}
	if err := integrations.Upsert(ctx, cfg2); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if cfg2.ID != cfg.ID {
		t.Errorf("second upsert changed the ID: %q vs %q", cfg2.ID, cfg.ID)
	}

	got, err = integrations.Get(ctx, companyID, "mailgun")
	if err != nil {
		t.Fatalf("get after update failed: %v", err)
	}
	if got.Config["domain"] != "mg2.example.com" || got.EncryptedSecrets["api_key"] != "bmV3IGJsb2I=" {
		t.Errorf("update not applied: %v %v", got.Config, got.EncryptedSecrets)
	}
}

func TestIntegrationConfigGetNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	integrations := &IntegrationStore{db: db, logger: newDBTestLogger()}
	companyID := createTestCompany(t, db)

	_, err := integrations.Get(context.Background(), companyID, "nothing-here")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSoftDeleteExcludesFromActiveList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	integrations := &IntegrationStore{db: db, logger: newDBTestLogger()}
	companyID := createTestCompany(t, db)

	for _, slug := range []string{"mailgun", "twilio"} {
		cfg := &models.IntegrationConfig{
			CompanyID:        companyID,
			ServiceSlug:      slug,
			DisplayName:      slug,
			EncryptedSecrets: map[string]string{"api_key": "YmxvYg=="},
			Status:           models.StatusActive,
		}
		if err := integrations.Upsert(ctx, cfg); err != nil {
			t.Fatalf("upsert %s failed: %v", slug, err)
		}
	}

	if err := integrations.SoftDelete(ctx, companyID, "mailgun", "user-1"); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}

	active, err := integrations.ListActive(ctx, companyID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 1 || active[0].ServiceSlug != "twilio" {
		t.Errorf("active = %v", active)
	}

	// The deleted row is still readable with its secrets intact.
	deleted, err := integrations.Get(ctx, companyID, "mailgun")
	if err != nil {
		t.Fatalf("get deleted failed: %v", err)
	}
	if deleted.Status != models.StatusDeleted {
		t.Errorf("status = %q, want deleted", deleted.Status)
	}
	if deleted.EncryptedSecrets["api_key"] != "YmxvYg==" {
		t.Error("soft delete dropped the encrypted secrets")
	}

	// Soft-deleting again reports not found.
	if err := integrations.SoftDelete(ctx, companyID, "mailgun", "user-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second soft delete = %v, want ErrNotFound", err)
	}
}

func TestUnreadableSecretsBlobTreatedAsEmpty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	integrations := &IntegrationStore{db: db, logger: newDBTestLogger()}
	companyID := createTestCompany(t, db)

	cfg := &models.IntegrationConfig{
		CompanyID:   companyID,
		ServiceSlug: "mailgun",
		Status:      models.StatusActive,
	}
	if err := integrations.Upsert(ctx, cfg); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// JSONB rejects malformed JSON, so corrupt the column to a JSON
	// value of the wrong shape instead.
	if _, err := db.Exec(
		`UPDATE integration_configs SET encrypted_secrets = '"not an object"' WHERE id = $1`, cfg.ID); err != nil {
		t.Fatalf("failed to corrupt blob: %v", err)
	}

	got, err := integrations.Get(ctx, companyID, "mailgun")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.EncryptedSecrets != nil {
		t.Errorf("encrypted secrets = %v, want nil", got.EncryptedSecrets)
	}
}

func TestAuditAppendAndList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	audit := &AuditStore{db: db, logger: newDBTestLogger()}
	companyID := createTestCompany(t, db)

	entries := []*models.AuditEntry{
		{
			ID:           uuid.NewString(),
			CompanyID:    companyID,
			ServiceSlug:  "mailgun",
			Action:       models.AuditCreated,
			UserID:       "user-1",
			ConfigFields: []string{"domain"},
			SecretFields: []string{"api_key"},
			IPAddress:    "10.0.0.1",
			CreatedAt:    time.Now().UTC().Add(-time.Minute),
		},
		{
			ID:          uuid.NewString(),
			CompanyID:   companyID,
			ServiceSlug: "mailgun",
			Action:      models.AuditTested,
			UserID:      "user-1",
			CreatedAt:   time.Now().UTC(),
		},
	}
	for _, entry := range entries {
		if err := audit.Append(ctx, entry); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := audit.List(ctx, companyID, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}

	// Most recent first.
	if got[0].Action != models.AuditTested {
		t.Errorf("first action = %q, want tested", got[0].Action)
	}
	if got[1].SecretFields[0] != "api_key" {
		t.Errorf("secret fields = %v", got[1].SecretFields)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	logger := newDBTestLogger()
	st := &PostgresStore{db: db, logger: logger}
	st.companies = &CompanyStore{db: db, logger: logger}
	st.integrations = &IntegrationStore{db: db, logger: logger}
	st.audit = &AuditStore{db: db, logger: logger}

	companyID := createTestCompany(t, db)

	sentinel := errors.New("boom")
	err := st.WithTx(ctx, func(tx store.Store) error {
		cfg := &models.IntegrationConfig{
			CompanyID:   companyID,
			ServiceSlug: "mailgun",
			Status:      models.StatusActive,
		}
		if err := tx.Integrations().Upsert(ctx, cfg); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}

	_, err = st.Integrations().Get(ctx, companyID, "mailgun")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("write survived rollback: err = %v", err)
	}
}

func TestCompanyMembership(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	companies := &CompanyStore{db: db, logger: newDBTestLogger()}
	companyID := createTestCompany(t, db)

	isMember, err := companies.IsMember(ctx, companyID, "user-1")
	if err != nil {
		t.Fatalf("is member failed: %v", err)
	}
	if isMember {
		t.Error("user reported as member before being added")
	}

	if err := companies.AddMember(ctx, companyID, "user-1", "admin"); err != nil {
		t.Fatalf("add member failed: %v", err)
	}

	isMember, err = companies.IsMember(ctx, companyID, "user-1")
	if err != nil {
		t.Fatalf("is member failed: %v", err)
	}
	if !isMember {
		t.Error("user not reported as member after being added")
	}

	got, err := companies.GetDefaultForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("default company failed: %v", err)
	}
	if got.ID != companyID {
		t.Errorf("default company = %q, want %q", got.ID, companyID)
	}
}
