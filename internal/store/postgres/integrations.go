package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbuslabs/integration-hub/internal/models"
	"github.com/nimbuslabs/integration-hub/internal/store"
)

// IntegrationStore implements store.IntegrationStore using PostgreSQL.
type IntegrationStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *IntegrationStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const integrationColumns = `
	id, company_id, service_slug, display_name, config, encrypted_secrets,
	status, test_status, test_message, last_tested_at,
	created_by, updated_by, created_at, updated_at`

// Get retrieves a configuration by company and service slug.
func (s *IntegrationStore) Get(ctx context.Context, companyID, slug string) (*models.IntegrationConfig, error) {
	query := `
		SELECT` + integrationColumns + `
		FROM integration_configs
		WHERE company_id = $1 AND service_slug = $2`

	row := s.conn().QueryRowContext(ctx, query, companyID, slug)
	return s.scanConfig(row)
}

// GetForUpdate retrieves a configuration and locks its row. Only valid
// inside a transaction; the lock serializes concurrent saves for the
// same (company, service) pair.
func (s *IntegrationStore) GetForUpdate(ctx context.Context, companyID, slug string) (*models.IntegrationConfig, error) {
	query := `
		SELECT` + integrationColumns + `
		FROM integration_configs
		WHERE company_id = $1 AND service_slug = $2
		FOR UPDATE`

	row := s.conn().QueryRowContext(ctx, query, companyID, slug)
	return s.scanConfig(row)
}

// ListActive retrieves all active configurations for a company.
func (s *IntegrationStore) ListActive(ctx context.Context, companyID string) ([]*models.IntegrationConfig, error) {
	query := `
		SELECT` + integrationColumns + `
		FROM integration_configs
		WHERE company_id = $1 AND status = $2
		ORDER BY service_slug`

	rows, err := s.conn().QueryContext(ctx, query, companyID, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("querying integration configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.IntegrationConfig
	for rows.Next() {
		cfg, err := s.scanConfigRow(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating integration configs: %w", err)
	}

	return configs, nil
}

// Upsert inserts or updates a configuration keyed by
// (company_id, service_slug) and fills in the record ID.
func (s *IntegrationStore) Upsert(ctx context.Context, cfg *models.IntegrationConfig) error {
	configJSON, err := json.Marshal(cfg.Config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	secretsJSON, err := json.Marshal(cfg.EncryptedSecrets)
	if err != nil {
		return fmt.Errorf("marshaling encrypted secrets: %w", err)
	}

	query := `
		INSERT INTO integration_configs (
			company_id, service_slug, display_name, config, encrypted_secrets,
			status, test_status, test_message, last_tested_at,
			created_by, updated_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (company_id, service_slug) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			config = EXCLUDED.config,
			encrypted_secrets = EXCLUDED.encrypted_secrets,
			status = EXCLUDED.status,
			test_status = EXCLUDED.test_status,
			test_message = EXCLUDED.test_message,
			last_tested_at = EXCLUDED.last_tested_at,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	now := time.Now().UTC()
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = now
	}

	var lastTestedAt sql.NullTime
	if cfg.LastTestedAt != nil {
		lastTestedAt = sql.NullTime{Time: *cfg.LastTestedAt, Valid: true}
	}

	err = s.conn().QueryRowContext(ctx, query,
		cfg.CompanyID, cfg.ServiceSlug, cfg.DisplayName, configJSON, secretsJSON,
		cfg.Status, cfg.TestStatus, cfg.TestMessage, lastTestedAt,
		cfg.CreatedBy, cfg.UpdatedBy, cfg.UpdatedAt,
	).Scan(&cfg.ID, &cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting integration config: %w", err)
	}

	return nil
}

// SoftDelete marks an active configuration deleted.
func (s *IntegrationStore) SoftDelete(ctx context.Context, companyID, slug, updatedBy string) error {
	query := `
		UPDATE integration_configs
		SET status = $3, updated_by = $4, updated_at = $5
		WHERE company_id = $1 AND service_slug = $2 AND status = $6`

	result, err := s.conn().ExecContext(ctx, query,
		companyID, slug, models.StatusDeleted, updatedBy, time.Now().UTC(), models.StatusActive)
	if err != nil {
		return fmt.Errorf("soft-deleting integration config: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *IntegrationStore) scanConfig(row *sql.Row) (*models.IntegrationConfig, error) {
	cfg, err := s.scanFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return cfg, nil
}

func (s *IntegrationStore) scanConfigRow(rows *sql.Rows) (*models.IntegrationConfig, error) {
	return s.scanFrom(rows)
}

func (s *IntegrationStore) scanFrom(row scanner) (*models.IntegrationConfig, error) {
	var cfg models.IntegrationConfig
	var configJSON, secretsJSON []byte
	var testStatus, testMessage, createdBy, updatedBy sql.NullString
	var lastTestedAt sql.NullTime

	err := row.Scan(
		&cfg.ID, &cfg.CompanyID, &cfg.ServiceSlug, &cfg.DisplayName,
		&configJSON, &secretsJSON,
		&cfg.Status, &testStatus, &testMessage, &lastTestedAt,
		&createdBy, &updatedBy, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning integration config: %w", err)
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &cfg.Config); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
	}

	// An unreadable secrets blob is treated as absent so saves can start
	// a fresh map, but it means previously stored secrets are lost, so
	// it is logged as a data-integrity warning rather than ignored.
	if len(secretsJSON) > 0 {
		if err := json.Unmarshal(secretsJSON, &cfg.EncryptedSecrets); err != nil {
			s.logger.Warn("stored secrets blob is not valid JSON, treating as empty",
				"company_id", cfg.CompanyID,
				"service_slug", cfg.ServiceSlug,
				"error", err,
			)
			cfg.EncryptedSecrets = nil
		}
	}

	cfg.TestStatus = models.TestStatus(testStatus.String)
	cfg.TestMessage = testMessage.String
	cfg.CreatedBy = createdBy.String
	cfg.UpdatedBy = updatedBy.String
	if lastTestedAt.Valid {
		t := lastTestedAt.Time
		cfg.LastTestedAt = &t
	}

	return &cfg, nil
}
