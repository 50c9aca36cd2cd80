package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbuslabs/integration-hub/internal/models"
)

// AuditStore implements store.AuditStore using PostgreSQL.
type AuditStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *AuditStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Append records a mutating operation in the audit trail.
func (s *AuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	configFields, err := json.Marshal(entry.ConfigFields)
	if err != nil {
		return fmt.Errorf("marshaling config field names: %w", err)
	}
	secretFields, err := json.Marshal(entry.SecretFields)
	if err != nil {
		return fmt.Errorf("marshaling secret field names: %w", err)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO integration_audit_log (
			id, company_id, config_id, service_slug, action, user_id,
			config_fields, secret_fields, ip_address, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.conn().ExecContext(ctx, query,
		entry.ID, entry.CompanyID, nullString(entry.ConfigID), entry.ServiceSlug,
		entry.Action, entry.UserID, configFields, secretFields,
		nullString(entry.IPAddress), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}

	return nil
}

// List retrieves the most recent audit entries for a company.
func (s *AuditStore) List(ctx context.Context, companyID string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, company_id, config_id, service_slug, action, user_id,
		       config_fields, secret_fields, ip_address, created_at
		FROM integration_audit_log
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.conn().QueryContext(ctx, query, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var configID, ipAddress sql.NullString
		var configFields, secretFields []byte

		err := rows.Scan(
			&entry.ID, &entry.CompanyID, &configID, &entry.ServiceSlug,
			&entry.Action, &entry.UserID, &configFields, &secretFields,
			&ipAddress, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		if len(configFields) > 0 {
			if err := json.Unmarshal(configFields, &entry.ConfigFields); err != nil {
				return nil, fmt.Errorf("unmarshaling config field names: %w", err)
			}
		}
		if len(secretFields) > 0 {
			if err := json.Unmarshal(secretFields, &entry.SecretFields); err != nil {
				return nil, fmt.Errorf("unmarshaling secret field names: %w", err)
			}
		}

		entry.ConfigID = configID.String
		entry.IPAddress = ipAddress.String
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
