// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/nimbuslabs/integration-hub/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a transaction loses a serialization
	// or deadlock race and should be retried by the caller.
	ErrConflict = errors.New("persistence conflict")
)

// CompanyStore defines operations for tenant management.
type CompanyStore interface {
	// Create creates a new company.
	Create(ctx context.Context, company *models.Company) error
	// Get retrieves a company by ID.
	Get(ctx context.Context, id string) (*models.Company, error)
	// GetBySlug retrieves a company by slug.
	GetBySlug(ctx context.Context, slug string) (*models.Company, error)
	// IsMember reports whether a user belongs to a company.
	IsMember(ctx context.Context, companyID, userID string) (bool, error)
	// AddMember adds a user to a company with a role.
	AddMember(ctx context.Context, companyID, userID, role string) error
	// GetDefaultForUser returns the first company a user belongs to.
	GetDefaultForUser(ctx context.Context, userID string) (*models.Company, error)
}

// IntegrationStore defines operations for integration configurations.
type IntegrationStore interface {
	// Get retrieves a configuration by company and service slug,
	// regardless of status.
	Get(ctx context.Context, companyID, slug string) (*models.IntegrationConfig, error)
	// GetForUpdate retrieves a configuration and locks its row for the
	// duration of the surrounding transaction. The save path's
	// read-merge-write depends on this lock; callers must be inside
	// WithTx.
	GetForUpdate(ctx context.Context, companyID, slug string) (*models.IntegrationConfig, error)
	// ListActive retrieves all active configurations for a company.
	ListActive(ctx context.Context, companyID string) ([]*models.IntegrationConfig, error)
	// Upsert inserts or updates a configuration keyed by
	// (company_id, service_slug) and fills in the record ID.
	Upsert(ctx context.Context, cfg *models.IntegrationConfig) error
	// SoftDelete marks a configuration deleted. The row is kept.
	SoftDelete(ctx context.Context, companyID, slug, updatedBy string) error
}

// AuditStore defines operations for the integration audit trail.
type AuditStore interface {
	// Append records a mutating operation. Entries are never updated
	// or deleted.
	Append(ctx context.Context, entry *models.AuditEntry) error
	// List retrieves the most recent entries for a company.
	List(ctx context.Context, companyID string, limit int) ([]*models.AuditEntry, error)
}

// Store is the main interface for database operations.
type Store interface {
	// Companies returns the CompanyStore for tenant operations.
	Companies() CompanyStore
	// Integrations returns the IntegrationStore.
	Integrations() IntegrationStore
	// Audit returns the AuditStore.
	Audit() AuditStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Close closes the database connection.
	Close() error
}
