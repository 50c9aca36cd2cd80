package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbuslabs/integration-hub/internal/models"
	"github.com/nimbuslabs/integration-hub/internal/store"
)

// CompanyStore implements store.CompanyStore using PostgreSQL.
type CompanyStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *CompanyStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new company.
func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO companies (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.conn().ExecContext(ctx, query,
		company.ID, company.Name, company.Slug, company.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating company: %w", err)
	}

	return nil
}

// Get retrieves a company by ID.
func (s *CompanyStore) Get(ctx context.Context, id string) (*models.Company, error) {
	query := `SELECT id, name, slug, created_at FROM companies WHERE id = $1`
	return s.scanCompany(s.conn().QueryRowContext(ctx, query, id))
}

// GetBySlug retrieves a company by slug.
func (s *CompanyStore) GetBySlug(ctx context.Context, slug string) (*models.Company, error) {
	query := `SELECT id, name, slug, created_at FROM companies WHERE slug = $1`
	return s.scanCompany(s.conn().QueryRowContext(ctx, query, slug))
}

// IsMember reports whether a user belongs to a company.
func (s *CompanyStore) IsMember(ctx context.Context, companyID, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM company_members
			WHERE company_id = $1 AND user_id = $2
		)`

	var isMember bool
	if err := s.conn().QueryRowContext(ctx, query, companyID, userID).Scan(&isMember); err != nil {
		return false, fmt.Errorf("checking company membership: %w", err)
	}

	return isMember, nil
}

// AddMember adds a user to a company with a role.
func (s *CompanyStore) AddMember(ctx context.Context, companyID, userID, role string) error {
	query := `
		INSERT INTO company_members (company_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (company_id, user_id) DO UPDATE SET role = EXCLUDED.role`

	_, err := s.conn().ExecContext(ctx, query, companyID, userID, role, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("adding company member: %w", err)
	}

	return nil
}

// GetDefaultForUser returns the first company a user belongs to.
func (s *CompanyStore) GetDefaultForUser(ctx context.Context, userID string) (*models.Company, error) {
	query := `
		SELECT c.id, c.name, c.slug, c.created_at
		FROM companies c
		JOIN company_members m ON m.company_id = c.id
		WHERE m.user_id = $1
		ORDER BY m.created_at
		LIMIT 1`

	return s.scanCompany(s.conn().QueryRowContext(ctx, query, userID))
}

func (s *CompanyStore) scanCompany(row *sql.Row) (*models.Company, error) {
	var company models.Company
	err := row.Scan(&company.ID, &company.Name, &company.Slug, &company.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scanning company: %w", err)
	}
	return &company, nil
}
