// Package integrations implements the policy between a configuration
// save request and the persisted record: registry validation, masked
// value detection, encrypt-changed-only, and the merge into the stored
// encrypted secrets blob. Plaintext secrets never leave this package;
// the display path returns masked values only.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nimbuslabs/integration-hub/internal/models"
	"github.com/nimbuslabs/integration-hub/internal/registry"
	"github.com/nimbuslabs/integration-hub/internal/store"
	"github.com/nimbuslabs/integration-hub/internal/vault"
)

// ConnectionTester checks whether a configuration can reach its service.
// Implementations receive decrypted secrets and must not retain them.
type ConnectionTester interface {
	Test(ctx context.Context, slug string, config, secrets map[string]string) (ok bool, message string)
}

// noopTester accepts every configuration. Services without a real
// tester still get their config persisted and status recorded.
type noopTester struct{}

func (noopTester) Test(ctx context.Context, slug string, config, secrets map[string]string) (bool, string) {
	return true, "Configuration saved (connection test not implemented)"
}

// Service orchestrates integration configuration saves, display, tests,
// and deletes for all tenants.
type Service struct {
	store    store.Store
	vault    *vault.Vault
	registry *registry.Registry
	tester   ConnectionTester
	logger   *slog.Logger
}

// NewService creates the orchestration service. A nil tester falls back
// to a tester that accepts everything.
func NewService(st store.Store, v *vault.Vault, reg *registry.Registry, tester ConnectionTester, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if tester == nil {
		tester = noopTester{}
	}
	return &Service{
		store:    st,
		vault:    v,
		registry: reg,
		tester:   tester,
		logger:   logger,
	}
}

// Actor identifies who performs an operation, for audit purposes.
type Actor struct {
	UserID    string
	IPAddress string
}

// Save validates and persists a configuration for one (company, service)
// pair. Submitted secret values that are display forms (masked) are
// treated as unchanged and skipped; only new or changed values are
// encrypted, and they are merged last-writer-wins into the previously
// stored encrypted map, so a save that submits one changed field never
// wipes out the others. Returns the configuration record ID.
func (s *Service) Save(ctx context.Context, companyID string, actor Actor, slug string, config, secrets map[string]string) (string, error) {
	svc, ok := s.registry.Get(slug)
	if !ok {
		return "", fmt.Errorf("%w: %s", registry.ErrUnknownService, slug)
	}

	// Validation happens before any cryptographic work.
	if err := s.registry.ValidateConfig(slug, config, secrets); err != nil {
		return "", err
	}

	changed := make(map[string]string)
	for key, value := range secrets {
		if value == "" || s.vault.Masked(value) {
			continue
		}
		changed[key] = value
	}

	encrypted, err := s.vault.EncryptMap(changed)
	if err != nil {
		return "", fmt.Errorf("encrypting secrets: %w", err)
	}

	var configID string
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		existing, err := tx.Integrations().GetForUpdate(ctx, companyID, slug)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("loading existing config: %w", err)
		}

		now := time.Now().UTC()
		action := models.AuditCreated
		cfg := &models.IntegrationConfig{
			CompanyID:        companyID,
			ServiceSlug:      slug,
			DisplayName:      svc.DisplayName,
			Config:           config,
			EncryptedSecrets: encrypted,
			Status:           models.StatusActive,
			CreatedBy:        actor.UserID,
			UpdatedBy:        actor.UserID,
			UpdatedAt:        now,
		}

		if existing != nil {
			action = models.AuditUpdated
			merged := existing.EncryptedSecrets
			if merged == nil {
				merged = make(map[string]string)
			}
			for key, blob := range encrypted {
				merged[key] = blob
			}
			cfg.EncryptedSecrets = merged
			cfg.CreatedBy = existing.CreatedBy
			cfg.TestStatus = existing.TestStatus
			cfg.TestMessage = existing.TestMessage
			cfg.LastTestedAt = existing.LastTestedAt
		}

		if err := tx.Integrations().Upsert(ctx, cfg); err != nil {
			return err
		}
		configID = cfg.ID

		return tx.Audit().Append(ctx, &models.AuditEntry{
			ID:           uuid.NewString(),
			CompanyID:    companyID,
			ConfigID:     cfg.ID,
			ServiceSlug:  slug,
			Action:       action,
			UserID:       actor.UserID,
			ConfigFields: sortedKeys(config),
			SecretFields: sortedKeys(secrets),
			IPAddress:    actor.IPAddress,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("integration config saved",
		"company_id", companyID,
		"service_slug", slug,
		"config_id", configID,
	)
	return configID, nil
}

// Display is what the presentation layer gets for one service: the
// descriptor, the plaintext config fields, and the secrets masked.
type Display struct {
	Service      *registry.Service `json:"service"`
	Config       map[string]string `json:"config"`
	Secrets      map[string]string `json:"secrets"`
	IsConfigured bool              `json:"is_configured"`
	// UnreadableSecrets lists secret fields whose stored blobs failed
	// to decrypt. They are reported, never passed through.
	UnreadableSecrets []string            `json:"unreadable_secrets,omitempty"`
	Status            models.ConfigStatus `json:"status,omitempty"`
	TestStatus        models.TestStatus   `json:"test_status,omitempty"`
	TestMessage       string              `json:"test_message,omitempty"`
	LastTestedAt      *time.Time          `json:"last_tested_at,omitempty"`
	UpdatedAt         *time.Time          `json:"updated_at,omitempty"`
}

// Get returns the display state for one service. An unconfigured
// service yields an empty display rather than an error. A stored blob
// that cannot be decrypted yields an explicit unreadable state; it
// never crashes the request and never leaks ciphertext.
func (s *Service) Get(ctx context.Context, companyID, slug string) (*Display, error) {
	svc, ok := s.registry.Get(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownService, slug)
	}

	cfg, err := s.store.Integrations().Get(ctx, companyID, slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &Display{
				Service: svc,
				Config:  map[string]string{},
				Secrets: map[string]string{},
			}, nil
		}
		return nil, err
	}

	decrypted, decErr := s.vault.DecryptMap(cfg.EncryptedSecrets)
	if decErr != nil {
		s.logger.Error("failed to decrypt stored secrets",
			"company_id", companyID,
			"service_slug", slug,
			"error", decErr,
		)
	}

	masked := make(map[string]string, len(decrypted))
	for key, value := range decrypted {
		if value == "" {
			continue
		}
		masked[key] = s.vault.Mask(value, 0)
	}

	var unreadable []string
	for key, blob := range cfg.EncryptedSecrets {
		if blob == "" {
			continue
		}
		if _, ok := decrypted[key]; !ok {
			unreadable = append(unreadable, key)
		}
	}
	sort.Strings(unreadable)

	configCopy := cfg.Config
	if configCopy == nil {
		configCopy = map[string]string{}
	}

	updatedAt := cfg.UpdatedAt
	return &Display{
		Service:           svc,
		Config:            configCopy,
		Secrets:           masked,
		IsConfigured:      true,
		UnreadableSecrets: unreadable,
		Status:            cfg.Status,
		TestStatus:        cfg.TestStatus,
		TestMessage:       cfg.TestMessage,
		LastTestedAt:      cfg.LastTestedAt,
		UpdatedAt:         &updatedAt,
	}, nil
}

// OverviewEntry pairs a catalog service with its configuration state.
type OverviewEntry struct {
	Service    *registry.Service `json:"service"`
	Configured bool              `json:"configured"`
	TestStatus models.TestStatus `json:"test_status,omitempty"`
}

// Overview returns every catalog service grouped by category, marking
// which ones the company has configured.
func (s *Service) Overview(ctx context.Context, companyID string) (map[string][]OverviewEntry, error) {
	configured, err := s.store.Integrations().ListActive(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("listing configured integrations: %w", err)
	}

	bySlug := make(map[string]*models.IntegrationConfig, len(configured))
	for _, cfg := range configured {
		bySlug[cfg.ServiceSlug] = cfg
	}

	overview := make(map[string][]OverviewEntry)
	for category, services := range s.registry.ByCategory() {
		entries := make([]OverviewEntry, 0, len(services))
		for _, svc := range services {
			entry := OverviewEntry{Service: svc}
			if cfg, ok := bySlug[svc.Slug]; ok {
				entry.Configured = true
				entry.TestStatus = cfg.TestStatus
			}
			entries = append(entries, entry)
		}
		overview[category] = entries
	}

	return overview, nil
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TestConnection decrypts the stored secrets, runs the configured
// tester, and records the outcome on the configuration row. Secrets
// that fail to decrypt fail the test rather than being passed through.
func (s *Service) TestConnection(ctx context.Context, companyID string, actor Actor, slug string) (*TestResult, error) {
	cfg, err := s.store.Integrations().Get(ctx, companyID, slug)
	if err != nil {
		return nil, err
	}

	var result TestResult
	secrets, decErr := s.vault.DecryptMap(cfg.EncryptedSecrets)
	if decErr != nil {
		s.logger.Error("failed to decrypt secrets for connection test",
			"company_id", companyID,
			"service_slug", slug,
			"error", decErr,
		)
		result = TestResult{Success: false, Message: "Stored secrets could not be decrypted"}
	} else {
		ok, message := s.tester.Test(ctx, slug, cfg.Config, secrets)
		result = TestResult{Success: ok, Message: message}
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		current, err := tx.Integrations().GetForUpdate(ctx, companyID, slug)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		current.LastTestedAt = &now
		current.TestMessage = result.Message
		if result.Success {
			current.TestStatus = models.TestStatusSuccess
		} else {
			current.TestStatus = models.TestStatusFailed
		}
		current.UpdatedAt = now

		if err := tx.Integrations().Upsert(ctx, current); err != nil {
			return err
		}

		return tx.Audit().Append(ctx, &models.AuditEntry{
			ID:          uuid.NewString(),
			CompanyID:   companyID,
			ConfigID:    current.ID,
			ServiceSlug: slug,
			Action:      models.AuditTested,
			UserID:      actor.UserID,
			IPAddress:   actor.IPAddress,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Delete soft-deletes a configuration. The row and its encrypted
// secrets stay in place; only the status flips.
func (s *Service) Delete(ctx context.Context, companyID string, actor Actor, slug string) error {
	return s.store.WithTx(ctx, func(tx store.Store) error {
		cfg, err := tx.Integrations().GetForUpdate(ctx, companyID, slug)
		if err != nil {
			return err
		}

		if err := tx.Integrations().SoftDelete(ctx, companyID, slug, actor.UserID); err != nil {
			return err
		}

		return tx.Audit().Append(ctx, &models.AuditEntry{
			ID:          uuid.NewString(),
			CompanyID:   companyID,
			ConfigID:    cfg.ID,
			ServiceSlug: slug,
			Action:      models.AuditDeleted,
			UserID:      actor.UserID,
			IPAddress:   actor.IPAddress,
			CreatedAt:   time.Now().UTC(),
		})
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
