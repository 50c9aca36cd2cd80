package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nimbuslabs/integration-hub/internal/api/middleware"
	"github.com/nimbuslabs/integration-hub/internal/integrations"
	"github.com/nimbuslabs/integration-hub/internal/models"
	"github.com/nimbuslabs/integration-hub/internal/registry"
	"github.com/nimbuslabs/integration-hub/internal/store"
	"github.com/nimbuslabs/integration-hub/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore implements store.Store for handler tests.
type mockStore struct {
	mu      sync.Mutex
	configs map[string]*models.IntegrationConfig
	audit   []*models.AuditEntry
}

func newMockStore() *mockStore {
	return &mockStore{configs: make(map[string]*models.IntegrationConfig)}
}

func (m *mockStore) Companies() store.CompanyStore { return nil }

func (m *mockStore) Integrations() store.IntegrationStore { return (*mockIntegrations)(m) }

func (m *mockStore) Audit() store.AuditStore { return (*mockAudit)(m) }

func (m *mockStore) Close() error { return nil }

func (m *mockStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m)
}

type mockIntegrations mockStore

func (m *mockIntegrations) Get(ctx context.Context, companyID, slug string) (*models.IntegrationConfig, error) {
	cfg, ok := m.configs[companyID+"/"+slug]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *cfg
	return &copied, nil
}

func (m *mockIntegrations) GetForUpdate(ctx context.Context, companyID, slug string) (*models.IntegrationConfig, error) {
	return m.Get(ctx, companyID, slug)
}

func (m *mockIntegrations) ListActive(ctx context.Context, companyID string) ([]*models.IntegrationConfig, error) {
	var configs []*models.IntegrationConfig
	for _, cfg := range m.configs {
		if cfg.CompanyID == companyID && cfg.Status == models.StatusActive {
			copied := *cfg
			configs = append(configs, &copied)
		}
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ServiceSlug < configs[j].ServiceSlug })
	return configs, nil
}

func (m *mockIntegrations) Upsert(ctx context.Context, cfg *models.IntegrationConfig) error {
	key := cfg.CompanyID + "/" + cfg.ServiceSlug
	if existing, ok := m.configs[key]; ok {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
	} else {
		cfg.ID = uuid.NewString()
		cfg.CreatedAt = time.Now().UTC()
	}
	copied := *cfg
	m.configs[key] = &copied
	return nil
}

func (m *mockIntegrations) SoftDelete(ctx context.Context, companyID, slug, updatedBy string) error {
	cfg, ok := m.configs[companyID+"/"+slug]
	if !ok || cfg.Status != models.StatusActive {
		return store.ErrNotFound
	}
	cfg.Status = models.StatusDeleted
	return nil
}

type mockAudit mockStore

func (m *mockAudit) Append(ctx context.Context, entry *models.AuditEntry) error {
	m.audit = append(m.audit, entry)
	return nil
}

func (m *mockAudit) List(ctx context.Context, companyID string, limit int) ([]*models.AuditEntry, error) {
	return m.audit, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// withIdentity injects the authenticated user and tenant company the
// auth and company middleware would normally provide.
func withIdentity(r *http.Request, userID, companyID string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
	ctx = context.WithValue(ctx, middleware.CompanyContextKey, &models.Company{ID: companyID, Name: "Test Co", Slug: "test-co"})
	return r.WithContext(ctx)
}

func newTestRouter(t *testing.T) (chi.Router, *mockStore) {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	v, err := vault.New(key, testLogger())
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, reg.Register(registry.Service{
		Slug:        "demo",
		DisplayName: "Demo Service",
		Category:    "Testing",
		ConfigFields: []registry.Field{
			{Name: "region", Label: "Region", Kind: registry.FieldText},
		},
		SecretFields: []registry.Field{
			{Name: "api_key", Label: "API Key", Kind: registry.FieldPassword, Required: true},
		},
	}))

	st := newMockStore()
	svc := integrations.NewService(st, v, reg, nil, testLogger())
	handler := NewIntegrationHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Route("/v1/integrations", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Route("/{slug}", func(r chi.Router) {
			r.Get("/", handler.Get)
			r.Post("/", handler.Save)
			r.Put("/", handler.Save)
			r.Delete("/", handler.Delete)
			r.Post("/test", handler.Test)
		})
	})

	return r, st
}

func doRequest(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req = withIdentity(req, "user-1", "co-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSaveAndGetIntegration(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/integrations/demo", SaveConfigRequest{
		Config:  map[string]string{"region": "us-east"},
		Secrets: map[string]string{"api_key": "sk-12345678"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var saveResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saveResp))
	assert.NotEmpty(t, saveResp["id"])
	assert.Equal(t, "saved", saveResp["status"])

	rec = doRequest(t, router, http.MethodGet, "/v1/integrations/demo", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var display integrations.Display
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &display))
	assert.True(t, display.IsConfigured)
	assert.Equal(t, "us-east", display.Config["region"])
	assert.Equal(t, "sk***5678", display.Secrets["api_key"])
	assert.NotContains(t, rec.Body.String(), "sk-12345678")
}

func TestSaveUnknownServiceReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/integrations/nope", SaveConfigRequest{
		Secrets: map[string]string{"api_key": "sk-12345678"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveValidationFailureReturns400(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/integrations/demo", SaveConfigRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Contains(t, apiErr.Message, "API Key is required")
}

func TestSaveMalformedBodyReturns400(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/integrations/demo", bytes.NewBufferString("{not json"))
	req = withIdentity(req, "user-1", "co-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListIntegrationsOverview(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/integrations/demo", SaveConfigRequest{
		Secrets: map[string]string{"api_key": "sk-12345678"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/v1/integrations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Categories map[string][]integrations.OverviewEntry `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Categories["Testing"], 1)
	assert.True(t, resp.Categories["Testing"][0].Configured)
}

func TestConnectionTestEndpoint(t *testing.T) {
	router, st := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/integrations/demo", SaveConfigRequest{
		Secrets: map[string]string{"api_key": "sk-12345678"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/v1/integrations/demo/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result integrations.TestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)

	assert.Equal(t, models.TestStatusSuccess, st.configs["co-1/demo"].TestStatus)
}

func TestDeleteIntegration(t *testing.T) {
	router, st := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/v1/integrations/demo", SaveConfigRequest{
		Secrets: map[string]string{"api_key": "sk-12345678"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/v1/integrations/demo", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, models.StatusDeleted, st.configs["co-1/demo"].Status)

	// Deleting again is a 404.
	rec = doRequest(t, router, http.MethodDelete, "/v1/integrations/demo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetUnknownServiceReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/v1/integrations/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
