package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/nimbuslabs/integration-hub/internal/models"
	"github.com/nimbuslabs/integration-hub/internal/store"
)

// mockCompanyStore implements store.CompanyStore for middleware tests.
type mockCompanyStore struct {
	companies map[string]*models.Company // by ID
	members   map[string]bool            // companyID+"/"+userID
	defaults  map[string]string          // userID -> companyID
}

func newMockCompanyStore() *mockCompanyStore {
	return &mockCompanyStore{
		companies: make(map[string]*models.Company),
		members:   make(map[string]bool),
		defaults:  make(map[string]string),
	}
}

func (m *mockCompanyStore) Create(ctx context.Context, company *models.Company) error {
	m.companies[company.ID] = company
	return nil
}

func (m *mockCompanyStore) Get(ctx context.Context, id string) (*models.Company, error) {
	if company, ok := m.companies[id]; ok {
		return company, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockCompanyStore) GetBySlug(ctx context.Context, slug string) (*models.Company, error) {
	for _, company := range m.companies {
		if company.Slug == slug {
			return company, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockCompanyStore) IsMember(ctx context.Context, companyID, userID string) (bool, error) {
	return m.members[companyID+"/"+userID], nil
}

func (m *mockCompanyStore) AddMember(ctx context.Context, companyID, userID, role string) error {
	m.members[companyID+"/"+userID] = true
	return nil
}

func (m *mockCompanyStore) GetDefaultForUser(ctx context.Context, userID string) (*models.Company, error) {
	companyID, ok := m.defaults[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.companies[companyID], nil
}

// companyTestStore implements store.Store over the company mock.
type companyTestStore struct {
	companies *mockCompanyStore
}

func (s *companyTestStore) Companies() store.CompanyStore        { return s.companies }
func (s *companyTestStore) Integrations() store.IntegrationStore { return nil }
func (s *companyTestStore) Audit() store.AuditStore              { return nil }
func (s *companyTestStore) Close() error                         { return nil }

func (s *companyTestStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(s)
}

func companyTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newCompanyRequest builds a request carrying an authenticated user.
func newCompanyRequest(userID string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	ctx := context.WithValue(req.Context(), UserIDKey, userID)
	return req.WithContext(ctx)
}

func serveCompanyContext(st store.Store, req *http.Request) (*httptest.ResponseRecorder, *models.Company) {
	var resolved *models.Company
	handler := CompanyContext(st, companyTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved = GetCompany(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, resolved
}

func TestCompanyContextResolvesDefault(t *testing.T) {
	companies := newMockCompanyStore()
	companies.companies["co-1"] = &models.Company{ID: "co-1", Name: "Acme", Slug: "acme"}
	companies.defaults["user-1"] = "co-1"
	st := &companyTestStore{companies: companies}

	rec, resolved := serveCompanyContext(st, newCompanyRequest("user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resolved == nil || resolved.ID != "co-1" {
		t.Errorf("resolved company = %+v, want co-1", resolved)
	}
}

// A user with no company membership at all gets a routine 403, not a
// server error.
func TestCompanyContextNoMembershipIsForbidden(t *testing.T) {
	st := &companyTestStore{companies: newMockCompanyStore()}

	rec, _ := serveCompanyContext(st, newCompanyRequest("user-without-company", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestCompanyContextHeaderRequiresMembership(t *testing.T) {
	companies := newMockCompanyStore()
	companies.companies["co-1"] = &models.Company{ID: "co-1", Name: "Acme", Slug: "acme"}
	st := &companyTestStore{companies: companies}

	headers := map[string]string{"X-Company-ID": "co-1"}

	rec, _ := serveCompanyContext(st, newCompanyRequest("outsider", headers))
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-member status = %d, want 403", rec.Code)
	}

	companies.members["co-1/outsider"] = true
	rec, resolved := serveCompanyContext(st, newCompanyRequest("outsider", headers))
	if rec.Code != http.StatusOK {
		t.Errorf("member status = %d, want 200", rec.Code)
	}
	if resolved == nil || resolved.ID != "co-1" {
		t.Errorf("resolved company = %+v, want co-1", resolved)
	}
}

func TestCompanyContextUnknownCompanyIs404(t *testing.T) {
	st := &companyTestStore{companies: newMockCompanyStore()}

	rec, _ := serveCompanyContext(st, newCompanyRequest("user-1", map[string]string{"X-Company-ID": "nope"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCompanyContextRequiresAuthentication(t *testing.T) {
	st := &companyTestStore{companies: newMockCompanyStore()}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, _ := serveCompanyContext(st, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
