// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nimbuslabs/integration-hub/internal/models"
	"github.com/nimbuslabs/integration-hub/internal/store"
)

// CompanyContextKey is the context key for the tenant company.
const CompanyContextKey contextKey = "company"

// CompanyContext returns a middleware that resolves the tenant company
// for the request. The company comes from the X-Company-ID header, the
// X-Company-Slug header, or the user's default company, in that order.
// The user must be a member of the resolved company.
func CompanyContext(st store.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == "" {
				writeUnauthorized(w, "Authentication required")
				return
			}

			companyID := r.Header.Get("X-Company-ID")
			companySlug := r.Header.Get("X-Company-Slug")

			var company *models.Company
			var err error

			switch {
			case companyID != "":
				company, err = st.Companies().Get(r.Context(), companyID)
				if err != nil {
					logger.Debug("company not found", "id", companyID, "error", err)
					writeNotFound(w, "Company not found")
					return
				}
			case companySlug != "":
				company, err = st.Companies().GetBySlug(r.Context(), companySlug)
				if err != nil {
					logger.Debug("company not found", "slug", companySlug, "error", err)
					writeNotFound(w, "Company not found")
					return
				}
			default:
				company, err = st.Companies().GetDefaultForUser(r.Context(), userID)
				if err != nil {
					// A user with no memberships is a routine denial, not
					// a server fault.
					if errors.Is(err, store.ErrNotFound) {
						logger.Debug("user has no company membership", "user_id", userID)
						writeForbidden(w, "No company access")
						return
					}
					logger.Error("failed to get default company", "error", err, "user_id", userID)
					writeInternalError(w, "Failed to get default company")
					return
				}
				// Default company lookup already proves membership.
				ctx := context.WithValue(r.Context(), CompanyContextKey, company)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			isMember, err := st.Companies().IsMember(r.Context(), company.ID, userID)
			if err != nil {
				logger.Error("failed to check company membership",
					"error", err, "company_id", company.ID, "user_id", userID)
				writeInternalError(w, "Failed to verify company membership")
				return
			}
			if !isMember {
				logger.Debug("user not member of company",
					"user_id", userID,
					"company_id", company.ID,
				)
				writeForbidden(w, "Not a member of this company")
				return
			}

			ctx := context.WithValue(r.Context(), CompanyContextKey, company)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCompany extracts the company from the request context.
func GetCompany(ctx context.Context) *models.Company {
	if v := ctx.Value(CompanyContextKey); v != nil {
		return v.(*models.Company)
	}
	return nil
}

// GetCompanyID extracts the company ID from the request context.
// Returns empty string if no company is set.
func GetCompanyID(ctx context.Context) string {
	if company := GetCompany(ctx); company != nil {
		return company.ID
	}
	return ""
}
