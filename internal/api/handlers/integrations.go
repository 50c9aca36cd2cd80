// Package handlers implements the HTTP handlers for the API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nimbuslabs/integration-hub/internal/api/middleware"
	"github.com/nimbuslabs/integration-hub/internal/integrations"
	"github.com/nimbuslabs/integration-hub/internal/registry"
	"github.com/nimbuslabs/integration-hub/internal/store"
)

// IntegrationHandler handles integration configuration HTTP requests.
type IntegrationHandler struct {
	service *integrations.Service
	logger  *slog.Logger
}

// NewIntegrationHandler creates a new integration handler.
func NewIntegrationHandler(service *integrations.Service, logger *slog.Logger) *IntegrationHandler {
	return &IntegrationHandler{
		service: service,
		logger:  logger,
	}
}

func actorFromRequest(r *http.Request) integrations.Actor {
	return integrations.Actor{
		UserID:    middleware.GetUserID(r.Context()),
		IPAddress: r.RemoteAddr,
	}
}

// List handles GET /v1/integrations - the catalog overview grouped by
// category, with configuration state per service.
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())

	overview, err := h.service.Overview(r.Context(), companyID)
	if err != nil {
		h.logger.Error("failed to build integrations overview", "error", err, "company_id", companyID)
		WriteInternalError(w, "Failed to list integrations")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"categories": overview})
}

// Get handles GET /v1/integrations/:slug - the masked display state.
func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	slug := chi.URLParam(r, "slug")

	display, err := h.service.Get(r.Context(), companyID, slug)
	if err != nil {
		h.writeServiceError(w, err, slug)
		return
	}

	WriteJSON(w, http.StatusOK, display)
}

// SaveConfigRequest represents the request body for saving a configuration.
type SaveConfigRequest struct {
	Config  map[string]string `json:"config"`
	Secrets map[string]string `json:"secrets"`
}

// Save handles POST and PUT /v1/integrations/:slug - validates and
// persists a configuration. Masked secret values in the body are
// treated as unchanged.
func (h *IntegrationHandler) Save(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	slug := chi.URLParam(r, "slug")

	var req SaveConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	configID, err := h.service.Save(r.Context(), companyID, actorFromRequest(r), slug, req.Config, req.Secrets)
	if err != nil {
		h.writeServiceError(w, err, slug)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"id":     configID,
		"status": "saved",
	})
}

// Test handles POST /v1/integrations/:slug/test - runs a connection test
// against the stored configuration.
func (h *IntegrationHandler) Test(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	slug := chi.URLParam(r, "slug")

	result, err := h.service.TestConnection(r.Context(), companyID, actorFromRequest(r), slug)
	if err != nil {
		h.writeServiceError(w, err, slug)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// Delete handles DELETE /v1/integrations/:slug - soft-deletes a
// configuration.
func (h *IntegrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	slug := chi.URLParam(r, "slug")

	if err := h.service.Delete(r.Context(), companyID, actorFromRequest(r), slug); err != nil {
		h.writeServiceError(w, err, slug)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors onto HTTP responses. Validation
// failures surface the aggregate message; everything unexpected gets a
// generic 500 with details only in the log.
func (h *IntegrationHandler) writeServiceError(w http.ResponseWriter, err error, slug string) {
	var verr *registry.ValidationError
	switch {
	case errors.Is(err, registry.ErrUnknownService):
		WriteNotFound(w, "Unknown service: "+slug)
	case errors.As(err, &verr):
		WriteBadRequest(w, verr.Error())
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, "Integration not configured: "+slug)
	case errors.Is(err, store.ErrConflict):
		WriteConflict(w, "Configuration was modified concurrently, retry the request")
	default:
		h.logger.Error("integration request failed", "error", err, "service_slug", slug)
		WriteInternalError(w, "Internal server error")
	}
}
