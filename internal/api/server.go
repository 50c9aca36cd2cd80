// Package api provides the HTTP API server for the integration hub.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nimbuslabs/integration-hub/internal/api/handlers"
	"github.com/nimbuslabs/integration-hub/internal/api/health"
	"github.com/nimbuslabs/integration-hub/internal/api/middleware"
	"github.com/nimbuslabs/integration-hub/internal/auth"
	"github.com/nimbuslabs/integration-hub/internal/integrations"
	"github.com/nimbuslabs/integration-hub/internal/store"
	"github.com/nimbuslabs/integration-hub/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	store         store.Store
	auth          *auth.Service
	integrations  *integrations.Service
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies. The
// pinger is the database handle used by the health endpoint; it may be
// nil in tests.
func NewServer(cfg *config.Config, st store.Store, pinger health.Pinger, authSvc *auth.Service, svc *integrations.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:        st,
		auth:         authSvc,
		integrations: svc,
		config:       cfg,
		logger:       logger,
	}

	s.healthChecker = health.NewChecker(pinger, Version)
	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Health check endpoint (no auth required)
	r.Get("/health", s.healthChecker.Handler())

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		authMiddleware := middleware.NewAuthMiddleware(s.auth, s.logger)
		r.Use(authMiddleware.Authenticate)
		r.Use(middleware.CompanyContext(s.store, s.logger))

		integrationHandler := handlers.NewIntegrationHandler(s.integrations, s.logger)
		r.Route("/integrations", func(r chi.Router) {
			r.Get("/", integrationHandler.List)
			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", integrationHandler.Get)
				r.Post("/", integrationHandler.Save)
				r.Put("/", integrationHandler.Save)
				r.Delete("/", integrationHandler.Delete)
				r.Post("/test", integrationHandler.Test)
			})
		})
	})

	s.router = r
}

// Router returns the configured router, for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start starts the HTTP server and blocks until the context is
// cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down API server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	return nil
}
