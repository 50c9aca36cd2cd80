// Package main provides the entry point for the API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimbuslabs/integration-hub/internal/api"
	"github.com/nimbuslabs/integration-hub/internal/auth"
	"github.com/nimbuslabs/integration-hub/internal/integrations"
	"github.com/nimbuslabs/integration-hub/internal/registry"
	pgstore "github.com/nimbuslabs/integration-hub/internal/store/postgres"
	"github.com/nimbuslabs/integration-hub/internal/vault"
	"github.com/nimbuslabs/integration-hub/pkg/config"
	"github.com/nimbuslabs/integration-hub/pkg/logger"
)

func main() {
	log := logger.New(slog.LevelInfo, true)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize database store
	storeCfg := pgstore.DefaultConfig(cfg.DatabaseDSN)
	store, err := pgstore.NewPostgresStore(storeCfg, log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize the secret vault. A missing or malformed master key is
	// a hard startup failure; run vault-keygen to create one.
	masterKey, err := vault.ParseKey(cfg.Vault.MasterKey)
	if err != nil {
		log.Error("invalid vault master key", "error", err)
		os.Exit(1)
	}
	v, err := vault.New(masterKey, log.Logger)
	if err != nil {
		log.Error("failed to initialize vault", "error", err)
		os.Exit(1)
	}

	// Initialize the service registry, extended from a catalog file when
	// one is configured.
	reg := registry.Builtin()
	if cfg.Registry.CatalogPath != "" {
		f, err := os.Open(cfg.Registry.CatalogPath)
		if err != nil {
			log.Error("failed to open registry catalog", "error", err, "path", cfg.Registry.CatalogPath)
			os.Exit(1)
		}
		err = reg.LoadCatalog(f)
		f.Close()
		if err != nil {
			log.Error("failed to load registry catalog", "error", err, "path", cfg.Registry.CatalogPath)
			os.Exit(1)
		}
		log.Info("loaded registry catalog", "path", cfg.Registry.CatalogPath)
	}

	// Initialize auth service
	authCfg := &auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}
	authService := auth.NewService(authCfg, log.Logger)

	// Initialize the orchestration service and the API server
	service := integrations.NewService(store, v, reg, nil, log.Logger)
	server := api.NewServer(cfg, store, store, authService, service, log.Logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	log.Info("starting API server",
		"host", cfg.APIHost,
		"port", cfg.APIPort,
	)

	if err := server.Start(ctx); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	// Give time for graceful shutdown
	time.Sleep(100 * time.Millisecond)
	log.Info("server stopped")
}
