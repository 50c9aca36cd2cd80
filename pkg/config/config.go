// Package config provides environment-based configuration for the integration hub.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the integration hub.
type Config struct {
	// Database configuration
	DatabaseDSN string

	// Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Server configuration
	APIHost string
	APIPort int

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Vault holds secrets encryption configuration.
	Vault VaultConfig

	// Registry holds integration catalog configuration.
	Registry RegistryConfig
}

// VaultConfig holds secrets encryption configuration.
type VaultConfig struct {
	// MasterKey is the base64-encoded 32-byte master key used to encrypt
	// integration secrets at rest. It must be provisioned before the
	// service encrypts anything; there is deliberately no generated
	// fallback, because data encrypted under an unpersisted key is lost
	// on restart. Use cmd/vault-keygen to create one.
	MasterKey string
}

// RegistryConfig holds integration catalog configuration.
type RegistryConfig struct {
	// CatalogPath optionally points to a YAML file with additional
	// service descriptors to register on top of the builtin catalog.
	CatalogPath string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDSN:     getEnv("DATABASE_URL", "postgres://localhost:5432/integrationhub?sslmode=disable"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTExpiry:       getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		APIHost:         getEnv("API_HOST", "0.0.0.0"),
		APIPort:         getIntEnv("API_PORT", 8080),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		Vault: VaultConfig{
			MasterKey: getEnv("VAULT_MASTER_KEY", ""),
		},
		Registry: RegistryConfig{
			CatalogPath: getEnv("REGISTRY_CATALOG_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Vault.MasterKey == "" {
		return fmt.Errorf("VAULT_MASTER_KEY is required (generate one with vault-keygen and persist it before first use)")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
