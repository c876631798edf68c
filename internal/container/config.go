// Package container provides dependency injection and lifecycle management
// for the excise workflow service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/excise-workflow/internal/application/workflow"
	"github.com/garyjia/excise-workflow/pkg/database"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Server configuration
	Server ServerConfig

	// Auth configuration
	Auth AuthConfig

	// Cache configuration
	Cache CacheConfig

	// Metrics configuration
	Metrics MetricsConfig

	// Workflow engine configuration
	Workflow WorkflowConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite3 or pgx
	Driver string

	// Path to SQLite database file
	Path string

	// DSN is the PostgreSQL connection string
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// CacheConfig holds Redis snapshot cache settings.
type CacheConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	TTL          time.Duration
	KeyPrefix    string
	WarmInterval time.Duration
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// WorkflowConfig holds engine settings.
type WorkflowConfig struct {
	ActionConfigs            map[string]workflow.ActionConfig
	DocumentaryConditionKeys []string
	RoleFamilies             map[string]string

	// SeedFile is a catalog document imported on start; empty skips seeding
	SeedFile string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          database.DriverSQLite,
			Path:            "data/excise.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:   "excise-workflow",
			TokenTTL: 12 * time.Hour,
		},
		Cache: CacheConfig{
			Addr:         "localhost:6379",
			TTL:          10 * time.Minute,
			KeyPrefix:    "excise:catalog:",
			WarmInterval: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "excise",
		},
		Workflow: WorkflowConfig{
			DocumentaryConditionKeys: []string{"has_objections"},
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	switch c.Database.Driver {
	case database.DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case database.DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.redis_addr is required")
	}

	return nil
}
