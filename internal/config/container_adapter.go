package config

import (
	"github.com/garyjia/excise-workflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Auth: container.AuthConfig{
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
			TokenTTL:  c.Auth.TokenTTL,
		},
		Cache: container.CacheConfig{
			Enabled:      c.Cache.Enabled,
			Addr:         c.Cache.RedisAddr,
			Password:     c.Cache.RedisPassword,
			DB:           c.Cache.RedisDB,
			TTL:          c.Cache.TTL,
			KeyPrefix:    c.Cache.KeyPrefix,
			WarmInterval: c.Cache.WarmInterval,
		},
		Metrics: container.MetricsConfig{
			Enabled:   c.Metrics.Enabled,
			Path:      c.Metrics.Path,
			Namespace: c.Metrics.Namespace,
		},
		Workflow: container.WorkflowConfig{
			ActionConfigs:            c.Workflow.ActionConfigs,
			DocumentaryConditionKeys: c.Workflow.DocumentaryConditionKeys,
			RoleFamilies:             c.Workflow.RoleFamilies,
			SeedFile:                 c.Workflow.SeedFile,
		},
	}
}
