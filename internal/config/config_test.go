package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/excise-workflow/pkg/database"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// chdir moves into an empty directory so that no stray .env is picked up
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	chdir(t)
	path := writeConfig(t, `
server:
  port: 9090
auth:
  jwt_secret: from-file
workflow:
  role_families:
    district_officer: officer
  action_configs:
    FORWARD:
      label: Send up
      color: primary
      requires_confirmation: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, []string{"has_objections"}, cfg.Workflow.DocumentaryConditionKeys)
	assert.Equal(t, "officer", cfg.Workflow.RoleFamilies["district_officer"])

	fwd, ok := cfg.Workflow.ActionConfigs["forward"]
	require.True(t, ok, "viper lowercases map keys")
	assert.Equal(t, "Send up", fwd.Label)
	assert.True(t, fwd.RequiresConfirmation)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	chdir(t)
	path := writeConfig(t, "auth:\n  jwt_secret: from-file\n")

	t.Setenv("EXCISE_SERVER_PORT", "7070")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("EXCISE_CACHE_ENABLED", "true")
	t.Setenv("EXCISE_CACHE_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("EXCISE_DATABASE_DRIVER=pgx\nDATABASE_URL=postgres://excise@localhost/excise\nEXCISE_AUTH_JWT_SECRET=dotenv\n"), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"EXCISE_DATABASE_DRIVER", "DATABASE_URL", "EXCISE_AUTH_JWT_SECRET"} {
			_ = os.Unsetenv(k)
		}
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://excise@localhost/excise", cfg.Database.DSN)
	assert.Equal(t, "dotenv", cfg.Auth.JWTSecret)
}

func TestLoad_Errors(t *testing.T) {
	chdir(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "server:\n  port: 8080\n"))
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: database.DriverSQLite, Path: "x.db"},
			Auth:     AuthConfig{JWTSecret: "s"},
			Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = database.DriverPostgres }, "database.dsn"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"cache without addr", func(c *Config) { c.Cache.Enabled = true }, "cache.redis_addr"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: database.DriverPostgres, DSN: "postgres://x"},
		Auth:     AuthConfig{JWTSecret: "s", Issuer: "iss"},
		Cache:    CacheConfig{Enabled: true, RedisAddr: "r:6379", WarmInterval: time.Minute},
		Workflow: WorkflowConfig{SeedFile: "seed.yaml", RoleFamilies: map[string]string{"a": "b"}},
	}
	cc := cfg.ToContainerConfig()
	assert.Equal(t, "postgres://x", cc.Database.DSN)
	assert.Equal(t, "iss", cc.Auth.Issuer)
	assert.Equal(t, "r:6379", cc.Cache.Addr)
	assert.Equal(t, time.Minute, cc.Cache.WarmInterval)
	assert.Equal(t, "seed.yaml", cc.Workflow.SeedFile)
	assert.Equal(t, "b", cc.Workflow.RoleFamilies["a"])
	assert.NoError(t, cc.Validate())
}

func TestEnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Database: DatabaseConfig{Driver: database.DriverSQLite, Path: filepath.Join(dir, "nested", "excise.db")}}
	require.NoError(t, cfg.EnsureDataDir())
	info, err := os.Stat(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	cfg.Database.Path = ":memory:"
	assert.NoError(t, cfg.EnsureDataDir())
}
