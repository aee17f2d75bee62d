package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gpsjus-scraper/internal/scraper"
	"github.com/JakeFAU/gpsjus-scraper/internal/storage"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, ":8000", cfg.Server.Addr())
	assert.InDelta(t, 1.0, cfg.Server.TokenRateLimit.RPS, 0)
	assert.Equal(t, 5, cfg.Server.TokenRateLimit.Burst)
	assert.Equal(t, scraper.DefaultBaseURL, cfg.Scraper.BaseURL)
	assert.True(t, cfg.Scraper.Headless)
	assert.Zero(t, cfg.Scraper.MaxUnits)
	assert.Equal(t, time.Second, cfg.Scraper.UnitInterval)
	assert.Equal(t, storage.BackendFile, cfg.Storage.Backend)
	assert.Equal(t, storage.DefaultFilePath, cfg.Storage.FilePath)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, scraper.DefaultLayout(), cfg.Layout)
	assert.False(t, cfg.Notify.Enabled())
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: true
  level: debug
scraper:
  headless: false
  max_units: 5
  unit_interval: 2s
  table_timeout: 3s
browser:
  remote_url: ws://chrome:9222
layout:
  ready_marker: "//h3[text()='Acervo Geral']"
storage:
  backend: postgres
  postgres:
    dsn: postgres://gpsjus@db/gpsjus
    table: tjrn
notify:
  project_id: proj
  topic: datasets
auth:
  jwt_secret: 0123456789abcdef
  token_ttl: 15m
  users:
    - username: analista
      password_hash: "$2a$10$abcdefghijklmnopqrstuu5C1c7kH1iyPj4d8Ck1lYlUYoF6ZUf4S"
      disabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Logging.Development)
	assert.False(t, cfg.Scraper.Headless)
	assert.Equal(t, 5, cfg.Scraper.MaxUnits)
	assert.Equal(t, 2*time.Second, cfg.Scraper.UnitInterval)
	assert.Equal(t, 3*time.Second, cfg.Scraper.Options().TableTimeout)
	assert.Equal(t, "ws://chrome:9222", cfg.Browser.RemoteURL)
	assert.Equal(t, "//h3[text()='Acervo Geral']", cfg.Layout.ReadyMarker)
	assert.Equal(t, scraper.DefaultLayout().Custody, cfg.Layout.Custody)
	assert.Equal(t, "tjrn", cfg.Storage.Postgres.Table)
	assert.True(t, cfg.Notify.Enabled())
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, "analista", cfg.Auth.Users[0].Username)
	assert.True(t, cfg.Auth.Users[0].Disabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GPSJUS_SERVER_PORT", "7070")
	t.Setenv("GPSJUS_SCRAPER_MAX_UNITS", "3")
	t.Setenv("GPSJUS_STORAGE_FILE_PATH", "/tmp/out.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Scraper.MaxUnits)
	assert.Equal(t, "/tmp/out.json", cfg.Storage.FilePath)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GPSJUS_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("GPSJUS_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("GPSJUS_TEST_DOTENV"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("GPSJUS_TEST_DOTENV"))

	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "max units", mutate: func(c *Config) { c.Scraper.MaxUnits = -1 }, wantErr: "scraper.max_units"},
		{name: "timeouts", mutate: func(c *Config) { c.Scraper.TableTimeout = 0 }, wantErr: "scraper timeouts"},
		{name: "level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: "logging.level"},
		{name: "storage", mutate: func(c *Config) { c.Storage.Backend = "s3" }, wantErr: "storage.backend"},
		{name: "notify", mutate: func(c *Config) { c.Notify.Topic = "datasets" }, wantErr: "notify.project_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}
