package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "https://backend.example.com"
  timeout: "5s"
  retry_attempts: 2
  auth_token: "tok"

state_storage:
  type: sqlite
  file_path: "/tmp/state.db"

server:
  port: 9000
  auth_token: "api-secret"

collections:
  - name: inventory
    endpoint: /api/inventory
    cache_ttl: 5m
  - name: reports
    endpoint: /api/reports/dashboard
    cache_key: dashboard_report
    cache_ttl: 2m
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://backend.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.GetTimeout())
	assert.Equal(t, 2, cfg.API.RetryAttempts)
	assert.Equal(t, "tok", cfg.API.AuthToken)

	assert.Equal(t, "sqlite", cfg.StateStorage.Type)
	assert.Equal(t, "/tmp/state.db", cfg.StateStorage.FilePath)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "api-secret", cfg.Server.AuthToken)

	require.Len(t, cfg.Collections, 2)
	assert.Equal(t, "inventory", cfg.Collections[0].Name)
	assert.Equal(t, 5*time.Minute, cfg.Collections[0].GetCacheTTL())
	assert.Equal(t, "dashboard_report", cfg.Collections[1].CacheKey)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "https://backend.example.com"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.API.GetTimeout())
	assert.Equal(t, 3, cfg.API.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.API.GetRetryBackoff())
	assert.Equal(t, "sqlite", cfg.StateStorage.Type)
	assert.Equal(t, "sync-state.db", cfg.StateStorage.FilePath)
	assert.Equal(t, 30*time.Second, cfg.Connectivity.GetProbeInterval())
	assert.Equal(t, 3*time.Second, cfg.Connectivity.GetProbeTimeout())
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "@every 5m", cfg.Scheduler.Interval)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfigMissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "https://backend.example.com"
`)

	t.Setenv("SYNC_SERVER_PORT", "7777")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestDurationGetterFallbacks(t *testing.T) {
	api := APIConfig{Timeout: "garbage", RetryBackoff: "-1s"}
	assert.Equal(t, 10*time.Second, api.GetTimeout())
	assert.Equal(t, 500*time.Millisecond, api.GetRetryBackoff())

	col := CollectionConfig{CacheTTL: "not-a-duration"}
	assert.Equal(t, time.Duration(0), col.GetCacheTTL())

	conn := ConnectivityConfig{}
	assert.Equal(t, 30*time.Second, conn.GetProbeInterval())
	assert.Equal(t, 3*time.Second, conn.GetProbeTimeout())
}
