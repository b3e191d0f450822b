package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())

	assert.Equal(t, 5*time.Second, cfg.Sandbox.ExecTimeout)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.CallbackTimeout)
	assert.Equal(t, 200, cfg.Sandbox.ConsoleLimit)

	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, 100, cfg.Bus.History)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.Equal(t, 3, cfg.Fetch.Retries)
}

func TestLoadUsesDefaultTags(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Sandbox, cfg.Sandbox)
	assert.Equal(t, def.Bus, cfg.Bus)
	assert.Equal(t, def.Fetch, cfg.Fetch)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                  "9000",
		"HOST":                  "127.0.0.1",
		"SANDBOX_EXEC_TIMEOUT":  "750ms",
		"SANDBOX_CONSOLE_LIMIT": "10",
		"DATA_DIR":              "/var/lib/webos",
		"BUS_HISTORY":           "25",
		"BUS_CLIENT_TIMEOUT":    "30s",
		"LOG_LEVEL":             "debug",
		"LOG_DEV":               "true",
		"RATE_LIMIT_RPS":        "500",
		"RATE_LIMIT_ENABLED":    "false",
		"FETCH_RPS":             "2.5",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, 750*time.Millisecond, cfg.Sandbox.ExecTimeout)
	assert.Equal(t, 10, cfg.Sandbox.ConsoleLimit)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.CallbackTimeout)
	assert.Equal(t, "/var/lib/webos", cfg.Storage.DataDir)
	assert.Equal(t, 25, cfg.Bus.History)
	assert.Equal(t, 30*time.Second, cfg.Bus.ClientTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 2.5, cfg.Fetch.RequestsPerSecond)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("SANDBOX_EXEC_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, Default(), cfg)
}

func TestLoadAllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,https://desk.example.com")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:3000", "https://desk.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, Default().Server.AllowedOrigins)
}
