package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aptnotify.yaml")
	err := os.WriteFile(path, []byte(`
gateway:
  base_url: http://gateway.local
dispatch:
  batch_size: 5
  batch_delay: 1s
dues:
  monthly_amount: "750.25"
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gateway.local", cfg.Gateway.BaseURL)
	assert.Equal(t, 5, cfg.Dispatch.BatchSize)
	assert.Equal(t, time.Second, cfg.Dispatch.BatchDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.Dispatch.StaggerDelay)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.True(t, decimal.RequireFromString("750.25").Equal(cfg.Dues.Amount()))
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	t.Setenv("APTNOTIFY_GATEWAY_INSTANCE_ID", "1101")
	t.Setenv("APTNOTIFY_GATEWAY_API_TOKEN", "env-token")

	path := filepath.Join(t.TempDir(), "aptnotify.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1101", cfg.Gateway.InstanceID)
	assert.Equal(t, "env-token", cfg.Gateway.APIToken)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestDuesConfig_AmountMalformed(t *testing.T) {
	assert.True(t, DuesConfig{MonthlyAmount: "abc"}.Amount().IsZero())
	assert.True(t, DuesConfig{}.Amount().IsZero())
}
