package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ModeStandard, cfg.Validation.Mode)
	assert.Equal(t, 10000, cfg.Validation.MaxStringLen)
	assert.Equal(t, 10, cfg.Validation.FanOutLimit)
	assert.Equal(t, 5, cfg.Recovery.FailureThreshold)
	assert.Equal(t, 3, cfg.Recovery.RetryCeiling)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ModeStandard, cfg.Validation.Mode)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolgate.yaml")
	data := []byte(`
validation:
  mode: strict
  max_string_len: 2000
  fan_out_limit: 4
recovery:
  failure_threshold: 2
  cool_down: 10s
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeStrict, cfg.Validation.Mode)
	assert.Equal(t, 2000, cfg.Validation.MaxStringLen)
	assert.Equal(t, 4, cfg.Validation.FanOutLimit)
	assert.Equal(t, 2, cfg.Recovery.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.CoolDown())
	// Unset fields keep defaults.
	assert.Equal(t, 3, cfg.Recovery.RetryCeiling)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("mode override", func(t *testing.T) {
		t.Setenv("TOOLGATE_VALIDATION_MODE", "permissive")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, ModePermissive, cfg.Validation.Mode)
	})

	t.Run("numeric overrides ignore garbage", func(t *testing.T) {
		t.Setenv("TOOLGATE_MAX_STRING_LEN", "not-a-number")
		t.Setenv("TOOLGATE_FAN_OUT_LIMIT", "3")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, 10000, cfg.Validation.MaxStringLen)
		assert.Equal(t, 3, cfg.Validation.FanOutLimit)
	})

	t.Run("store path enables persistence", func(t *testing.T) {
		t.Setenv("TOOLGATE_STORE_PATH", "/tmp/audit.db")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Store.Enabled)
		assert.Equal(t, "/tmp/audit.db", cfg.Store.Path)
	})
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Validation.Mode = "paranoid" }},
		{"zero string len", func(c *Config) { c.Validation.MaxStringLen = 0 }},
		{"zero fan out", func(c *Config) { c.Validation.FanOutLimit = 0 }},
		{"zero threshold", func(c *Config) { c.Recovery.FailureThreshold = 0 }},
		{"bad duration", func(c *Config) { c.Recovery.CoolDown = "thirty seconds" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := Default()
	cfg.Validation.CacheTTL = ""
	cfg.Execution.Timeout = ""

	assert.Equal(t, time.Duration(0), cfg.CacheTTL())
	assert.Equal(t, 30*time.Second, cfg.ExecTimeout())
}
