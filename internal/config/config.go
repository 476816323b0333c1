// Package config holds all toolgate configuration.
// Configuration is consumed once at startup and never mutated afterwards;
// components receive the values they need at construction time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidationMode controls how aggressively the validator rejects input.
type ValidationMode string

const (
	// ModeStandard sanitizes where policy allows and rejects critical issues.
	ModeStandard ValidationMode = "standard"
	// ModeStrict rejects anything that would otherwise be sanitized.
	ModeStrict ValidationMode = "strict"
	// ModePermissive downgrades warnings but never critical security issues.
	ModePermissive ValidationMode = "permissive"
)

// Config holds all toolgate configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Validation settings
	Validation ValidationConfig `yaml:"validation"`

	// Execution settings
	Execution ExecutionConfig `yaml:"execution"`

	// Recovery settings
	Recovery RecoveryConfig `yaml:"recovery"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Store (audit sink persistence)
	Store StoreConfig `yaml:"store"`
}

// ValidationConfig configures the unified validator.
type ValidationConfig struct {
	Mode          ValidationMode `yaml:"mode"`           // standard, strict, permissive
	CacheTTL      string         `yaml:"cache_ttl"`      // e.g. "5s"; empty disables the cache
	MaxStringLen  int            `yaml:"max_string_len"` // ceiling for string parameters
	FanOutLimit   int            `yaml:"fan_out_limit"`  // max nested sub-invocations per call
	MinConfidence float64        `yaml:"min_confidence"` // selector ambiguity floor
}

// ExecutionConfig configures the executor.
type ExecutionConfig struct {
	Timeout        string `yaml:"timeout"`         // hard per-invocation timeout, e.g. "30s"
	WorkingDir     string `yaml:"working_dir"`     // default working directory for scopes
	PermissionMode string `yaml:"permission_mode"` // read_only, workspace, unrestricted
}

// RecoveryConfig configures the recovery manager and circuit breaker.
type RecoveryConfig struct {
	FailureThreshold int    `yaml:"failure_threshold"` // consecutive failures before the breaker opens
	CoolDown         string `yaml:"cool_down"`         // initial open-state cool-down, e.g. "30s"
	MaxCoolDown      string `yaml:"max_cool_down"`     // cap for doubled cool-downs
	RetryCeiling     int    `yaml:"retry_ceiling"`     // max retry attempts per failure
	BackoffBase      string `yaml:"backoff_base"`      // base delay for exponential backoff
	FailureWindow    string `yaml:"failure_window"`    // rolling window for consecutive failures
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// StoreConfig configures the SQLite audit store.
type StoreConfig struct {
	Path    string `yaml:"path"`    // database file; empty disables persistence
	Enabled bool   `yaml:"enabled"` // record audit events and strategy stats
}

// Default returns production defaults.
func Default() *Config {
	return &Config{
		Name:    "toolgate",
		Version: "0.3.0",
		Validation: ValidationConfig{
			Mode:          ModeStandard,
			CacheTTL:      "5s",
			MaxStringLen:  10000,
			FanOutLimit:   10,
			MinConfidence: 0.25,
		},
		Execution: ExecutionConfig{
			Timeout:        "30s",
			PermissionMode: "workspace",
		},
		Recovery: RecoveryConfig{
			FailureThreshold: 5,
			CoolDown:         "30s",
			MaxCoolDown:      "10m",
			RetryCeiling:     3,
			BackoffBase:      "500ms",
			FailureWindow:    "2m",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
		Store: StoreConfig{
			Enabled: false,
		},
	}
}

// Load reads configuration from a YAML file, applies defaults for missing
// fields, then applies environment overrides. A missing file is not an
// error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies TOOLGATE_* environment variables over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TOOLGATE_VALIDATION_MODE"); v != "" {
		c.Validation.Mode = ValidationMode(v)
	}
	if v := os.Getenv("TOOLGATE_CACHE_TTL"); v != "" {
		c.Validation.CacheTTL = v
	}
	if v := os.Getenv("TOOLGATE_MAX_STRING_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Validation.MaxStringLen = n
		}
	}
	if v := os.Getenv("TOOLGATE_FAN_OUT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Validation.FanOutLimit = n
		}
	}
	if v := os.Getenv("TOOLGATE_EXEC_TIMEOUT"); v != "" {
		c.Execution.Timeout = v
	}
	if v := os.Getenv("TOOLGATE_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Recovery.FailureThreshold = n
		}
	}
	if v := os.Getenv("TOOLGATE_RETRY_CEILING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Recovery.RetryCeiling = n
		}
	}
	if v := os.Getenv("TOOLGATE_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
	if v := os.Getenv("TOOLGATE_STORE_PATH"); v != "" {
		c.Store.Path = v
		c.Store.Enabled = true
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Validation.Mode {
	case ModeStandard, ModeStrict, ModePermissive:
	default:
		return fmt.Errorf("invalid validation mode: %q", c.Validation.Mode)
	}
	if c.Validation.MaxStringLen <= 0 {
		return fmt.Errorf("max_string_len must be positive, got %d", c.Validation.MaxStringLen)
	}
	if c.Validation.FanOutLimit <= 0 {
		return fmt.Errorf("fan_out_limit must be positive, got %d", c.Validation.FanOutLimit)
	}
	if c.Recovery.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive, got %d", c.Recovery.FailureThreshold)
	}
	for name, raw := range map[string]string{
		"validation.cache_ttl":    c.Validation.CacheTTL,
		"execution.timeout":       c.Execution.Timeout,
		"recovery.cool_down":      c.Recovery.CoolDown,
		"recovery.max_cool_down":  c.Recovery.MaxCoolDown,
		"recovery.backoff_base":   c.Recovery.BackoffBase,
		"recovery.failure_window": c.Recovery.FailureWindow,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, raw)
		}
	}
	return nil
}

// CacheTTL returns the parsed validation cache TTL (zero disables caching).
func (c *Config) CacheTTL() time.Duration { return parseDuration(c.Validation.CacheTTL, 0) }

// ExecTimeout returns the parsed per-invocation timeout.
func (c *Config) ExecTimeout() time.Duration {
	return parseDuration(c.Execution.Timeout, 30*time.Second)
}

// CoolDown returns the parsed initial breaker cool-down.
func (c *Config) CoolDown() time.Duration {
	return parseDuration(c.Recovery.CoolDown, 30*time.Second)
}

// MaxCoolDown returns the parsed breaker cool-down cap.
func (c *Config) MaxCoolDown() time.Duration {
	return parseDuration(c.Recovery.MaxCoolDown, 10*time.Minute)
}

// BackoffBase returns the parsed retry backoff base delay.
func (c *Config) BackoffBase() time.Duration {
	return parseDuration(c.Recovery.BackoffBase, 500*time.Millisecond)
}

// FailureWindow returns the parsed rolling failure window.
func (c *Config) FailureWindow() time.Duration {
	return parseDuration(c.Recovery.FailureWindow, 2*time.Minute)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
