// Package config loads service configuration from a YAML file with defaults
// and PASSVAL_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the password validation service.
type Config struct {
	// Listen is the address the HTTP server binds to.
	// Default: ":8080"
	Listen string `yaml:"listen"`

	// DatabaseURL is the Postgres connection string for the rule registry.
	DatabaseURL string `yaml:"database_url"`

	// LookupTimeout bounds each outbound call: the user lookup and every
	// programmatic rule check. Default: 1s
	LookupTimeout time.Duration `yaml:"lookup_timeout"`

	// RuleCacheTTL is the time-to-live for the per-tenant enabled-rules
	// cache. Zero keeps entries until a rule mutation invalidates them.
	RuleCacheTTL time.Duration `yaml:"rule_cache_ttl"`

	// LogLevel is the minimum log level (TRACE..FATAL). Default: "INFO"
	LogLevel string `yaml:"log_level"`
}

// ApplyDefaults fills in zero-valued fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
}

// Validate checks the configuration for values the service cannot run with.
func Validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if cfg.RuleCacheTTL < 0 {
		return fmt.Errorf("rule_cache_ttl cannot be negative")
	}
	return nil
}

// Load reads configuration from the YAML file at path, applies defaults and
// environment overrides, and validates the result. An empty path skips the
// file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies PASSVAL_* environment variables on top of the
// file contents. Environment always wins.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PASSVAL_LISTEN"); val != "" {
		cfg.Listen = val
	}
	if val := os.Getenv("PASSVAL_DATABASE_URL"); val != "" {
		cfg.DatabaseURL = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = val
	}
	if val := os.Getenv("PASSVAL_LOOKUP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.LookupTimeout = d
		}
	}
	if val := os.Getenv("PASSVAL_RULE_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.RuleCacheTTL = d
		}
	}
	if val := os.Getenv("PASSVAL_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
}
