// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

// Package config loads service configuration from defaults, an optional YAML
// file, the environment, and command-line flags (highest precedence last).
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/tunevault/tunevault/internal/xdg"
)

// Default values.
const (
	DefaultHTTPAddr      = ":8080"
	DefaultMetricsAddr   = "127.0.0.1:9100"
	DefaultLogFormat     = "json"
	DefaultSessionTTL    = 30 * 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// Config holds the service configuration.
type Config struct {
	// HTTPAddr is the listen address for the API server.
	HTTPAddr string `koanf:"http-addr"`

	// MetricsAddr is the listen address for metrics and health probes.
	// Empty disables the observability server.
	MetricsAddr string `koanf:"metrics-addr"`

	// DatabaseURL is the PostgreSQL connection string. The DATABASE_URL
	// environment variable takes precedence over the config file.
	DatabaseURL string `koanf:"database-url"`

	// DataDir is the root for per-user storage namespaces.
	DataDir string `koanf:"data-dir"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log-format"`

	// SessionTTL is the lifetime of newly established sessions.
	SessionTTL time.Duration `koanf:"session-ttl"`

	// SweepInterval is how often expired sessions are purged.
	SweepInterval time.Duration `koanf:"sweep-interval"`
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("http-addr is required")
	}
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database-url (or DATABASE_URL) is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.SessionTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session-ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("sweep-interval must be positive")
	}
	return nil
}

// Load builds a Config. Precedence, lowest to highest: built-in defaults,
// the YAML file at path (optional when path is empty), explicitly set flags,
// then the DATABASE_URL environment variable. Flags left at their defaults
// do not override file values.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		// posflag retains file values for flags the user did not set.
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "merge flags").
				Wrap(err)
		}
	}

	cfg := &Config{
		HTTPAddr:      DefaultHTTPAddr,
		MetricsAddr:   DefaultMetricsAddr,
		DataDir:       xdg.DataDir(),
		LogFormat:     DefaultLogFormat,
		SessionTTL:    DefaultSessionTTL,
		SweepInterval: DefaultSweepInterval,
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}

	// An unset --data-dir flag merges in as "", which must not mask the
	// XDG default.
	if cfg.DataDir == "" {
		cfg.DataDir = xdg.DataDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
