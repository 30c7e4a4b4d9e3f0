// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the wombat tools.
//
// Configuration is loaded from a single YAML file specified by:
//   - WOMBAT_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery, and individual values
// cannot be overridden from the environment. The only expansion
// performed is ${VAR} substitution in paths, for portability of shared
// config files.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the wombat tools.
type Config struct {
	// Share configures the hosting side (wombat-share).
	Share ShareConfig `yaml:"share"`

	// Receive configures the receiving side (wombat-receive).
	Receive ReceiveConfig `yaml:"receive"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`
}

// ShareConfig configures a hosting session.
type ShareConfig struct {
	// ExternalPort is the well-known TCP port mapped on the gateway
	// and bound locally. Fixed per machine: only one session can be
	// hosted on it at a time.
	// Default: 45678
	ExternalPort int `yaml:"external_port"`

	// Description is the mapping tag shown in router admin UIs.
	// Default: TnLCombatLogs
	Description string `yaml:"description"`

	// LeaseSeconds bounds the mapping lifetime on the gateway.
	// 0 keeps the mapping until the session releases it.
	LeaseSeconds int `yaml:"lease_seconds"`

	// ConnTimeout bounds each accepted connection's handshake and
	// transfer, as a Go duration string.
	// Default: 10s
	ConnTimeout string `yaml:"conn_timeout"`
}

// ReceiveConfig configures the receiving side.
type ReceiveConfig struct {
	// Timeout is the whole-exchange budget for one receive attempt
	// (connect, authenticate, read), as a Go duration string.
	// Default: 10s
	Timeout string `yaml:"timeout"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// CombatLogs is the directory scanned for log files when
	// wombat-share is invoked without a file argument. Empty means
	// the OS default (per-user local data, TL/Saved/CombatLogs).
	CombatLogs string `yaml:"combat_logs"`
}

// Default returns the default configuration. These are complete,
// working values: wombat is expected to run with no config file at all.
func Default() *Config {
	return &Config{
		Share: ShareConfig{
			ExternalPort: 45678,
			Description:  "TnLCombatLogs",
			LeaseSeconds: 0,
			ConnTimeout:  "10s",
		},
		Receive: ReceiveConfig{
			Timeout: "10s",
		},
	}
}

// Load loads configuration from the WOMBAT_CONFIG environment variable,
// or returns the defaults if it is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("WOMBAT_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.Paths.CombatLogs = expandVars(cfg.Paths.CombatLogs, map[string]string{
		"HOME": os.Getenv("HOME"),
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Share.ExternalPort < 1 || c.Share.ExternalPort > 65535 {
		errs = append(errs, fmt.Errorf("share.external_port %d outside 1-65535", c.Share.ExternalPort))
	}
	if c.Share.Description == "" {
		errs = append(errs, fmt.Errorf("share.description is required"))
	}
	if c.Share.LeaseSeconds < 0 {
		errs = append(errs, fmt.Errorf("share.lease_seconds must not be negative"))
	}
	if _, err := time.ParseDuration(c.Share.ConnTimeout); err != nil {
		errs = append(errs, fmt.Errorf("share.conn_timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.Receive.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("receive.timeout: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ConnTimeout returns share.conn_timeout as a duration. Call Validate
// first; an unparseable value falls back to the default here.
func (c *Config) ConnTimeout() time.Duration {
	return parseDurationOr(c.Share.ConnTimeout, 10*time.Second)
}

// ReceiveTimeout returns receive.timeout as a duration. Call Validate
// first; an unparseable value falls back to the default here.
func (c *Config) ReceiveTimeout() time.Duration {
	return parseDurationOr(c.Receive.Timeout, 10*time.Second)
}

// LeaseDuration returns share.lease_seconds as a duration.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.Share.LeaseSeconds) * time.Second
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
