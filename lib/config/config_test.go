// Copyright 2026 The Wombat Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wombat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error: %v", err)
	}
	if cfg.Share.ExternalPort != 45678 {
		t.Errorf("default external port = %d, want 45678", cfg.Share.ExternalPort)
	}
	if cfg.ConnTimeout() != 10*time.Second {
		t.Errorf("ConnTimeout() = %v, want 10s", cfg.ConnTimeout())
	}
	if cfg.ReceiveTimeout() != 10*time.Second {
		t.Errorf("ReceiveTimeout() = %v, want 10s", cfg.ReceiveTimeout())
	}
	if cfg.LeaseDuration() != 0 {
		t.Errorf("LeaseDuration() = %v, want 0", cfg.LeaseDuration())
	}
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
share:
  external_port: 51000
  lease_seconds: 300
receive:
  timeout: 30s
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Share.ExternalPort != 51000 {
		t.Errorf("external_port = %d, want 51000", cfg.Share.ExternalPort)
	}
	if cfg.Share.Description != "TnLCombatLogs" {
		t.Errorf("description = %q, want default preserved", cfg.Share.Description)
	}
	if cfg.ReceiveTimeout() != 30*time.Second {
		t.Errorf("ReceiveTimeout() = %v, want 30s", cfg.ReceiveTimeout())
	}
	if cfg.LeaseDuration() != 5*time.Minute {
		t.Errorf("LeaseDuration() = %v, want 5m", cfg.LeaseDuration())
	}
}

func TestLoadFile_ExpandsPathVariables(t *testing.T) {
	t.Setenv("HOME", "/home/player")
	path := writeConfig(t, `
paths:
  combat_logs: ${HOME}/logs
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Paths.CombatLogs != "/home/player/logs" {
		t.Errorf("combat_logs = %q, want /home/player/logs", cfg.Paths.CombatLogs)
	}
}

func TestLoadFile_RejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantIn  string
	}{
		{"bad port", "share:\n  external_port: 70000\n", "external_port"},
		{"bad timeout", "receive:\n  timeout: soon\n", "receive.timeout"},
		{"negative lease", "share:\n  lease_seconds: -5\n", "lease_seconds"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, c.content))
			if err == nil {
				t.Fatal("LoadFile() succeeded, want error")
			}
			if !strings.Contains(err.Error(), c.wantIn) {
				t.Errorf("error %q does not mention %q", err.Error(), c.wantIn)
			}
		})
	}
}

func TestLoad_NoEnvUsesDefaults(t *testing.T) {
	t.Setenv("WOMBAT_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Share.ExternalPort != 45678 {
		t.Errorf("external_port = %d, want default", cfg.Share.ExternalPort)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	path := writeConfig(t, "share:\n  external_port: 52000\n")
	t.Setenv("WOMBAT_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Share.ExternalPort != 52000 {
		t.Errorf("external_port = %d, want 52000", cfg.Share.ExternalPort)
	}
}
