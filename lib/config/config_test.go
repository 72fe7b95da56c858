// Copyright 2026 The Edgehop Authors
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
	path := filepath.Join(t.TempDir(), "edgehop.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
name: workstation
peer: "10.0.0.2:7411"
focus:
  entry_threshold: 0.95
heartbeat:
  interval: 2s
  timeout: 8s
clipboard:
  sync_images: true
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Name != "workstation" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Peer != "10.0.0.2:7411" {
		t.Errorf("Peer = %q", cfg.Peer)
	}
	if cfg.Focus.EntryThreshold != 0.95 {
		t.Errorf("EntryThreshold = %v", cfg.Focus.EntryThreshold)
	}
	// Untouched fields keep their defaults.
	if cfg.Focus.ReturnThreshold != 0.998 {
		t.Errorf("ReturnThreshold = %v, want default 0.998", cfg.Focus.ReturnThreshold)
	}
	if cfg.Heartbeat.Interval.Std() != 2*time.Second {
		t.Errorf("Heartbeat.Interval = %v", cfg.Heartbeat.Interval.Std())
	}
	if cfg.Heartbeat.Timeout.Std() != 8*time.Second {
		t.Errorf("Heartbeat.Timeout = %v", cfg.Heartbeat.Timeout.Std())
	}
	if !cfg.Clipboard.SyncImages {
		t.Error("Clipboard.SyncImages = false, want true")
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "heartbeat:\n  interval: soon\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted an unparseable duration")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "empty name",
			mutate:  func(c *Config) { c.Name = "" },
			wantSub: "name is required",
		},
		{
			name:    "entry threshold out of range",
			mutate:  func(c *Config) { c.Focus.EntryThreshold = 1.5 },
			wantSub: "entry_threshold",
		},
		{
			name:    "timeout not above interval",
			mutate:  func(c *Config) { c.Heartbeat.Timeout = c.Heartbeat.Interval },
			wantSub: "heartbeat.timeout",
		},
		{
			name:    "non-positive reconnect interval",
			mutate:  func(c *Config) { c.Reconnect.Interval = 0 },
			wantSub: "reconnect.interval",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate = nil, want error")
			}
			if !strings.Contains(err.Error(), test.wantSub) {
				t.Errorf("error %q does not mention %q", err, test.wantSub)
			}
		})
	}
}

func TestLoadWithoutEnvUsesDefaults(t *testing.T) {
	t.Setenv("EDGEHOP_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Heartbeat.Interval.Std() != 5*time.Second {
		t.Errorf("default heartbeat interval = %v, want 5s", cfg.Heartbeat.Interval.Std())
	}
}
