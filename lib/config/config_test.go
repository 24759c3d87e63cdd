// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "termtalk.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if time.Duration(cfg.Host.TTL) != 5*time.Minute {
		t.Errorf("default TTL = %v", time.Duration(cfg.Host.TTL))
	}
	if cfg.Host.MaxConnections != 50 || cfg.Host.MaxPerSource != 5 {
		t.Errorf("default limits = %d/%d", cfg.Host.MaxConnections, cfg.Host.MaxPerSource)
	}
}

func TestLoadFile_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
host:
  listen_address: "192.168.1.10:7500"
  ttl: 10m
  max_per_source: 3
join:
  socks5_proxy: "127.0.0.1:9050"
directory_path: "/tmp/rooms.db"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Host.ListenAddress != "192.168.1.10:7500" {
		t.Errorf("listen_address = %q", cfg.Host.ListenAddress)
	}
	if time.Duration(cfg.Host.TTL) != 10*time.Minute {
		t.Errorf("ttl = %v", time.Duration(cfg.Host.TTL))
	}
	if cfg.Host.MaxPerSource != 3 {
		t.Errorf("max_per_source = %d", cfg.Host.MaxPerSource)
	}
	// Unspecified fields keep their defaults.
	if cfg.Host.MaxConnections != 50 {
		t.Errorf("max_connections = %d, want default 50", cfg.Host.MaxConnections)
	}
	if cfg.Join.SOCKS5Proxy != "127.0.0.1:9050" {
		t.Errorf("socks5_proxy = %q", cfg.Join.SOCKS5Proxy)
	}
	if cfg.DirectoryPath != "/tmp/rooms.db" {
		t.Errorf("directory_path = %q", cfg.DirectoryPath)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"bad yaml", "host: [not a mapping"},
		{"negative ttl", "host:\n  ttl: -5m\n"},
		{"negative limit", "host:\n  max_per_source: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tt.contents)); err == nil {
				t.Error("LoadFile() accepted invalid config")
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile() with a missing file succeeded")
	}
}

func TestLoad_UnsetEnvMeansDefaults(t *testing.T) {
	t.Setenv(EnvVar, "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host.TTL != Default().Host.TTL {
		t.Error("Load() without TERMTALK_CONFIG did not return defaults")
	}
}
