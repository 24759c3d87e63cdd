// Copyright 2026 The TermTalk Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the termtalk
// binary.
//
// Configuration is loaded from a single file specified by the
// TERMTALK_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file discovery: missing both
// means defaults. Command-line flags override file values; the
// precedence is flags, then file, then [Default].
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "TERMTALK_CONFIG"

// Duration is a time.Duration that unmarshals from YAML duration
// strings like "5m" or "90s".
type Duration time.Duration

// UnmarshalYAML parses a scalar node with time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the termtalk configuration.
type Config struct {
	// Host configures the hosting endpoint.
	Host HostSettings `yaml:"host"`

	// Join configures outbound connections.
	Join JoinSettings `yaml:"join"`

	// DirectoryPath is the room directory database location. Empty
	// means the per-user default (~/.termtalk/rooms.db).
	DirectoryPath string `yaml:"directory_path"`
}

// HostSettings configures the hosting side.
type HostSettings struct {
	// ListenAddress is the bind address, host:port. A zero port picks
	// a random free port.
	ListenAddress string `yaml:"listen_address"`

	// TTL is the room lifetime.
	TTL Duration `yaml:"ttl"`

	// MaxConnections caps live connections across all sources.
	MaxConnections int `yaml:"max_connections"`

	// MaxPerSource caps live connections per source IP.
	MaxPerSource int `yaml:"max_per_source"`
}

// JoinSettings configures the connecting side.
type JoinSettings struct {
	// SOCKS5Proxy routes outbound connections through a SOCKS5 proxy
	// when non-empty (e.g. "127.0.0.1:9050" for a local Tor daemon).
	SOCKS5Proxy string `yaml:"socks5_proxy"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host: HostSettings{
			ListenAddress:  "0.0.0.0:0",
			TTL:            Duration(5 * time.Minute),
			MaxConnections: 50,
			MaxPerSource:   5,
		},
	}
}

// Load reads the file named by TERMTALK_CONFIG, or returns [Default]
// if the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads and parses the config file at path, layered over
// [Default].
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Host.TTL < 0 {
		return fmt.Errorf("host.ttl must not be negative")
	}
	if c.Host.MaxConnections < 0 || c.Host.MaxPerSource < 0 {
		return fmt.Errorf("connection limits must not be negative")
	}
	return nil
}
