// Copyright (C) 2025 ssb-solar
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config loads a Solar node's runtime configuration: where its
// identity and data live, which address it listens on, and how its
// admin API and metrics are exposed. Replication targets are a
// separate concern, loaded from their own TOML file (see
// LoadReplicationConfig).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is a Solar node's complete runtime configuration.
type Config struct {
	Environment string         `yaml:"environment" json:"environment"`
	Network     NetworkConfig  `yaml:"network" json:"network"`
	Identity    IdentityConfig `yaml:"identity" json:"identity"`
	Data        DataConfig     `yaml:"data" json:"data"`
	Admin       AdminConfig    `yaml:"admin" json:"admin"`
	Logging     LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// NetworkConfig controls the gossip transport: what address to listen
// on, whether to broadcast/discover peers on the local network, and
// which capability key gates the handshake.
type NetworkConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	LAN        bool   `yaml:"lan" json:"lan"`
	// NetworkKey is base64-encoded; empty means use the built-in
	// default main-net capability key.
	NetworkKey string `yaml:"network_key" json:"network_key"`
}

// IdentityConfig locates the node's long-term secret file.
type IdentityConfig struct {
	SecretPath string `yaml:"secret_path" json:"secret_path"`
}

// DataConfig locates on-disk state, and optionally an alternate
// Postgres-backed store for the replication policy.
type DataConfig struct {
	Dir               string          `yaml:"dir" json:"dir"`
	ReplicationConfig string          `yaml:"replication_config" json:"replication_config"`
	Postgres          *PostgresConfig `yaml:"postgres,omitempty" json:"postgres,omitempty"`
}

// PostgresConfig, when present, selects the Postgres-backed
// replication policy store instead of the default replication.toml
// file. Intended for operators running Solar as a fleet of instances
// sharing one replication policy.
type PostgresConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`
}

// AdminConfig controls the admin JSON-RPC/websocket API.
type AdminConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	ListenAddr   string `yaml:"listen_addr" json:"listen_addr"`
	JWTSecretEnv string `yaml:"jwt_secret_env" json:"jwt_secret_env"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// LoadFromFile loads configuration from a YAML (or, as a fallback,
// JSON) file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("config: parse file (tried YAML and JSON): %w", err)
		}
	}
	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg to path, choosing JSON or YAML by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Network.ListenAddr == "" {
		cfg.Network.ListenAddr = ":8008"
	}
	if cfg.Identity.SecretPath == "" {
		cfg.Identity.SecretPath = filepath.Join(defaultDataDir(), "secret.toml")
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = defaultDataDir()
	}
	if cfg.Data.ReplicationConfig == "" {
		cfg.Data.ReplicationConfig = filepath.Join(cfg.Data.Dir, "replication.toml")
	}
	if cfg.Admin.ListenAddr == "" {
		cfg.Admin.ListenAddr = ":3030"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
}

// defaultDataDir follows the XDG base directory spec: $XDG_DATA_HOME/solar,
// or ~/.local/share/solar when XDG_DATA_HOME is unset. If the home
// directory cannot be determined it uses a relative .solar directory.
func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "solar")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".solar"
	}
	return filepath.Join(home, ".local", "share", "solar")
}
