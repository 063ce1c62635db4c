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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.ListenAddr == "" {
		t.Error("expected default listen addr when no config file exists")
	}
}

func TestLoadPrefersEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	contents := `
network:
  listen_addr: ":5555"
`
	if err := os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(contents), 0644); err != nil {
		t.Fatalf("write env config: %v", err)
	}

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.ListenAddr != ":5555" {
		t.Errorf("ListenAddr = %q, want :5555", cfg.Network.ListenAddr)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SOLAR_LISTEN_ADDR", ":4444")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.ListenAddr != ":4444" {
		t.Errorf("ListenAddr = %q, want override :4444", cfg.Network.ListenAddr)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	dir := t.TempDir()
	contents := `
admin:
  enabled: true
  listen_addr: ":8008"
network:
  listen_addr: ":8008"
`
	if err := os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"}); err == nil {
		t.Error("expected validation error for colliding admin/network addresses")
	}
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	contents := `
admin:
  enabled: true
  listen_addr: ":8008"
network:
  listen_addr: ":8008"
`
	if err := os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected MustLoad to panic on invalid config")
		}
	}()
	MustLoad(LoaderOptions{ConfigDir: dir, Environment: "test"})
}
