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
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/replicate"
)

func TestLoadReplicationConfigMissingFile(t *testing.T) {
	cfg, err := LoadReplicationConfig(filepath.Join(t.TempDir(), "replication.toml"))
	if err != nil {
		t.Fatalf("LoadReplicationConfig: %v", err)
	}
	if cfg.Mode != replicate.ModeSelective {
		t.Errorf("Mode = %v, want ModeSelective", cfg.Mode)
	}
	if len(cfg.Targets) != 0 {
		t.Errorf("expected no targets, got %d", len(cfg.Targets))
	}
}

func TestSaveAndLoadReplicationConfig(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	feed := refs.NewFeedRef(pub)

	original := replicate.NewSelectiveConfig([]replicate.PeerTarget{
		{Feed: feed, Address: "tcp://example.invalid:8008"},
	})

	path := filepath.Join(t.TempDir(), "replication.toml")
	if err := SaveReplicationConfig(original, path); err != nil {
		t.Fatalf("SaveReplicationConfig: %v", err)
	}

	loaded, err := LoadReplicationConfig(path)
	if err != nil {
		t.Fatalf("LoadReplicationConfig: %v", err)
	}
	if !loaded.Allows(feed) {
		t.Error("loaded replication config does not allow the saved feed")
	}
	target := loaded.Targets[feed.Ref()]
	if target.Address != "tcp://example.invalid:8008" {
		t.Errorf("Address = %q, want tcp://example.invalid:8008", target.Address)
	}
}

func TestLoadReplicationConfigPromiscuous(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replication.toml")
	if err := SaveReplicationConfig(replicate.NewPromiscuousConfig(), path); err != nil {
		t.Fatalf("SaveReplicationConfig: %v", err)
	}

	loaded, err := LoadReplicationConfig(path)
	if err != nil {
		t.Fatalf("LoadReplicationConfig: %v", err)
	}
	if loaded.Mode != replicate.ModePromiscuous {
		t.Errorf("Mode = %v, want ModePromiscuous", loaded.Mode)
	}
}

func TestLoadReplicationConfigBadFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replication.toml")
	contents := "mode = \"selective\"\n\n[[peers]]\nfeed = \"not-a-valid-feed\"\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write replication file: %v", err)
	}

	if _, err := LoadReplicationConfig(path); err == nil {
		t.Error("expected error for malformed feed reference")
	}
}
