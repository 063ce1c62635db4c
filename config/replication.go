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
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/replicate"
)

// replicationFile is the on-disk shape of a replication.toml: a mode
// ("selective" or "promiscuous") and, in selective mode, the feeds to
// follow.
type replicationFile struct {
	Mode  string           `toml:"mode"`
	Peers []replicationPeer `toml:"peers"`
}

type replicationPeer struct {
	Feed    string `toml:"feed"`
	Address string `toml:"address"`
}

// LoadReplicationConfig reads a replication.toml file describing which
// feeds a node should follow. A missing file is not an error: it
// yields an empty selective configuration, the conservative default
// for a freshly initialized node.
func LoadReplicationConfig(path string) (replicate.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return replicate.NewSelectiveConfig(nil), nil
	}

	var file replicationFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return replicate.Config{}, fmt.Errorf("config: decode replication file: %w", err)
	}

	if file.Mode == "promiscuous" {
		return replicate.NewPromiscuousConfig(), nil
	}

	targets := make([]replicate.PeerTarget, 0, len(file.Peers))
	for _, p := range file.Peers {
		feed, err := refs.ParseFeedRef(p.Feed)
		if err != nil {
			return replicate.Config{}, fmt.Errorf("config: replication peer %q: %w", p.Feed, err)
		}
		targets = append(targets, replicate.PeerTarget{Feed: feed, Address: p.Address})
	}
	return replicate.NewSelectiveConfig(targets), nil
}

// SaveReplicationConfig writes cfg to path as TOML.
func SaveReplicationConfig(cfg replicate.Config, path string) error {
	file := replicationFile{Mode: "selective"}
	if cfg.Mode == replicate.ModePromiscuous {
		file.Mode = "promiscuous"
	}
	for _, t := range cfg.Targets {
		file.Peers = append(file.Peers, replicationPeer{Feed: t.Feed.Ref(), Address: t.Address})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create replication file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("config: encode replication file: %w", err)
	}
	return nil
}
