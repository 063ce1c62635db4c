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

// Package replicate drives the gossip replication protocol: which
// feeds to pull, from which peers, and what to do when a peer's
// history turns out to fork or gap against what is already stored.
package replicate

import (
	"github.com/ssb-solar/solar/internal/metrics"
	"github.com/ssb-solar/solar/refs"
)

// Mode selects how a node decides which feeds it is willing to
// replicate from a peer.
type Mode int

const (
	// ModeSelective replicates only feeds explicitly present in Config.
	ModeSelective Mode = iota
	// ModePromiscuous replicates any feed a peer offers.
	ModePromiscuous
)

// PeerTarget is one entry in the replication configuration: a feed to
// follow and, optionally, a known dial address for its host.
type PeerTarget struct {
	Feed    refs.FeedRef
	Address string // empty when only discovered via LAN broadcast or gossip
}

// Config is the static replication policy for a node: its mode and,
// in selective mode, the explicit set of feeds it follows.
type Config struct {
	Mode    Mode
	Targets map[string]PeerTarget // keyed by PeerTarget.Feed.Ref()
}

// NewSelectiveConfig builds a Config that only replicates the given
// feeds.
func NewSelectiveConfig(targets []PeerTarget) Config {
	c := Config{Mode: ModeSelective, Targets: make(map[string]PeerTarget, len(targets))}
	for _, t := range targets {
		c.Targets[t.Feed.Ref()] = t
	}
	metrics.ReplicationTargets.Set(float64(len(c.Targets)))
	return c
}

// NewPromiscuousConfig builds a Config that replicates any feed
// offered by a connected peer.
func NewPromiscuousConfig() Config {
	return Config{Mode: ModePromiscuous, Targets: make(map[string]PeerTarget)}
}

// Allows reports whether feed should be replicated under this policy.
func (c Config) Allows(feed refs.FeedRef) bool {
	if c.Mode == ModePromiscuous {
		return true
	}
	_, ok := c.Targets[feed.Ref()]
	return ok
}

// Add inserts or updates a target feed, e.g. once its dial address is
// discovered via LAN broadcast.
func (c Config) Add(t PeerTarget) {
	c.Targets[t.Feed.Ref()] = t
	metrics.ReplicationTargets.Set(float64(len(c.Targets)))
}
