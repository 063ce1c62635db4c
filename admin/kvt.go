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

// Package admin exposes a Solar node's JSON-RPC-over-HTTP
// administration surface: feed/message lookups, peer listing,
// publishing, and a websocket live tail of newly stored messages.
package admin

import (
	"encoding/json"

	"github.com/ssb-solar/solar/codec"
)

// value is the wire shape of a feed entry's value field: the same
// fields codec.Message carries, rendered the way a peer or admin
// client expects to read them back (sigil strings, not structs).
type value struct {
	Previous  *string         `json:"previous"`
	Author    string          `json:"author"`
	Sequence  int64           `json:"sequence"`
	Timestamp int64           `json:"timestamp"`
	Hash      string          `json:"hash"`
	Content   json.RawMessage `json:"content"`
	Signature string          `json:"signature"`
}

// kvt is the key-value-timestamp envelope every feed/message lookup
// returns, matching the shape the wider SSB ecosystem's flumedb-backed
// APIs use.
type kvt struct {
	Key       string `json:"key"`
	Value     value  `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

func toKVT(ref string, m *codec.Message) kvt {
	var prev *string
	if m.Previous != nil {
		p := m.Previous.Ref()
		prev = &p
	}
	return kvt{
		Key: ref,
		Value: value{
			Previous:  prev,
			Author:    m.Author.Ref(),
			Sequence:  m.Sequence,
			Timestamp: m.Timestamp,
			Hash:      m.Hash,
			Content:   m.Content,
			Signature: m.Signature,
		},
		Timestamp: m.Timestamp,
	}
}
