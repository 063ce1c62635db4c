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

// Package codec implements SSB's legacy canonical message encoding:
// deterministic field order, 2-space indentation, signing, and
// verification. Field order and JSON tags are grounded on go-ssb-refs'
// Value type; signature extraction and content-type validation are
// grounded on cblgh-ssb's legacy verify routine.
package codec

import (
	"encoding/json"
	"errors"

	"github.com/ssb-solar/solar/refs"
)

var (
	ErrNoContent       = errors.New("codec: message has no content")
	ErrBadContentType  = errors.New("codec: content missing a type field")
	ErrBadPrivateBoxed = errors.New("codec: private message missing .box/.box2 suffix")
	ErrWrongHashLiteral = errors.New("codec: hash field must be \"sha256\"")
)

// Message is the in-memory representation of a signed SSB feed entry.
// Field order mirrors the wire order used by canonical serialization.
type Message struct {
	Previous  *refs.MessageRef `json:"-"`
	Author    refs.FeedRef     `json:"-"`
	Sequence  int64            `json:"-"`
	Timestamp int64            `json:"-"`
	Hash      string           `json:"-"`
	Content   json.RawMessage  `json:"-"`
	Signature string           `json:"-"`
}

// wireMessage mirrors the on-the-wire JSON shape for decoding, where
// previous/author are rendered as sigil strings and sequence/timestamp
// are plain JSON numbers.
type wireMessage struct {
	Previous  *string         `json:"previous"`
	Author    string          `json:"author"`
	Sequence  int64           `json:"sequence"`
	Timestamp int64           `json:"timestamp"`
	Hash      string          `json:"hash"`
	Content   json.RawMessage `json:"content"`
	Signature string          `json:"signature,omitempty"`
}

// Decode parses a raw JSON message body (as received from a peer or
// read back from the store) into a Message. It does not verify the
// signature or hash; callers that received this from the network
// must call Verify with the original bytes before trusting the result.
func Decode(raw []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	author, err := refs.ParseFeedRef(w.Author)
	if err != nil {
		return nil, err
	}

	var prev *refs.MessageRef
	if w.Previous != nil {
		p, err := refs.ParseMessageRef(*w.Previous)
		if err != nil {
			return nil, err
		}
		prev = &p
	}

	if len(w.Content) == 0 {
		return nil, ErrNoContent
	}

	return &Message{
		Previous:  prev,
		Author:    author,
		Sequence:  w.Sequence,
		Timestamp: w.Timestamp,
		Hash:      w.Hash,
		Content:   w.Content,
		Signature: w.Signature,
	}, nil
}

// Encode renders m using the canonical two-space-indented wire format
// (see Canonical). Encode(Decode(x)) == x for any x this package
// produced; Decode(Encode(m)) == m for any m with well-formed content.
func Encode(m *Message) ([]byte, error) {
	return Canonical(m, true)
}
