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

// Package refs implements the sigil-encoded reference types SSB uses to
// name feeds and messages: "@<base64>.ed25519" for a feed identity and
// "%<base64>.sha256" for a message reference. Field order and sigil
// handling follow go-ssb-refs.
package refs

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	AlgoFeed    = "ed25519"
	AlgoMessage = "sha256"
)

var (
	ErrInvalidSigil = errors.New("refs: missing or wrong sigil")
	ErrInvalidAlgo  = errors.New("refs: unsupported algorithm suffix")
	ErrInvalidSize  = errors.New("refs: decoded value has the wrong length")
)

// FeedRef identifies a feed by its Ed25519 public key.
type FeedRef struct {
	ID   []byte
	Algo string
}

// NewFeedRef wraps a raw Ed25519 public key as a FeedRef.
func NewFeedRef(pub ed25519.PublicKey) FeedRef {
	return FeedRef{ID: append([]byte(nil), pub...), Algo: AlgoFeed}
}

// Ref renders the canonical "@<base64>.ed25519" form.
func (r FeedRef) Ref() string {
	return "@" + base64.StdEncoding.EncodeToString(r.ID) + "." + r.Algo
}

func (r FeedRef) String() string { return r.Ref() }

// Equal reports whether two feed references name the same identity.
func (r FeedRef) Equal(o FeedRef) bool {
	return r.Algo == o.Algo && string(r.ID) == string(o.ID)
}

// PublicKey returns the underlying Ed25519 public key.
func (r FeedRef) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(r.ID)
}

// ParseFeedRef parses a "@<base64>.ed25519" reference.
func ParseFeedRef(s string) (FeedRef, error) {
	if !strings.HasPrefix(s, "@") {
		return FeedRef{}, ErrInvalidSigil
	}
	body := s[1:]
	dot := strings.LastIndexByte(body, '.')
	if dot < 0 {
		return FeedRef{}, ErrInvalidSigil
	}
	algo := body[dot+1:]
	if algo != AlgoFeed {
		return FeedRef{}, fmt.Errorf("%w: %q", ErrInvalidAlgo, algo)
	}
	raw, err := base64.StdEncoding.DecodeString(body[:dot])
	if err != nil {
		return FeedRef{}, fmt.Errorf("refs: bad base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return FeedRef{}, ErrInvalidSize
	}
	return FeedRef{ID: raw, Algo: algo}, nil
}

// MessageRef identifies a message by the SHA-256 of its canonical
// serialization.
type MessageRef struct {
	Hash []byte
	Algo string
}

// NewMessageRef wraps a raw SHA-256 digest as a MessageRef.
func NewMessageRef(digest []byte) MessageRef {
	return MessageRef{Hash: append([]byte(nil), digest...), Algo: AlgoMessage}
}

// Ref renders the canonical "%<base64>.sha256" form.
func (r MessageRef) Ref() string {
	return "%" + base64.StdEncoding.EncodeToString(r.Hash) + "." + r.Algo
}

func (r MessageRef) String() string { return r.Ref() }

func (r MessageRef) Equal(o MessageRef) bool {
	return r.Algo == o.Algo && string(r.Hash) == string(o.Hash)
}

// ParseMessageRef parses a "%<base64>.sha256" reference.
func ParseMessageRef(s string) (MessageRef, error) {
	if !strings.HasPrefix(s, "%") {
		return MessageRef{}, ErrInvalidSigil
	}
	body := s[1:]
	dot := strings.LastIndexByte(body, '.')
	if dot < 0 {
		return MessageRef{}, ErrInvalidSigil
	}
	algo := body[dot+1:]
	if algo != AlgoMessage {
		return MessageRef{}, fmt.Errorf("%w: %q", ErrInvalidAlgo, algo)
	}
	raw, err := base64.StdEncoding.DecodeString(body[:dot])
	if err != nil {
		return MessageRef{}, fmt.Errorf("refs: bad base64: %w", err)
	}
	if len(raw) != 32 {
		return MessageRef{}, ErrInvalidSize
	}
	return MessageRef{Hash: raw, Algo: algo}, nil
}
