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

// Package handshake implements the four-message Secret Handshake:
// mutual authentication over a raw TCP byte stream, parameterized by a
// 32-byte network key, yielding a pair of session keys and nonces for
// the boxstream layer. The Client/Server split and the Handshaker-style
// session object are kept from the teacher's core/handshake package,
// but nothing protobuf- or gRPC-shaped survives: this is a direct wire
// exchange over net.Conn.
package handshake

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/auth"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	helloAuthSize  = 32
	ephemeralSize  = 32
	helloSize      = helloAuthSize + ephemeralSize
	clientAuthSize = secretbox.Overhead + ed25519.PublicKeySize + ed25519.SignatureSize
	serverAcceptSize = secretbox.Overhead + ed25519.SignatureSize
)

// ErrHandshakeFailed is the single opaque error surfaced for every
// handshake failure: MAC mismatch, signature invalid, or an unknown
// peer in selective-replication mode. Callers must not attempt to
// distinguish sub-causes from this error alone. The cause is neither
// logged nor sent to the peer; failures are only counted in metrics,
// labelled "protocol" for this error and "io" for any other.
var ErrHandshakeFailed = errors.New("handshake: authentication failed")

// DefaultNetworkKey is the SSB "main net" capability key shared by the
// public Scuttlebutt network. Operators isolating a private network
// supply a different 32-byte key via configuration.
var DefaultNetworkKey = mustDecodeNetworkKey("1KHLiKZvAvjbY84Jc54dtxWmZgxRg9UpjKS9S0EYpQc=")

func mustDecodeNetworkKey(b64 string) [32]byte {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) != 32 {
		panic("handshake: invalid built-in network key")
	}
	var k [32]byte
	copy(k[:], raw)
	return k
}

// Identity is a node's long-term Ed25519 keypair, the "who you are"
// half of the handshake.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("handshake: short read: %w", err)
	}
	return buf, nil
}

func hmacTag(key *[32]byte, msg []byte) *[32]byte {
	return auth.Sum(msg, key)
}

func hash(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hmacSHA512256(key, data []byte) []byte {
	mac := hmac.New(sha512.New512_256, key)
	mac.Write(data)
	return mac.Sum(nil)
}
