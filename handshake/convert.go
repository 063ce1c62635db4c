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

package handshake

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

// ed25519PublicToX25519 converts a long-term Ed25519 identity key to
// its X25519 Montgomery-form equivalent, the same birational map
// filippo.io/edwards25519 exposes for Ed25519/X25519 interop and that
// the teacher's crypto/keys package already links against.
func ed25519PublicToX25519(pub ed25519.PublicKey) (*ecdh.PublicKey, error) {
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("handshake: invalid ed25519 public key: %w", err)
	}
	u := p.BytesMontgomery()
	return ecdh.X25519().NewPublicKey(u)
}

// ed25519PrivateToX25519 derives the X25519 private scalar from an
// Ed25519 signing key's seed, following the standard
// sha512(seed)[:32]-then-clamp construction used throughout the
// Ed25519/X25519 conversion literature.
func ed25519PrivateToX25519(priv ed25519.PrivateKey) (*ecdh.PrivateKey, error) {
	seed := priv.Seed()
	digest := sha512.Sum512(seed)
	scalar := digest[:32]
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return ecdh.X25519().NewPrivateKey(scalar)
}

func ecdhAndHash(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([32]byte, error) {
	raw, err := priv.ECDH(pub)
	if err != nil {
		return [32]byte{}, fmt.Errorf("handshake: ecdh: %w", err)
	}
	return hash(raw), nil
}
