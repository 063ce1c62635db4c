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
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/nacl/auth"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/ssb-solar/solar/internal/metrics"
)

// Dial performs the client side of the handshake over conn, which must
// already be a connected byte stream (typically a freshly dialed
// net.Conn). identity is the node's long-term keypair; serverLongTerm
// is the long-term public key the dialer expects to find on the other
// end — SSB connections are dialed by identity, not just by address.
func Dial(conn io.ReadWriter, networkKey [32]byte, identity Identity, serverLongTerm ed25519.PublicKey) (sess *Session, err error) {
	start := time.Now()
	metrics.HandshakesInitiated.WithLabelValues("client").Inc()
	defer func() {
		metrics.HandshakeDuration.WithLabelValues("client").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
			metrics.HandshakesFailed.WithLabelValues(failureStage(err)).Inc()
			return
		}
		metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	}()

	ephPriv, genErr := ecdh.X25519().GenerateKey(rand.Reader)
	if genErr != nil {
		return nil, fmt.Errorf("handshake: generate ephemeral key: %w", genErr)
	}
	ephPub := ephPriv.PublicKey().Bytes()

	hello := append(hmacTag(&networkKey, ephPub)[:], ephPub...)
	if _, err := conn.Write(hello); err != nil {
		return nil, fmt.Errorf("handshake: write client hello: %w", err)
	}

	serverHello, err := readFull(conn, helloSize)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	serverTag, serverEphBytes := serverHello[:helloAuthSize], serverHello[helloAuthSize:]
	var serverTagArr [32]byte
	copy(serverTagArr[:], serverTag)
	if !auth.Verify(&serverTagArr, serverEphBytes, &networkKey) {
		return nil, ErrHandshakeFailed
	}
	serverEphPub, err := ecdh.X25519().NewPublicKey(serverEphBytes)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	serverLongTermX, err := ed25519PublicToX25519(serverLongTerm)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	clientLongTermX, err := ed25519PrivateToX25519(identity.Private)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	sharedAB, err := ecdhAndHash(ephPriv, serverEphPub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	sharedAb, err := ecdhAndHash(clientLongTermX, serverEphPub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	sharedaB, err := ecdhAndHash(ephPriv, serverLongTermX)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	signMsg := concat(networkKey[:], serverLongTerm, sharedAB[:])
	detachedSig := ed25519.Sign(identity.Private, signMsg)
	clientAuthPlain := concat(detachedSig, identity.Public)

	boxAKey := hash(networkKey[:], sharedAB[:], sharedaB[:])
	var zeroNonce [24]byte
	boxA := secretbox.Seal(nil, clientAuthPlain, &zeroNonce, &boxAKey)
	if _, err := conn.Write(boxA); err != nil {
		return nil, fmt.Errorf("handshake: write client auth: %w", err)
	}

	boxB, err := readFull(conn, serverAcceptSize)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	acceptKey := hash(networkKey[:], sharedAB[:], sharedaB[:], sharedAb[:])
	sigB, ok := secretbox.Open(nil, boxB, &zeroNonce, &acceptKey)
	if !ok {
		return nil, ErrHandshakeFailed
	}
	acceptMsg := concat(networkKey[:], clientAuthPlain, sharedAB[:])
	if !ed25519.Verify(serverLongTerm, acceptMsg, sigB) {
		return nil, ErrHandshakeFailed
	}

	shared := sharedSecrets{ab: sharedAB, aB: sharedaB, Ab: sharedAb}
	derived := deriveSession(networkKey, shared, identity.Public, serverLongTerm, ephPub, serverEphBytes, true)
	return &derived, nil
}

// failureStage classifies a handshake error for metrics labeling.
// ErrHandshakeFailed covers every protocol-level rejection (bad tag,
// bad signature, unknown peer); anything else is a transport error.
func failureStage(err error) string {
	if err == ErrHandshakeFailed {
		return "protocol"
	}
	return "io"
}

func concat(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
