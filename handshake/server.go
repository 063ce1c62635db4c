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

// PeerFilter decides whether a connecting client's long-term public
// key is allowed to complete the handshake. Selective-replication
// nodes reject unknown clients here; promiscuous nodes pass a filter
// that always returns true.
type PeerFilter func(clientLongTerm ed25519.PublicKey) bool

// AllowAny is a PeerFilter accepting every client, for promiscuous mode.
func AllowAny(ed25519.PublicKey) bool { return true }

// Accept performs the server side of the handshake over conn, an
// already-accepted inbound connection. identity is this node's
// long-term keypair. filter is consulted after the client's identity
// is cryptographically verified but before the accept message is
// sent, so an unrecognized peer never receives a signed acceptance.
func Accept(conn io.ReadWriter, networkKey [32]byte, identity Identity, filter PeerFilter) (sess *Session, err error) {
	start := time.Now()
	metrics.HandshakesInitiated.WithLabelValues("server").Inc()
	defer func() {
		metrics.HandshakeDuration.WithLabelValues("server").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
			metrics.HandshakesFailed.WithLabelValues(failureStage(err)).Inc()
			return
		}
		metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	}()

	if filter == nil {
		filter = AllowAny
	}

	clientHello, err := readFull(conn, helloSize)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	clientTag, clientEphBytes := clientHello[:helloAuthSize], clientHello[helloAuthSize:]
	var clientTagArr [32]byte
	copy(clientTagArr[:], clientTag)
	if !auth.Verify(&clientTagArr, clientEphBytes, &networkKey) {
		return nil, ErrHandshakeFailed
	}
	clientEphPub, err := ecdh.X25519().NewPublicKey(clientEphBytes)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	ephPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("handshake: generate ephemeral key: %w", err)
	}
	ephPub := ephPriv.PublicKey().Bytes()

	serverHello := append(hmacTag(&networkKey, ephPub)[:], ephPub...)
	if _, err := conn.Write(serverHello); err != nil {
		return nil, fmt.Errorf("handshake: write server hello: %w", err)
	}

	serverLongTermX, err := ed25519PrivateToX25519(identity.Private)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	sharedAB, err := ecdhAndHash(ephPriv, clientEphPub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	sharedaB, err := ecdhAndHash(serverLongTermX, clientEphPub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	boxA, err := readFull(conn, clientAuthSize)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	boxAKey := hash(networkKey[:], sharedAB[:], sharedaB[:])
	var zeroNonce [24]byte
	clientAuthPlain, ok := secretbox.Open(nil, boxA, &zeroNonce, &boxAKey)
	if !ok || len(clientAuthPlain) != ed25519.SignatureSize+ed25519.PublicKeySize {
		return nil, ErrHandshakeFailed
	}
	detachedSig := clientAuthPlain[:ed25519.SignatureSize]
	clientLongTerm := ed25519.PublicKey(clientAuthPlain[ed25519.SignatureSize:])

	signMsg := concat(networkKey[:], identity.Public, sharedAB[:])
	if !ed25519.Verify(clientLongTerm, signMsg, detachedSig) {
		return nil, ErrHandshakeFailed
	}
	if !filter(clientLongTerm) {
		return nil, ErrHandshakeFailed
	}

	clientLongTermX, err := ed25519PublicToX25519(clientLongTerm)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	sharedAb, err := ecdhAndHash(ephPriv, clientLongTermX)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	acceptMsg := concat(networkKey[:], clientAuthPlain, sharedAB[:])
	sigB := ed25519.Sign(identity.Private, acceptMsg)
	acceptKey := hash(networkKey[:], sharedAB[:], sharedaB[:], sharedAb[:])
	boxB := secretbox.Seal(nil, sigB, &zeroNonce, &acceptKey)
	if _, err := conn.Write(boxB); err != nil {
		return nil, fmt.Errorf("handshake: write server accept: %w", err)
	}

	shared := sharedSecrets{ab: sharedAB, aB: sharedaB, Ab: sharedAb}
	derived := deriveSession(networkKey, shared, clientLongTerm, identity.Public, clientEphBytes, ephPub, false)
	return &derived, nil
}
