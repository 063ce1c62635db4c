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

import "crypto/ed25519"

// Session is the outcome of a completed handshake: a pair of keys and
// nonces for the boxstream layer, plus the peer's verified long-term
// identity. SendNonce/RecvNonce are the initial 24-byte nonce values;
// boxstream increments them once per secretbox, so twice per frame
// (header and body).
type Session struct {
	PeerIdentity ed25519.PublicKey

	SendKey   [32]byte
	SendNonce [24]byte
	RecvKey   [32]byte
	RecvNonce [24]byte
}

// sharedSecrets holds the three Diffie-Hellman outputs computed during
// the handshake: ephemeral-ephemeral, client ephemeral/server
// long-term, and client long-term/server ephemeral.
type sharedSecrets struct {
	ab [32]byte // client ephemeral <-> server ephemeral
	aB [32]byte // client ephemeral <-> server long-term
	Ab [32]byte // client long-term <-> server ephemeral
}

// deriveSession computes the client2server and server2client session
// keys and nonces from the network key, the three shared secrets, and
// both parties' long-term and ephemeral public keys. Every input here
// is identical on both sides of the connection, so client and server
// independently arrive at the same four values and then simply swap
// which one is "send" and which is "recv".
func deriveSession(
	networkKey [32]byte,
	shared sharedSecrets,
	clientLongTerm, serverLongTerm ed25519.PublicKey,
	clientEphemeral, serverEphemeral []byte,
	asClient bool,
) Session {
	common := hash(networkKey[:], shared.ab[:], shared.aB[:], shared.Ab[:])

	c2sKey := hash(common[:], serverLongTerm)
	s2cKey := hash(common[:], clientLongTerm)

	c2sNonce := hmacSHA512256(networkKey[:], serverEphemeral)[:24]
	s2cNonce := hmacSHA512256(networkKey[:], clientEphemeral)[:24]

	var sess Session
	if asClient {
		sess.PeerIdentity = serverLongTerm
		copy(sess.SendKey[:], c2sKey[:])
		copy(sess.RecvKey[:], s2cKey[:])
		copy(sess.SendNonce[:], c2sNonce)
		copy(sess.RecvNonce[:], s2cNonce)
	} else {
		sess.PeerIdentity = clientLongTerm
		copy(sess.SendKey[:], s2cKey[:])
		copy(sess.RecvKey[:], c2sKey[:])
		copy(sess.SendNonce[:], s2cNonce)
		copy(sess.RecvNonce[:], c2sNonce)
	}
	return sess
}
