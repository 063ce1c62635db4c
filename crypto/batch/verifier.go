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

// Package batch implements Ed25519 batch signature verification using
// filippo.io/edwards25519 point/scalar arithmetic — the same module
// the teacher's crypto/keys package already depends on for Ed25519 to
// X25519 point conversion. The replication controller uses this when
// draining more than one buffered message at a time off a live history
// stream, yielding control between batches so verification never
// blocks the event loop for more than a bounded slice of CPU time.
package batch

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"errors"

	"filippo.io/edwards25519"
)

// Entry is one (message, public key, signature) triple to verify
// together.
type Entry struct {
	Message   []byte
	PublicKey ed25519.PublicKey
	Signature []byte
}

var ErrBatchInvalid = errors.New("batch: one or more signatures are invalid")

// Verify checks every entry using the standard randomized batch
// verification equation. It returns nil if every signature is valid.
// On failure it returns ErrBatchInvalid along with a bitmap (same
// length as entries) identifying which entries actually failed,
// obtained by falling back to individual verification — batch failure
// alone doesn't say which signature was bad.
func Verify(entries []Entry) (bool, []bool, error) {
	if len(entries) == 0 {
		return true, nil, nil
	}

	sumS := edwards25519.NewScalar()
	sumR := edwards25519.NewIdentityPoint()
	sumA := edwards25519.NewIdentityPoint()

	for _, e := range entries {
		if len(e.Signature) != ed25519.SignatureSize || len(e.PublicKey) != ed25519.PublicKeySize {
			return false, perEntryFailures(entries), ErrBatchInvalid
		}

		R, err := new(edwards25519.Point).SetBytes(e.Signature[:32])
		if err != nil {
			return false, perEntryFailures(entries), ErrBatchInvalid
		}
		S, err := new(edwards25519.Scalar).SetCanonicalBytes(e.Signature[32:])
		if err != nil {
			return false, perEntryFailures(entries), ErrBatchInvalid
		}
		A, err := new(edwards25519.Point).SetBytes(e.PublicKey)
		if err != nil {
			return false, perEntryFailures(entries), ErrBatchInvalid
		}

		k := hashScalar(e.Signature[:32], e.PublicKey, e.Message)
		z := randomScalar()

		zs := new(edwards25519.Scalar).Multiply(z, S)
		sumS.Add(sumS, zs)

		zR := new(edwards25519.Point).ScalarMult(z, R)
		sumR.Add(sumR, zR)

		zk := new(edwards25519.Scalar).Multiply(z, k)
		zkA := new(edwards25519.Point).ScalarMult(zk, A)
		sumA.Add(sumA, zkA)
	}

	negSumS := new(edwards25519.Scalar).Negate(sumS)
	lhs := new(edwards25519.Point).ScalarMult(negSumS, edwards25519.NewGeneratorPoint())

	total := edwards25519.NewIdentityPoint()
	total.Add(lhs, sumR)
	total.Add(total, sumA)

	if total.Equal(edwards25519.NewIdentityPoint()) == 1 {
		return true, nil, nil
	}

	return false, perEntryFailures(entries), ErrBatchInvalid
}

// perEntryFailures falls back to individual verification to identify
// exactly which signatures in the batch were invalid.
func perEntryFailures(entries []Entry) []bool {
	fails := make([]bool, len(entries))
	for i, e := range entries {
		if len(e.Signature) != ed25519.SignatureSize || len(e.PublicKey) != ed25519.PublicKeySize {
			fails[i] = true
			continue
		}
		fails[i] = !ed25519.Verify(e.PublicKey, e.Message, e.Signature)
	}
	return fails
}

func hashScalar(r, a, msg []byte) *edwards25519.Scalar {
	h := sha512.New()
	h.Write(r)
	h.Write(a)
	h.Write(msg)
	sum := h.Sum(nil)
	s, err := new(edwards25519.Scalar).SetUniformBytes(sum)
	if err != nil {
		// SetUniformBytes only errors on wrong input length; sha512
		// always produces exactly 64 bytes.
		panic("batch: sha512 digest was not 64 bytes")
	}
	return s
}

func randomScalar() *edwards25519.Scalar {
	var seed [64]byte
	if _, err := rand.Read(seed[:32]); err != nil {
		panic("batch: failed to read random bytes: " + err.Error())
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(seed[:])
	if err != nil {
		panic("batch: unexpected SetUniformBytes error")
	}
	return s
}
