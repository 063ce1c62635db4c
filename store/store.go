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

// Package store defines the Feed Store contract: durable, append-only
// key-value persistence of signed messages indexed by author and by
// message reference. Concrete backends live in store/memory and
// store/leveldb.
package store

import (
	"errors"

	"github.com/ssb-solar/solar/codec"
	"github.com/ssb-solar/solar/refs"
)

// Keyspace prefixes. A concrete KV-backed Store partitions its
// namespace using these, matching the literal layout the SSB legacy
// protocol's operators expect to reason about:
//   m/<ref>              -> message record
//   f/<author>/<be_u64>  -> message reference, sequence-indexed
//   h/<author>           -> latest (sequence, reference)
const (
	PrefixMessage = "m/"
	PrefixFeed    = "f/"
	PrefixHead    = "h/"
)

var (
	// ErrGapDetected means the incoming message's sequence skips ahead
	// of the feed's current head by more than one.
	ErrGapDetected = errors.New("store: gap detected")
	// ErrForkDetected means an incoming message claims a sequence
	// already occupied by a different reference.
	ErrForkDetected = errors.New("store: fork detected")
	// ErrSignatureInvalid means the message failed codec verification.
	ErrSignatureInvalid = errors.New("store: signature invalid")
	// ErrStorageError wraps an underlying KV engine failure.
	ErrStorageError = errors.New("store: storage error")
	// ErrNotFound is returned by GetByRef/Head when nothing matches.
	ErrNotFound = errors.New("store: not found")
	// ErrNotLocalIdentity names a Resync of a feed other than the
	// node's own. Neither store/memory nor store/leveldb returns it:
	// both accept Resync for any author.
	ErrNotLocalIdentity = errors.New("store: resync only permitted for the local identity")
)

// Head describes a feed's current tip.
type Head struct {
	Sequence int64
	Ref      refs.MessageRef
}

// RangeIterator yields messages from a single feed in ascending
// sequence order. Callers must call Close when done, even after Next
// returns false, to release any underlying cursor.
type RangeIterator interface {
	Next() bool
	Message() *codec.Message
	Err() error
	Close() error
}

// Store is the Feed Store contract. Implementations must serialize
// concurrent Append calls per author while allowing unrelated authors
// to append in parallel, and must make a successful Append visible via
// GetByRef no earlier than via Range (single atomic batch write).
type Store interface {
	// Append validates the feed invariants against the current head
	// and durably persists msg under ref in one atomic batch, or fails
	// with one of ErrGapDetected, ErrForkDetected, ErrSignatureInvalid,
	// or a wrapped ErrStorageError. ref must be the caller's already
	// -verified message reference (see codec.VerifyRaw) — the store
	// does not re-derive it from re-serialized bytes, since only the
	// original wire bytes are guaranteed to hash to the value the
	// network agrees on.
	Append(msg *codec.Message, ref refs.MessageRef) (refs.MessageRef, error)

	// GetByRef looks up a stored message by its reference.
	GetByRef(ref refs.MessageRef) (*codec.Message, error)

	// Range returns an iterator over [from, to] (inclusive) sequence
	// numbers of author's feed. A to value of 0 means "no upper bound".
	Range(author refs.FeedRef, from, to int64) (RangeIterator, error)

	// Head returns the current tip of author's feed.
	Head(author refs.FeedRef) (Head, error)

	// Resync overwrites the local identity's feed with a provisional
	// prefix recovered from a peer, after validating it against any
	// surviving local messages. Callers use it only for the local
	// identity's own feed; the implementations do not check the author.
	Resync(author refs.FeedRef, provisional []*codec.Message) error
}
