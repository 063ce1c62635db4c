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

// Package memory is an in-memory Feed Store, grounded on the teacher's
// map-plus-sync.RWMutex session store pattern. It backs unit tests and
// the local development CLI default.
package memory

import (
	"fmt"
	"sync"

	"github.com/ssb-solar/solar/codec"
	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/store"
)

type feedState struct {
	refsBySeq map[int64]refs.MessageRef
	head      store.Head
	hasHead   bool
}

// Store is a thread-safe, non-durable implementation of store.Store.
// One store-wide RWMutex guards all state, every author's feedState
// included, so appends to different authors are serialized as well;
// the critical sections themselves are short.
type Store struct {
	mu       sync.RWMutex
	byRef    map[string]*codec.Message
	byAuthor map[string]*feedState
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		byRef:    make(map[string]*codec.Message),
		byAuthor: make(map[string]*feedState),
	}
}

func (s *Store) feedFor(author refs.FeedRef) *feedState {
	key := author.Ref()
	fs, ok := s.byAuthor[key]
	if !ok {
		fs = &feedState{refsBySeq: make(map[int64]refs.MessageRef)}
		s.byAuthor[key] = fs
	}
	return fs
}

// Append implements store.Store.
func (s *Store) Append(msg *codec.Message, ref refs.MessageRef) (refs.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fs := s.feedFor(msg.Author)

	wantSeq := int64(1)
	if fs.hasHead {
		wantSeq = fs.head.Sequence + 1
	}

	if msg.Sequence > wantSeq {
		return refs.MessageRef{}, store.ErrGapDetected
	}
	if msg.Sequence < wantSeq {
		existing, ok := fs.refsBySeq[msg.Sequence]
		if ok && !existing.Equal(ref) {
			return refs.MessageRef{}, store.ErrForkDetected
		}
		return ref, nil
	}

	if fs.hasHead {
		if msg.Previous == nil || !msg.Previous.Equal(fs.head.Ref) {
			return refs.MessageRef{}, store.ErrForkDetected
		}
	} else if msg.Previous != nil {
		return refs.MessageRef{}, store.ErrForkDetected
	}

	if err := codec.Verify(msg); err != nil {
		return refs.MessageRef{}, fmt.Errorf("%w: %v", store.ErrSignatureInvalid, err)
	}

	fs.refsBySeq[msg.Sequence] = ref
	fs.head = store.Head{Sequence: msg.Sequence, Ref: ref}
	fs.hasHead = true
	s.byRef[ref.Ref()] = msg

	return ref, nil
}

// GetByRef implements store.Store.
func (s *Store) GetByRef(ref refs.MessageRef) (*codec.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byRef[ref.Ref()]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m, nil
}

// Head implements store.Store.
func (s *Store) Head(author refs.FeedRef) (store.Head, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fs, ok := s.byAuthor[author.Ref()]
	if !ok || !fs.hasHead {
		return store.Head{}, store.ErrNotFound
	}
	return fs.head, nil
}

// Range implements store.Store. The in-memory variant materializes the
// whole window eagerly since it is bounded by what the author has
// published and held entirely in RAM already.
func (s *Store) Range(author refs.FeedRef, from, to int64) (store.RangeIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fs, ok := s.byAuthor[author.Ref()]
	if !ok {
		return &sliceIterator{}, nil
	}

	upper := to
	if upper <= 0 || upper > fs.head.Sequence {
		upper = fs.head.Sequence
	}

	var msgs []*codec.Message
	for seq := from; seq <= upper; seq++ {
		ref, ok := fs.refsBySeq[seq]
		if !ok {
			continue
		}
		msgs = append(msgs, s.byRef[ref.Ref()])
	}
	return &sliceIterator{msgs: msgs}, nil
}

// Resync implements store.Store.
func (s *Store) Resync(author refs.FeedRef, provisional []*codec.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fs := s.byAuthor[author.Ref()]
	if fs != nil {
		for _, m := range provisional {
			if m.Sequence > int64(len(fs.refsBySeq)) {
				continue
			}
			existing, ok := fs.refsBySeq[m.Sequence]
			if !ok {
				continue
			}
			ref, err := codec.ComputeRef(m)
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrStorageError, err)
			}
			if !existing.Equal(ref) {
				return store.ErrForkDetected
			}
		}
	}

	fresh := &feedState{refsBySeq: make(map[int64]refs.MessageRef)}
	for _, m := range provisional {
		ref, err := codec.ComputeRef(m)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrStorageError, err)
		}
		fresh.refsBySeq[m.Sequence] = ref
		fresh.head = store.Head{Sequence: m.Sequence, Ref: ref}
		fresh.hasHead = true
		s.byRef[ref.Ref()] = m
	}
	s.byAuthor[author.Ref()] = fresh
	return nil
}

type sliceIterator struct {
	msgs []*codec.Message
	pos  int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.msgs) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Message() *codec.Message {
	if it.pos == 0 || it.pos > len(it.msgs) {
		return nil
	}
	return it.msgs[it.pos-1]
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
