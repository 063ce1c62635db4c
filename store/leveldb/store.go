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

// Package leveldb is the durable Feed Store backend: an ordered LSM
// engine (github.com/syndtr/goleveldb) giving atomic single-key-range
// batch writes and prefix iteration, exactly what store.Store needs.
package leveldb

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ssb-solar/solar/codec"
	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/store"
)

// Store is a goleveldb-backed store.Store. It serializes Append calls
// per author via authorLocks, so unrelated feeds append
// in parallel while same-author writes stay strictly ordered.
type Store struct {
	db *leveldb.DB

	locksMu     sync.Mutex
	authorLocks map[string]*sync.Mutex
}

// Open opens (creating if absent) a leveldb database at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageError, err)
	}
	return &Store{db: db, authorLocks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) lockFor(author string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.authorLocks[author]
	if !ok {
		l = &sync.Mutex{}
		s.authorLocks[author] = l
	}
	return l
}

func messageKey(ref refs.MessageRef) []byte {
	return []byte(store.PrefixMessage + ref.Ref())
}

func feedSeqKey(author refs.FeedRef, seq int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(seq))
	return append([]byte(store.PrefixFeed+author.Ref()+"/"), b[:]...)
}

func headKey(author refs.FeedRef) []byte {
	return []byte(store.PrefixHead + author.Ref())
}

func encodeHead(h store.Head) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(h.Sequence))
	return append(b[:], []byte(h.Ref.Ref())...)
}

func decodeHead(b []byte) (store.Head, error) {
	if len(b) < 8 {
		return store.Head{}, fmt.Errorf("%w: truncated head record", store.ErrStorageError)
	}
	seq := int64(binary.BigEndian.Uint64(b[:8]))
	ref, err := refs.ParseMessageRef(string(b[8:]))
	if err != nil {
		return store.Head{}, fmt.Errorf("%w: %v", store.ErrStorageError, err)
	}
	return store.Head{Sequence: seq, Ref: ref}, nil
}

// Append implements store.Store.
func (s *Store) Append(msg *codec.Message, ref refs.MessageRef) (refs.MessageRef, error) {
	lock := s.lockFor(msg.Author.Ref())
	lock.Lock()
	defer lock.Unlock()

	head, err := s.Head(msg.Author)
	hasHead := err == nil
	if err != nil && err != store.ErrNotFound {
		return refs.MessageRef{}, err
	}

	wantSeq := int64(1)
	if hasHead {
		wantSeq = head.Sequence + 1
	}

	if msg.Sequence > wantSeq {
		return refs.MessageRef{}, store.ErrGapDetected
	}
	if msg.Sequence < wantSeq {
		existingRef, ok, err := s.refAtSeq(msg.Author, msg.Sequence)
		if err != nil {
			return refs.MessageRef{}, err
		}
		if ok && !existingRef.Equal(ref) {
			return refs.MessageRef{}, store.ErrForkDetected
		}
		return ref, nil
	}

	if hasHead {
		if msg.Previous == nil || !msg.Previous.Equal(head.Ref) {
			return refs.MessageRef{}, store.ErrForkDetected
		}
	} else if msg.Previous != nil {
		return refs.MessageRef{}, store.ErrForkDetected
	}

	if err := codec.Verify(msg); err != nil {
		return refs.MessageRef{}, fmt.Errorf("%w: %v", store.ErrSignatureInvalid, err)
	}

	encoded, err := codec.Encode(msg)
	if err != nil {
		return refs.MessageRef{}, fmt.Errorf("%w: %v", store.ErrStorageError, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(messageKey(ref), encoded)
	batch.Put(feedSeqKey(msg.Author, msg.Sequence), []byte(ref.Ref()))
	batch.Put(headKey(msg.Author), encodeHead(store.Head{Sequence: msg.Sequence, Ref: ref}))

	if err := s.db.Write(batch, nil); err != nil {
		return refs.MessageRef{}, fmt.Errorf("%w: %v", store.ErrStorageError, err)
	}
	return ref, nil
}

func (s *Store) refAtSeq(author refs.FeedRef, seq int64) (refs.MessageRef, bool, error) {
	b, err := s.db.Get(feedSeqKey(author, seq), nil)
	if err == leveldb.ErrNotFound {
		return refs.MessageRef{}, false, nil
	}
	if err != nil {
		return refs.MessageRef{}, false, fmt.Errorf("%w: %v", store.ErrStorageError, err)
	}
	ref, err := refs.ParseMessageRef(string(b))
	if err != nil {
		return refs.MessageRef{}, false, fmt.Errorf("%w: %v", store.ErrStorageError, err)
	}
	return ref, true, nil
}

// GetByRef implements store.Store.
func (s *Store) GetByRef(ref refs.MessageRef) (*codec.Message, error) {
	b, err := s.db.Get(messageKey(ref), nil)
	if err == leveldb.ErrNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageError, err)
	}
	return codec.Decode(b)
}

// Head implements store.Store.
func (s *Store) Head(author refs.FeedRef) (store.Head, error) {
	b, err := s.db.Get(headKey(author), nil)
	if err == leveldb.ErrNotFound {
		return store.Head{}, store.ErrNotFound
	}
	if err != nil {
		return store.Head{}, fmt.Errorf("%w: %v", store.ErrStorageError, err)
	}
	return decodeHead(b)
}

// Range implements store.Store.
func (s *Store) Range(author refs.FeedRef, from, to int64) (store.RangeIterator, error) {
	head, err := s.Head(author)
	if err == store.ErrNotFound {
		return &iterator{done: true}, nil
	}
	if err != nil {
		return nil, err
	}

	upper := to
	if upper <= 0 || upper > head.Sequence {
		upper = head.Sequence
	}

	prefix := []byte(store.PrefixFeed + author.Ref() + "/")
	r := util.BytesPrefix(prefix)
	iter := s.db.NewIterator(r, nil)
	return &iterator{s: s, iter: iter, from: from, to: upper}, nil
}

// Resync implements store.Store.
func (s *Store) Resync(author refs.FeedRef, provisional []*codec.Message) error {
	lock := s.lockFor(author.Ref())
	lock.Lock()
	defer lock.Unlock()

	for _, m := range provisional {
		existingRef, ok, err := s.refAtSeq(author, m.Sequence)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		ref, err := codec.ComputeRef(m)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrStorageError, err)
		}
		if !existingRef.Equal(ref) {
			return store.ErrForkDetected
		}
	}

	batch := new(leveldb.Batch)
	var finalHead store.Head
	for _, m := range provisional {
		ref, err := codec.ComputeRef(m)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrStorageError, err)
		}
		encoded, err := codec.Encode(m)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrStorageError, err)
		}
		batch.Put(messageKey(ref), encoded)
		batch.Put(feedSeqKey(author, m.Sequence), []byte(ref.Ref()))
		finalHead = store.Head{Sequence: m.Sequence, Ref: ref}
	}
	batch.Put(headKey(author), encodeHead(finalHead))

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorageError, err)
	}
	return nil
}

type iterator struct {
	s        *Store
	iter     interface {
		Next() bool
		Value() []byte
		Release()
		Error() error
	}
	from, to int64
	cur      *codec.Message
	done     bool
	err      error
}

func (it *iterator) Next() bool {
	if it.done || it.iter == nil {
		return false
	}
	for it.iter.Next() {
		ref, err := refs.ParseMessageRef(string(it.iter.Value()))
		if err != nil {
			it.err = err
			continue
		}
		msg, err := it.s.GetByRef(ref)
		if err != nil {
			it.err = err
			continue
		}
		if msg.Sequence < it.from {
			continue
		}
		if it.to > 0 && msg.Sequence > it.to {
			it.done = true
			return false
		}
		it.cur = msg
		return true
	}
	it.done = true
	return false
}

func (it *iterator) Message() *codec.Message { return it.cur }
func (it *iterator) Err() error               { return it.err }
func (it *iterator) Close() error {
	if it.iter != nil {
		it.iter.Release()
	}
	return nil
}
