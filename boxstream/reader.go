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

package boxstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/ssb-solar/solar/internal/metrics"
)

// Reader decrypts and de-frames a stream produced by a matching
// Writer. A single Reader is safe for concurrent use; reads that race
// each other are serialized, though callers normally use one Reader
// from a single goroutine.
type Reader struct {
	mu    sync.Mutex
	r     io.Reader
	key   [32]byte
	nonce [24]byte

	buf    bytes.Buffer
	closed bool
}

// NewReader wraps r, decrypting frames with key starting from nonce.
// Callers pass a handshake.Session's RecvKey/RecvNonce.
func NewReader(r io.Reader, key [32]byte, nonce [24]byte) *Reader {
	return &Reader{r: r, key: key, nonce: nonce}
}

// Read implements io.Reader. It returns io.EOF once the peer's
// goodbye frame has been received, after any buffered plaintext has
// been drained.
func (rd *Reader) Read(p []byte) (int, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	if rd.buf.Len() == 0 {
		if rd.closed {
			return 0, io.EOF
		}
		if err := rd.readFrame(); err != nil {
			return 0, err
		}
		if rd.closed {
			return 0, io.EOF
		}
	}
	return rd.buf.Read(p)
}

func (rd *Reader) readFrame() error {
	headerBox := make([]byte, headerBoxSize)
	if _, err := io.ReadFull(rd.r, headerBox); err != nil {
		return fmt.Errorf("boxstream: read header: %w", err)
	}

	headerNonce := rd.nonce
	incrementNonce(&rd.nonce)

	lenBuf, ok := secretbox.Open(nil, headerBox, &headerNonce, &rd.key)
	if !ok || len(lenBuf) != headerPlainSize {
		return ErrAuthenticationFailed
	}
	bodyLen := binary.BigEndian.Uint16(lenBuf)
	if bodyLen == 0 {
		// Zero-length header is the goodbye sentinel: the peer sealed
		// an empty body to signal end-of-stream rather than sending
		// one more real frame.
		rd.closed = true
		return nil
	}
	if bodyLen > MaxBodySize {
		return ErrFrameTooLarge
	}

	bodyNonce := rd.nonce
	incrementNonce(&rd.nonce)

	bodyBox := make([]byte, int(bodyLen)+16)
	if _, err := io.ReadFull(rd.r, bodyBox); err != nil {
		return fmt.Errorf("boxstream: read body: %w", err)
	}
	body, ok := secretbox.Open(nil, bodyBox, &bodyNonce, &rd.key)
	if !ok {
		return ErrAuthenticationFailed
	}

	metrics.BoxstreamFrameSize.WithLabelValues("received").Observe(float64(len(body)))
	rd.buf.Write(body)
	return nil
}

