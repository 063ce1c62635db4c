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
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/ssb-solar/solar/internal/metrics"
)

// Writer encrypts and frames plaintext written to it, writing the
// result to the underlying io.Writer. A single Writer is safe for
// concurrent use; writes are serialized so frames are never
// interleaved.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	key    [32]byte
	nonce  [24]byte
	closed bool
}

// NewWriter wraps w, encrypting frames with key starting from nonce.
// Callers pass a handshake.Session's SendKey/SendNonce.
func NewWriter(w io.Writer, key [32]byte, nonce [24]byte) *Writer {
	return &Writer{w: w, key: key, nonce: nonce}
}

// Write splits p into MaxBodySize chunks, encrypting and sending each
// as one frame. It always writes all of p or returns an error.
func (wr *Writer) Write(p []byte) (int, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if wr.closed {
		return 0, ErrClosed
	}

	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > MaxBodySize {
			chunk = chunk[:MaxBodySize]
		}
		if err := wr.writeFrame(chunk); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

func (wr *Writer) writeFrame(body []byte) error {
	headerNonce := wr.nonce
	incrementNonce(&wr.nonce)
	bodyNonce := wr.nonce
	incrementNonce(&wr.nonce)

	bodyBox := secretbox.Seal(nil, body, &bodyNonce, &wr.key)

	var lenBuf [headerPlainSize]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(body)))
	headerBox := secretbox.Seal(nil, lenBuf[:], &headerNonce, &wr.key)

	if _, err := wr.w.Write(headerBox); err != nil {
		return fmt.Errorf("boxstream: write header: %w", err)
	}
	if _, err := wr.w.Write(bodyBox); err != nil {
		return fmt.Errorf("boxstream: write body: %w", err)
	}
	metrics.BoxstreamFrameSize.WithLabelValues("sent").Observe(float64(len(body)))
	return nil
}

// Close sends the goodbye sentinel: a header box sealing a zero-length
// body, which Reader recognizes as end-of-stream once decrypted. This
// matches the wire encoding real SSB peers expect, rather than an
// unencrypted marker only this package would understand. It does not
// close the underlying writer.
func (wr *Writer) Close() error {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.closed {
		return nil
	}
	wr.closed = true

	headerNonce := wr.nonce
	incrementNonce(&wr.nonce)

	var lenBuf [headerPlainSize]byte
	goodbye := secretbox.Seal(nil, lenBuf[:], &headerNonce, &wr.key)
	if _, err := wr.w.Write(goodbye); err != nil {
		return fmt.Errorf("boxstream: write goodbye: %w", err)
	}
	return nil
}
