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

package codec

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Canonical renders m in the legacy SSB wire format: deterministic key
// order (previous, author, sequence, timestamp, hash, content[,
// signature]), two-space indentation, and no HTML escaping. When
// withSignature is false the signature field is omitted entirely —
// that is the exact byte sequence signatures are computed over.
func Canonical(m *Message, withSignature bool) ([]byte, error) {
	compact, err := compact(m, withSignature)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func compact(m *Message, withSignature bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true

	write := func(key string, raw []byte) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, err := marshalString(key)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(raw)
		return nil
	}

	var prevRaw []byte
	var err error
	if m.Previous == nil {
		prevRaw = []byte("null")
	} else {
		prevRaw, err = marshalString(m.Previous.Ref())
		if err != nil {
			return nil, err
		}
	}
	if err := write("previous", prevRaw); err != nil {
		return nil, err
	}

	authorRaw, err := marshalString(m.Author.Ref())
	if err != nil {
		return nil, err
	}
	if err := write("author", authorRaw); err != nil {
		return nil, err
	}

	if err := write("sequence", []byte(strconv.FormatInt(m.Sequence, 10))); err != nil {
		return nil, err
	}
	if err := write("timestamp", []byte(strconv.FormatInt(m.Timestamp, 10))); err != nil {
		return nil, err
	}

	hashRaw, err := marshalString(m.Hash)
	if err != nil {
		return nil, err
	}
	if err := write("hash", hashRaw); err != nil {
		return nil, err
	}

	content := m.Content
	if len(content) == 0 {
		content = []byte("null")
	}
	if err := write("content", content); err != nil {
		return nil, err
	}

	if withSignature {
		sigRaw, err := marshalString(m.Signature)
		if err != nil {
			return nil, err
		}
		if err := write("signature", sigRaw); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalString encodes a Go string the way encoding/json does, but
// without HTML-escaping '<', '>' and '&' — legacy SSB signers don't
// escape those either, and re-escaping would shift the signed bytes.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; strip it.
	b := buf.Bytes()
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	return b, nil
}
