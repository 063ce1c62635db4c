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

// Package muxrpc multiplexes many concurrent request/response and
// streaming calls over one encrypted boxstream connection: a 9-byte
// packet header (flags, body length, request number) followed by a
// body, the same flags/Marshal/Unmarshal split used for framing
// throughout the example pack's peer-to-peer wire codecs.
package muxrpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// BodyType identifies how a packet's body is encoded.
type BodyType byte

const (
	BodyTypeBinary BodyType = 0
	BodyTypeUTF8   BodyType = 1
	BodyTypeJSON   BodyType = 2
)

const (
	flagStream   byte = 1 << 3
	flagEndOrErr byte = 1 << 2
	flagTypeMask byte = 0b00000011
	flagTypeShift     = 0
)

const headerSize = 9

// MaxBodySize bounds a single packet body so that a header from a
// misbehaving peer cannot make ReadPacket allocate an unbounded buffer.
// It is larger than the 4096-byte boxstream body limit, so one packet
// may span several boxstream frames.
const MaxBodySize = 1 << 20

var (
	// ErrPacketTooLarge is returned when a decoded header advertises a
	// body length over MaxBodySize.
	ErrPacketTooLarge = errors.New("muxrpc: packet exceeds maximum body size")
	// ErrZeroRequestNumber is returned for a header whose request
	// number is zero, which is never valid on the wire.
	ErrZeroRequestNumber = errors.New("muxrpc: request number must not be zero")
)

// Packet is one muxrpc wire packet: either a single-shot call/response
// or one frame of a multi-part stream.
type Packet struct {
	Stream        bool
	EndOrErr      bool
	Type          BodyType
	RequestNumber int32
	Body          []byte
}

// Marshal encodes p as header||body.
func (p Packet) Marshal() []byte {
	out := make([]byte, headerSize+len(p.Body))
	out[0] = encodeFlags(p)
	binary.BigEndian.PutUint32(out[1:5], uint32(len(p.Body)))
	binary.BigEndian.PutUint32(out[5:9], uint32(p.RequestNumber))
	copy(out[headerSize:], p.Body)
	return out
}

func encodeFlags(p Packet) byte {
	var f byte
	if p.Stream {
		f |= flagStream
	}
	if p.EndOrErr {
		f |= flagEndOrErr
	}
	f |= byte(p.Type) << flagTypeShift & flagTypeMask
	return f
}

// ReadPacket decodes one packet from r.
func ReadPacket(r io.Reader) (Packet, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Packet{}, fmt.Errorf("muxrpc: read header: %w", err)
	}

	bodyLen := binary.BigEndian.Uint32(header[1:5])
	if bodyLen > MaxBodySize {
		return Packet{}, ErrPacketTooLarge
	}
	reqNum := int32(binary.BigEndian.Uint32(header[5:9]))
	if reqNum == 0 {
		return Packet{}, ErrZeroRequestNumber
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Packet{}, fmt.Errorf("muxrpc: read body: %w", err)
	}

	flags := header[0]
	return Packet{
		Stream:        flags&flagStream != 0,
		EndOrErr:      flags&flagEndOrErr != 0,
		Type:          BodyType(flags & flagTypeMask >> flagTypeShift),
		RequestNumber: reqNum,
		Body:          body,
	}, nil
}
