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

package muxrpc

import (
	"context"
	"sync"
)

// CallType is the shape of a muxrpc call: whether one or both ends may
// send more than one packet.
type CallType string

const (
	CallAsync  CallType = "async"
	CallSource CallType = "source"
	CallSink   CallType = "sink"
	CallDuplex CallType = "duplex"
)

// Stream is one in-flight call: async request/response, a source the
// peer streams to us, a sink we stream to the peer, or a duplex doing
// both. Every call flavor is a Stream; Async callers just send and
// receive exactly one packet each.
type Stream struct {
	mux           *Mux
	requestNumber int32
	callType      CallType
	method        []string

	in     chan Packet
	closed chan struct{}
	once   sync.Once
	err    error
	errMu  sync.Mutex
}

func newStream(mux *Mux, reqNum int32, callType CallType, method []string) *Stream {
	return &Stream{
		mux:           mux,
		requestNumber: reqNum,
		callType:      callType,
		method:        method,
		in:            make(chan Packet, 32),
		closed:        make(chan struct{}),
	}
}

// Method returns the dotted method name this stream was opened for.
func (s *Stream) Method() []string { return s.method }

// Type returns the call flavor this stream was opened as.
func (s *Stream) Type() CallType { return s.callType }

// Send enqueues one outbound packet on this stream. end marks the
// final packet of a stream (or signals an error body for async
// responses); the mux negates the local request number automatically
// when this stream answers an inbound call.
func (s *Stream) Send(body []byte, bodyType BodyType, end bool) error {
	pkt := Packet{
		Stream:        s.callType != CallAsync,
		EndOrErr:      end,
		Type:          bodyType,
		RequestNumber: s.outgoingRequestNumber(),
		Body:          body,
	}
	return s.mux.enqueue(s, pkt)
}

// outgoingRequestNumber returns the request number this stream signs
// its outbound packets with: responses to a remote-initiated call use
// the negated number the request arrived with.
func (s *Stream) outgoingRequestNumber() int32 {
	if s.initiatedLocally() {
		return s.requestNumber
	}
	return -s.requestNumber
}

func (s *Stream) initiatedLocally() bool {
	return s.requestNumber > 0 && s.mux.ownsRequestNumber(s.requestNumber)
}

// Recv blocks for the next inbound packet on this stream, or returns
// ctx.Err()/ErrConnectionClosed if the context is done or the mux has
// torn down. Packets that arrived before the stream was torn down are
// returned first.
func (s *Stream) Recv(ctx context.Context) (Packet, error) {
	select {
	case pkt, ok := <-s.in:
		if !ok {
			return Packet{}, s.closeErr()
		}
		return pkt, nil
	case <-s.closed:
		if pkt, ok := s.TryRecv(); ok {
			return pkt, nil
		}
		return Packet{}, s.closeErr()
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	}
}

// TryRecv returns the next inbound packet if one is already buffered,
// without blocking. Callers drain a live source stream's backlog with
// this after an initial blocking Recv, to batch work (e.g. signature
// verification) across however many packets already arrived together.
func (s *Stream) TryRecv() (Packet, bool) {
	select {
	case pkt, ok := <-s.in:
		if !ok {
			return Packet{}, false
		}
		return pkt, true
	default:
		return Packet{}, false
	}
}

func (s *Stream) deliver(pkt Packet) {
	select {
	case s.in <- pkt:
	case <-s.closed:
	}
}

func (s *Stream) closeErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		return ErrConnectionClosed
	}
	return s.err
}

// teardown closes this stream with err, unblocking any pending Recv.
func (s *Stream) teardown(err error) {
	s.once.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.closed)
		s.mux.forget(s.requestNumber)
	})
}

// Close ends the stream locally without necessarily having sent a
// final packet; remote-visible termination should go through Send
// with end=true first.
func (s *Stream) Close() error {
	s.teardown(ErrConnectionClosed)
	return nil
}
