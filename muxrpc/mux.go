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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Handler answers one inbound call. It must read s.Method()/args and
// drive the stream (Send one response for async, or Send repeatedly
// with end=true on the last packet for source/sink/duplex) until it
// returns.
type Handler func(ctx context.Context, s *Stream, args json.RawMessage) error

// envelope is the body of the packet that opens a call.
type envelope struct {
	Name []string `json:"name"`
	Args json.RawMessage `json:"args"`
	Type CallType `json:"type"`
}

// Mux multiplexes calls over one connection. Outbound packets are
// scheduled fairly across streams in round robin: the writer loop
// never lets one chatty stream starve another's pending packet.
type Mux struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   io.ReadWriteCloser

	mu           sync.Mutex
	streams      map[int32]*Stream
	localReqNums map[int32]bool
	nextReq      int32
	handlers     map[string]Handler

	readyMu sync.Mutex
	readyC  *sync.Cond
	ready   []int32
	queues  map[int32][]Packet
	closed  bool

	wg sync.WaitGroup
}

// NewMux wraps conn (typically a boxstream-framed connection) and
// starts its reader/writer loops. Call Handle before Serve to register
// inbound method handlers.
func NewMux(conn io.ReadWriteCloser) *Mux {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mux{
		ctx:          ctx,
		cancel:       cancel,
		conn:         conn,
		streams:      make(map[int32]*Stream),
		localReqNums: make(map[int32]bool),
		handlers:     make(map[string]Handler),
		queues:       make(map[int32][]Packet),
	}
	m.readyC = sync.NewCond(&m.readyMu)
	return m
}

// Handle registers h for inbound calls to the dotted method name.
func (m *Mux) Handle(method string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = h
}

// Serve runs the reader and writer loops until the connection closes
// or ctx is done. It blocks; run it in its own goroutine.
func (m *Mux) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			m.Close()
		case <-m.ctx.Done():
		}
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.writerLoop()
	}()

	err := m.readerLoop()
	m.Close()
	m.wg.Wait()
	return err
}

func (m *Mux) ownsRequestNumber(n int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localReqNums[n]
}

func (m *Mux) forget(n int32) {
	m.mu.Lock()
	delete(m.streams, n)
	delete(m.localReqNums, n)
	m.mu.Unlock()
	// Packets already queued for n stay queued: writerLoop still sends
	// them and drops the queue once it is empty.
}

// open allocates a request number and registers a local-initiated
// stream for the given call.
func (m *Mux) open(callType CallType, method []string) *Stream {
	m.mu.Lock()
	m.nextReq++
	reqNum := m.nextReq
	m.localReqNums[reqNum] = true
	s := newStream(m, reqNum, callType, method)
	m.streams[reqNum] = s
	m.mu.Unlock()
	return s
}

func (m *Mux) sendEnvelope(method []string, callType CallType, args any) (*Stream, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("muxrpc: marshal args: %w", err)
	}
	s := m.open(callType, method)
	body, err := json.Marshal(envelope{Name: method, Args: raw, Type: callType})
	if err != nil {
		return nil, fmt.Errorf("muxrpc: marshal envelope: %w", err)
	}
	if err := s.Send(body, BodyTypeJSON, callType == CallAsync); err != nil {
		return nil, err
	}
	return s, nil
}

// Async makes a single request/response call, blocking for the
// response body.
func (m *Mux) Async(ctx context.Context, method []string, args any) (json.RawMessage, error) {
	s, err := m.sendEnvelope(method, CallAsync, args)
	if err != nil {
		return nil, err
	}
	pkt, err := s.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if pkt.EndOrErr {
		var remoteErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(pkt.Body, &remoteErr)
		return nil, &RemoteError{Method: strings.Join(method, "."), Message: remoteErr.Message}
	}
	return json.RawMessage(pkt.Body), nil
}

// Source opens a call the peer streams responses back on.
func (m *Mux) Source(method []string, args any) (*Stream, error) {
	return m.sendEnvelope(method, CallSource, args)
}

// Sink opens a call we stream requests into.
func (m *Mux) Sink(method []string, args any) (*Stream, error) {
	return m.sendEnvelope(method, CallSink, args)
}

// Duplex opens a call streaming in both directions.
func (m *Mux) Duplex(method []string, args any) (*Stream, error) {
	return m.sendEnvelope(method, CallDuplex, args)
}

func (m *Mux) enqueue(s *Stream, pkt Packet) error {
	m.readyMu.Lock()
	defer m.readyMu.Unlock()
	if m.closed {
		return ErrConnectionClosed
	}
	_, existed := m.queues[s.requestNumber]
	m.queues[s.requestNumber] = append(m.queues[s.requestNumber], pkt)
	if !existed || len(m.queues[s.requestNumber]) == 1 {
		m.ready = append(m.ready, s.requestNumber)
	}
	m.readyC.Signal()
	return nil
}

// writerLoop pops one pending packet per stream per pass, cycling
// through streams with pending data so no single stream's backlog
// blocks the others from making progress.
func (m *Mux) writerLoop() {
	for {
		m.readyMu.Lock()
		for len(m.ready) == 0 && !m.closed {
			m.readyC.Wait()
		}
		if m.closed {
			m.readyMu.Unlock()
			return
		}
		reqNum := m.ready[0]
		m.ready = m.ready[1:]
		q := m.queues[reqNum]
		if len(q) == 0 {
			m.readyMu.Unlock()
			continue
		}
		pkt := q[0]
		q = q[1:]
		if len(q) > 0 {
			m.queues[reqNum] = q
			m.ready = append(m.ready, reqNum)
		} else {
			delete(m.queues, reqNum)
		}
		m.readyMu.Unlock()

		if _, err := m.conn.Write(pkt.Marshal()); err != nil {
			m.Close()
			return
		}
	}
}

func (m *Mux) readerLoop() error {
	for {
		pkt, err := ReadPacket(m.conn)
		if err != nil {
			return err
		}

		absReq := pkt.RequestNumber
		if absReq < 0 {
			absReq = -absReq
		}

		m.mu.Lock()
		s, known := m.streams[absReq]
		m.mu.Unlock()

		if known {
			s.deliver(pkt)
			if pkt.EndOrErr {
				s.teardown(io.EOF)
			}
			continue
		}

		if pkt.RequestNumber < 0 {
			// response to a call we no longer track; drop.
			continue
		}

		m.handleNewCall(pkt)
	}
}

func (m *Mux) handleNewCall(pkt Packet) {
	var env envelope
	if err := json.Unmarshal(pkt.Body, &env); err != nil {
		return
	}

	m.mu.Lock()
	handler, ok := m.handlers[strings.Join(env.Name, ".")]
	m.mu.Unlock()

	s := newStream(m, pkt.RequestNumber, env.Type, env.Name)
	m.mu.Lock()
	m.streams[pkt.RequestNumber] = s
	m.mu.Unlock()

	if !ok {
		body, _ := json.Marshal(map[string]string{"message": ErrUnknownMethod.Error()})
		_ = s.Send(body, BodyTypeJSON, true)
		s.teardown(ErrUnknownMethod)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := handler(m.ctx, s, env.Args); err != nil {
			body, _ := json.Marshal(map[string]string{"message": err.Error()})
			_ = s.Send(body, BodyTypeJSON, true)
		}
		s.teardown(io.EOF)
	}()
}

// Close tears down every stream with ErrConnectionClosed and closes
// the underlying connection.
func (m *Mux) Close() error {
	m.readyMu.Lock()
	if m.closed {
		m.readyMu.Unlock()
		return nil
	}
	m.closed = true
	m.readyC.Broadcast()
	m.readyMu.Unlock()

	m.mu.Lock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	for _, s := range streams {
		s.teardown(ErrConnectionClosed)
	}

	m.cancel()
	return m.conn.Close()
}
