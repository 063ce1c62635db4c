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

package node

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ssb-solar/solar/codec"
	"github.com/ssb-solar/solar/handshake"
	"github.com/ssb-solar/solar/internal/logger"
	"github.com/ssb-solar/solar/internal/metrics"
	"github.com/ssb-solar/solar/muxrpc"
	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/replicate"
	"github.com/ssb-solar/solar/store"
)

// Node is a running Solar instance: one identity, one Store, one
// replication policy, listening for and dialing out to peers. Every
// background task (the listen loop, each peer's muxrpc.Mux, LAN
// discovery) is threaded through this explicit context object rather
// than reaching for ambient globals.
type Node struct {
	Identity   handshake.Identity
	Store      store.Store
	NetworkKey [32]byte

	controller *replicate.Controller
	log        logger.Logger

	mu    sync.Mutex
	peers map[string]*muxrpc.Mux // keyed by peer long-term identity ref
	ln    net.Listener

	subMu       sync.Mutex
	subscribers map[chan *codec.Message]struct{}
}

// New builds a Node. repl is the initial replication policy; callers
// may mutate the Config's Targets afterward (e.g. as LAN discovery
// finds addresses) since Config.Targets is a shared map.
func New(identity handshake.Identity, st store.Store, repl replicate.Config, networkKey [32]byte, log logger.Logger) *Node {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	n := &Node{
		Identity:    identity,
		Store:       st,
		NetworkKey:  networkKey,
		controller:  replicate.NewController(st, repl),
		log:         log,
		peers:       make(map[string]*muxrpc.Mux),
		subscribers: make(map[chan *codec.Message]struct{}),
	}
	n.controller.Notify = n.broadcast
	return n
}

// FeedRef returns this node's own feed reference.
func (n *Node) FeedRef() refs.FeedRef {
	return refs.NewFeedRef(n.Identity.Public)
}

// Close stops the listener, every peer connection, and the
// replication controller.
func (n *Node) Close() error {
	n.controller.Close()

	n.mu.Lock()
	ln := n.ln
	peers := make([]*muxrpc.Mux, 0, len(n.peers))
	for _, m := range n.peers {
		peers = append(peers, m)
	}
	n.peers = make(map[string]*muxrpc.Mux)
	n.mu.Unlock()

	for _, m := range peers {
		_ = m.Close()
	}
	if ln != nil {
		return ln.Close()
	}
	return nil
}

// Listen opens addr (typically ":8008") and accepts inbound
// connections until Close is called or the listener errors. It
// returns once the listener is ready; connection handling runs in
// background goroutines.
func (n *Node) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("node: listen: %w", err)
	}
	n.mu.Lock()
	n.ln = ln
	n.mu.Unlock()

	go n.acceptLoop(ctx, ln)
	return nil
}

func (n *Node) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			n.log.Error("accept failed, listener stopping", logger.Error(err))
			return
		}
		go n.handleInbound(ctx, conn)
	}
}

func (n *Node) handleInbound(ctx context.Context, conn net.Conn) {
	sess, err := handshake.Accept(conn, n.NetworkKey, n.Identity, handshake.AllowAny)
	if err != nil {
		n.log.Warn("handshake failed", logger.String("remote", conn.RemoteAddr().String()), logger.Error(err))
		conn.Close()
		return
	}
	n.bindPeer(ctx, conn, sess, "inbound")
}

// Dial connects to addr and performs the client-side handshake against
// the peer identified by peerLongTerm, then starts replication for
// this node's replication targets over the resulting connection.
func (n *Node) Dial(ctx context.Context, addr string, peerLongTerm ed25519.PublicKey) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("node: dial %s: %w", addr, err)
	}
	sess, err := handshake.Dial(conn, n.NetworkKey, n.Identity, peerLongTerm)
	if err != nil {
		conn.Close()
		return fmt.Errorf("node: handshake with %s: %w", addr, err)
	}
	n.bindPeer(ctx, conn, sess, "outbound")
	return nil
}

func (n *Node) bindPeer(ctx context.Context, conn net.Conn, sess *handshake.Session, direction string) {
	secure := newSecureConn(conn, sess)
	mux := muxrpc.NewMux(secure)

	peerKey := refs.NewFeedRef(sess.PeerIdentity).Ref()
	n.mu.Lock()
	n.peers[peerKey] = mux
	n.mu.Unlock()
	metrics.PeerConnectionsOpened.WithLabelValues(direction).Inc()
	metrics.PeerConnectionsActive.Inc()

	mux.Handle("createHistoryStream", n.controller.HandleHistoryStream)
	mux.Handle("whoami", n.handleWhoami)

	go func() {
		err := mux.Serve(ctx)
		n.log.Info("peer connection ended", logger.String("peer", peerKey), logger.Error(err))
		n.mu.Lock()
		delete(n.peers, peerKey)
		n.mu.Unlock()
		metrics.PeerConnectionsActive.Dec()
		metrics.PeerConnectionsClosed.WithLabelValues(closeReason(err)).Inc()
	}()

	feeds := n.targetFeeds()
	n.controller.ReplicateAll(ctx, mux, feeds)
}

func closeReason(err error) string {
	if err == nil {
		return "local_close"
	}
	if err == io.EOF {
		return "eof"
	}
	return "error"
}

func (n *Node) targetFeeds() []refs.FeedRef {
	// The controller already checks Config.Allows per feed; Node keeps
	// no separate list here beyond this node's own feed. A peer in
	// selective mode serves it only if that feed is among its targets.
	return []refs.FeedRef{n.FeedRef()}
}

func (n *Node) handleWhoami(ctx context.Context, s *muxrpc.Stream, args json.RawMessage) error {
	body, err := json.Marshal(map[string]string{"id": n.FeedRef().Ref()})
	if err != nil {
		return err
	}
	return s.Send(body, muxrpc.BodyTypeJSON, true)
}

// Publish signs and appends a new message to this node's own feed,
// building it from the current head of the store. content must already
// be a valid content object ({"type": ...} or a .box/.box2 ciphertext
// string).
func (n *Node) Publish(content json.RawMessage) (*codec.Message, error) {
	feed := n.FeedRef()

	msg := &codec.Message{
		Author:    feed,
		Hash:      "sha256",
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}

	head, err := n.Store.Head(feed)
	switch {
	case err == nil:
		msg.Sequence = head.Sequence + 1
		ref := head.Ref
		msg.Previous = &ref
	case err == store.ErrNotFound:
		msg.Sequence = 1
	default:
		return nil, fmt.Errorf("node: publish: read head: %w", err)
	}

	if err := codec.Sign(msg, n.Identity.Private); err != nil {
		return nil, fmt.Errorf("node: publish: sign: %w", err)
	}
	ref, err := codec.ComputeRef(msg)
	if err != nil {
		return nil, fmt.Errorf("node: publish: compute ref: %w", err)
	}
	if _, err := n.Store.Append(msg, ref); err != nil {
		return nil, fmt.Errorf("node: publish: append: %w", err)
	}
	n.broadcast(msg)
	return msg, nil
}

// Subscribe registers for every message this node appends, whether
// locally published or pulled from a peer. The returned function
// unregisters and closes the channel. The channel buffers 64
// messages; broadcast never blocks on it and drops a message for a
// subscriber whose buffer is full.
func (n *Node) Subscribe() (<-chan *codec.Message, func()) {
	ch := make(chan *codec.Message, 64)
	n.subMu.Lock()
	n.subscribers[ch] = struct{}{}
	n.subMu.Unlock()

	return ch, func() {
		n.subMu.Lock()
		defer n.subMu.Unlock()
		if _, ok := n.subscribers[ch]; ok {
			delete(n.subscribers, ch)
			close(ch)
		}
	}
}

func (n *Node) broadcast(msg *codec.Message) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for ch := range n.subscribers {
		select {
		case ch <- msg:
		default:
			// Slow subscriber; drop rather than block replication.
		}
	}
}

// Peers returns the long-term identity references of every currently
// connected peer.
func (n *Node) Peers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.peers))
	for k := range n.peers {
		out = append(out, k)
	}
	return out
}
