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

package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ssb-solar/solar/codec"
	"github.com/ssb-solar/solar/crypto/batch"
	"github.com/ssb-solar/solar/internal/metrics"
	"github.com/ssb-solar/solar/muxrpc"
	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/store"
)

// maxVerifyBatch bounds how many buffered history-stream packets the
// controller verifies together in one batch, matching the stream's
// receive buffer size (see muxrpc.Stream) so a single drain never
// spans more than one peer-side send burst.
const maxVerifyBatch = 32

// historyStreamArgs mirrors the createHistoryStream call arguments.
type historyStreamArgs struct {
	ID  string `json:"id"`
	Seq int64  `json:"seq"`
	// Live asks the serving peer to keep the stream open past the
	// current head. HandleHistoryStream does not honor it: it always
	// ends the stream once it has sent the feed's current head.
	Live bool `json:"live"`
}

// Controller schedules outbound createHistoryStream calls against
// connected peers, one per feed it wants to replicate, and applies the
// resulting messages to a Store. It deduplicates concurrent pulls of
// the same feed, mirroring the teacher's session manager's map+mutex
// shape generalized from session IDs to feed references.
type Controller struct {
	st  store.Store
	cfg Config

	mu     sync.Mutex
	active map[string]context.CancelFunc

	// Notify, when set, is called with every message this controller
	// appends via replication (not for locally published messages).
	// Used to feed an admin API's live tail.
	Notify func(*codec.Message)
}

// NewController builds a Controller over st using cfg's replication
// policy.
func NewController(st store.Store, cfg Config) *Controller {
	return &Controller{
		st:     st,
		cfg:    cfg,
		active: make(map[string]context.CancelFunc),
	}
}

// Close cancels every in-flight pull.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.active {
		cancel()
	}
	c.active = make(map[string]context.CancelFunc)
}

// ReplicateAll starts (or leaves running) one pull per feed this
// node's Config allows, against mux. It returns once every pull has
// been started; pulls themselves run until ctx is cancelled or the
// peer's stream ends.
func (c *Controller) ReplicateAll(ctx context.Context, mux *muxrpc.Mux, feeds []refs.FeedRef) {
	for _, feed := range feeds {
		if !c.cfg.Allows(feed) {
			continue
		}
		c.replicateFeed(ctx, mux, feed)
	}
}

func (c *Controller) replicateFeed(ctx context.Context, mux *muxrpc.Mux, feed refs.FeedRef) {
	key := feed.Ref()

	c.mu.Lock()
	if _, inFlight := c.active[key]; inFlight {
		c.mu.Unlock()
		return
	}
	pullCtx, cancel := context.WithCancel(ctx)
	c.active[key] = cancel
	c.mu.Unlock()
	metrics.ActivePulls.Inc()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.active, key)
			c.mu.Unlock()
			cancel()
			metrics.ActivePulls.Dec()
		}()
		_ = c.pull(pullCtx, mux, feed)
	}()
}

// pull drives one createHistoryStream call to completion, verifying
// and appending each message. It returns the first error encountered;
// a gap or fork terminates only this feed's pull, not the connection.
func (c *Controller) pull(ctx context.Context, mux *muxrpc.Mux, feed refs.FeedRef) error {
	from := int64(1)
	if head, err := c.st.Head(feed); err == nil {
		from = head.Sequence + 1
	}

	args := historyStreamArgs{ID: feed.Ref(), Seq: from, Live: true}
	stream, err := mux.Source([]string{"createHistoryStream"}, args)
	if err != nil {
		return fmt.Errorf("replicate: open history stream for %s: %w", feed.Ref(), err)
	}
	defer stream.Close()

	for {
		pkt, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		if pkt.EndOrErr {
			return nil
		}

		pkts := []muxrpc.Packet{pkt}
		done := false
		for len(pkts) < maxVerifyBatch {
			more, ok := stream.TryRecv()
			if !ok {
				break
			}
			if more.EndOrErr {
				done = true
				break
			}
			pkts = append(pkts, more)
		}

		if err := c.verifyAndAppendBatch(feed, pkts); err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// verifyAndAppendBatch verifies every packet's signature together via
// crypto/batch, then appends each in order. On a batch failure it
// falls back to crypto/batch's per-entry result to append whichever
// prefix of the batch was genuinely valid before reporting the first
// bad one, rather than discarding work the peer sent honestly.
func (c *Controller) verifyAndAppendBatch(feed refs.FeedRef, packets []muxrpc.Packet) error {
	type prepared struct {
		ref refs.MessageRef
		msg *codec.Message
	}
	preparedMsgs := make([]prepared, len(packets))
	entries := make([]batch.Entry, len(packets))

	for i, pkt := range packets {
		ref, msg, signedBytes, sig, err := codec.PrepareVerify(pkt.Body)
		if err != nil {
			metrics.MessagesReplicated.WithLabelValues("rejected").Inc()
			return fmt.Errorf("%w: %v", store.ErrSignatureInvalid, err)
		}
		if !msg.Author.Equal(feed) {
			metrics.MessagesReplicated.WithLabelValues("rejected").Inc()
			return fmt.Errorf("replicate: stream for %s produced a message by %s", feed.Ref(), msg.Author.Ref())
		}
		preparedMsgs[i] = prepared{ref: ref, msg: msg}
		entries[i] = batch.Entry{Message: signedBytes, PublicKey: msg.Author.PublicKey(), Signature: sig}
	}

	ok, failures, err := batch.Verify(entries)
	if err != nil && !ok {
		// Append whatever prefix verified individually-clean, then
		// report the first bad signature.
		for i, p := range preparedMsgs {
			if failures[i] {
				metrics.MessagesReplicated.WithLabelValues("rejected").Inc()
				return fmt.Errorf("%w: message %s:%d failed batch verification", store.ErrSignatureInvalid, feed.Ref(), p.msg.Sequence)
			}
			if err := c.appendOne(p.ref, p.msg); err != nil {
				return err
			}
		}
		return nil
	}

	for _, p := range preparedMsgs {
		if err := c.appendOne(p.ref, p.msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) appendOne(ref refs.MessageRef, msg *codec.Message) error {
	if _, err := c.st.Append(msg, ref); err != nil {
		metrics.MessagesReplicated.WithLabelValues("rejected").Inc()
		switch {
		case errors.Is(err, store.ErrForkDetected):
			metrics.ForksDetected.Inc()
		case errors.Is(err, store.ErrGapDetected):
			metrics.GapsDetected.Inc()
		}
		return fmt.Errorf("replicate: append %s seq %d: %w", msg.Author.Ref(), msg.Sequence, err)
	}
	metrics.MessagesReplicated.WithLabelValues("appended").Inc()
	if c.Notify != nil {
		c.Notify(msg)
	}
	return nil
}

// HandleHistoryStream implements the server side of createHistoryStream
// for this node's Store: it streams every message from args.Seq through
// the feed's current head, as raw canonical bytes.
func (c *Controller) HandleHistoryStream(ctx context.Context, s *muxrpc.Stream, args json.RawMessage) error {
	var req historyStreamArgs
	if err := json.Unmarshal(args, &req); err != nil {
		return fmt.Errorf("replicate: bad createHistoryStream args: %w", err)
	}
	feed, err := refs.ParseFeedRef(req.ID)
	if err != nil {
		return fmt.Errorf("replicate: bad feed id %q: %w", req.ID, err)
	}
	if !c.cfg.Allows(feed) && c.cfg.Mode != ModePromiscuous {
		return fmt.Errorf("replicate: feed %s not offered to peers", feed.Ref())
	}

	from := req.Seq
	if from < 1 {
		from = 1
	}

	it, err := c.st.Range(feed, from, 0)
	if err != nil {
		return fmt.Errorf("replicate: range %s: %w", feed.Ref(), err)
	}
	defer it.Close()

	for it.Next() {
		encoded, err := codec.Encode(it.Message())
		if err != nil {
			return fmt.Errorf("replicate: encode %s seq %d: %w", feed.Ref(), it.Message().Sequence, err)
		}
		if err := s.Send(encoded, muxrpc.BodyTypeJSON, false); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return s.Send(nil, muxrpc.BodyTypeJSON, true)
}
