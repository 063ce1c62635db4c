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

package admin

import (
	"encoding/json"
	"fmt"

	"github.com/ssb-solar/solar/codec"
	"github.com/ssb-solar/solar/node"
	"github.com/ssb-solar/solar/refs"
)

// dispatch invokes method against n with the given raw argument
// object, returning the method's result ready for JSON encoding. The
// method table matches the fixed admin RPC surface: feed, message,
// peers, ping, publish, whoami.
func dispatch(n *node.Node, method string, rawArgs json.RawMessage) (any, error) {
	switch method {
	case "ping":
		return "pong!", nil

	case "whoami":
		return map[string]string{"id": n.FeedRef().Ref()}, nil

	case "peers":
		return peersResult(n)

	case "feed":
		var args struct {
			PubKey string `json:"pub_key"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, fmt.Errorf("admin: bad feed args: %w", err)
		}
		return feedResult(n, args.PubKey)

	case "message":
		var args struct {
			MsgRef string `json:"msg_ref"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, fmt.Errorf("admin: bad message args: %w", err)
		}
		return messageResult(n, args.MsgRef)

	case "publish":
		return publishResult(n, rawArgs)

	default:
		return nil, fmt.Errorf("admin: unknown method %q", method)
	}
}

func peersResult(n *node.Node) (any, error) {
	type peerEntry struct {
		PubKey string `json:"pub_key"`
		SeqNum int64  `json:"seq_num"`
	}
	peers := n.Peers()
	out := make([]peerEntry, 0, len(peers))
	for _, ref := range peers {
		feed, err := refs.ParseFeedRef(ref)
		if err != nil {
			continue
		}
		seq := int64(0)
		if h, err := n.Store.Head(feed); err == nil {
			seq = h.Sequence
		}
		out = append(out, peerEntry{PubKey: ref, SeqNum: seq})
	}
	return out, nil
}

func feedResult(n *node.Node, pubKey string) (any, error) {
	feed, err := refs.ParseFeedRef(pubKey)
	if err != nil {
		return nil, fmt.Errorf("admin: bad pub_key %q: %w", pubKey, err)
	}
	it, err := n.Store.Range(feed, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("admin: range %s: %w", pubKey, err)
	}
	defer it.Close()

	out := []kvt{}
	for it.Next() {
		msg := it.Message()
		ref, err := codec.ComputeRef(msg)
		if err != nil {
			return nil, fmt.Errorf("admin: compute ref for %s seq %d: %w", pubKey, msg.Sequence, err)
		}
		out = append(out, toKVT(ref.Ref(), msg))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func messageResult(n *node.Node, msgRef string) (any, error) {
	ref, err := refs.ParseMessageRef(msgRef)
	if err != nil {
		return nil, fmt.Errorf("admin: bad msg_ref %q: %w", msgRef, err)
	}
	msg, err := n.Store.GetByRef(ref)
	if err != nil {
		return nil, fmt.Errorf("admin: lookup %s: %w", msgRef, err)
	}
	return toKVT(msgRef, msg), nil
}

func publishResult(n *node.Node, content json.RawMessage) (any, error) {
	msg, err := n.Publish(content)
	if err != nil {
		return nil, err
	}
	ref, err := codec.ComputeRef(msg)
	if err != nil {
		return nil, fmt.Errorf("admin: compute ref for published message: %w", err)
	}
	return map[string]any{
		"msg_ref": ref.Ref(),
		"seq_num": msg.Sequence,
	}, nil
}
