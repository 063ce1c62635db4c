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
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ssb-solar/solar/codec"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Solar's admin API is an embeddable local control surface, not
		// a public endpoint; the publish method is the only one that
		// mutates state, and it is gated by its own bearer token when a
		// JWT secret is configured.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const streamWriteTimeout = 10 * time.Second

// streamHandler returns an http.Handler that upgrades to a websocket
// and pushes every message the node appends (locally published or
// replicated) as a KVT, until the client disconnects.
func (s *Server) streamHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed")
			return
		}
		defer conn.Close()

		msgs, unsubscribe := s.node.Subscribe()
		defer unsubscribe()

		// The admin stream is write-only from the server's perspective;
		// this goroutine's only job is noticing the client went away.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ref, err := codec.ComputeRef(msg)
				if err != nil {
					continue
				}
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
					return
				}
				if err := conn.WriteJSON(toKVT(ref.Ref(), msg)); err != nil {
					return
				}
			}
		}
	})
}
