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

// Package node wires together identity, transport, storage, and
// replication into a single running Solar instance: the context object
// every connection and background task hangs off of.
package node

import (
	"net"

	"github.com/ssb-solar/solar/boxstream"
	"github.com/ssb-solar/solar/handshake"
)

// secureConn layers boxstream framing over a raw net.Conn using the
// keys and nonces a completed handshake produced, and implements
// io.ReadWriteCloser so it can be handed straight to muxrpc.NewMux.
type secureConn struct {
	net.Conn
	*boxstream.Reader
	*boxstream.Writer
}

func newSecureConn(conn net.Conn, sess *handshake.Session) *secureConn {
	return &secureConn{
		Conn:   conn,
		Reader: boxstream.NewReader(conn, sess.RecvKey, sess.RecvNonce),
		Writer: boxstream.NewWriter(conn, sess.SendKey, sess.SendNonce),
	}
}

func (c *secureConn) Read(p []byte) (int, error)  { return c.Reader.Read(p) }
func (c *secureConn) Write(p []byte) (int, error) { return c.Writer.Write(p) }

func (c *secureConn) Close() error {
	_ = c.Writer.Close()
	return c.Conn.Close()
}
