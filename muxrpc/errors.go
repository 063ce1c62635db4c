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

import "errors"

// ErrConnectionClosed is returned by Recv on every stream still open
// when the mux closes, and by Async/Source/Sink/Duplex calls made after
// that, whether the connection ended by a clean close or a transport
// error.
var ErrConnectionClosed = errors.New("muxrpc: connection closed")

// ErrUnknownMethod is sent back to a caller whose method name has no
// registered handler on this side.
var ErrUnknownMethod = errors.New("muxrpc: no handler for method")

// RemoteError wraps an error reported by the remote end of a call, as
// opposed to a local transport failure.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return "muxrpc: remote error calling " + e.Method + ": " + e.Message
}
