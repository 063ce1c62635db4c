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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	n := testNode(t)
	s := NewServer(n, "", nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/stream", s.streamHandler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func rpcCall(t *testing.T, ts *httptest.Server, method string, args any) rpcResponse {
	t.Helper()
	rawArgs, err := json.Marshal(args)
	require.NoError(t, err)
	body, err := json.Marshal(rpcRequest{Method: method, Args: rawArgs})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandleRPCPing(t *testing.T) {
	_, ts := newTestServer(t)
	out := rpcCall(t, ts, "ping", nil)
	require.Nil(t, out.Error)
	assert.Equal(t, "pong!", out.Result)
}

func TestHandleRPCRejectsNonPost(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/rpc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleRPCPublishOpenWithoutSecret(t *testing.T) {
	_, ts := newTestServer(t)
	out := rpcCall(t, ts, "publish", json.RawMessage(`{"type":"post","text":"hi"}`))
	require.Nil(t, out.Error)
}

func TestHandleRPCPublishRequiresTokenWhenConfigured(t *testing.T) {
	n := testNode(t)
	t.Setenv("SOLAR_TEST_JWT_SECRET", "shh")
	s := NewServer(n, "SOLAR_TEST_JWT_SECRET", nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	body, err := json.Marshal(rpcRequest{Method: "publish", Args: json.RawMessage(`{"type":"post"}`)})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamHandlerRelaysPublishedMessage(t *testing.T) {
	n := testNode(t)
	s := NewServer(n, "", nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/stream", s.streamHandler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	rpcCall(t, ts, "publish", json.RawMessage(`{"type":"post","text":"hi"}`))

	var got kvt
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(1), got.Value.Sequence)
}
