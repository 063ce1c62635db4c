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
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssb-solar/solar/handshake"
	"github.com/ssb-solar/solar/node"
	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/replicate"
	"github.com/ssb-solar/solar/store/memory"
)

func testNode(t *testing.T) *node.Node {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	identity := handshake.Identity{Public: pub, Private: priv}
	var networkKey [32]byte
	copy(networkKey[:], []byte("test-network-key-32-bytes-long!"))
	return node.New(identity, memory.New(), replicate.NewPromiscuousConfig(), networkKey, nil)
}

func TestDispatchPing(t *testing.T) {
	n := testNode(t)
	result, err := dispatch(n, "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "pong!", result)
}

func TestDispatchWhoami(t *testing.T) {
	n := testNode(t)
	result, err := dispatch(n, "whoami", nil)
	require.NoError(t, err)
	id, ok := result.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, n.FeedRef().Ref(), id["id"])
}

func TestDispatchUnknownMethod(t *testing.T) {
	n := testNode(t)
	_, err := dispatch(n, "bogus", nil)
	assert.Error(t, err)
}

func TestDispatchPeersEmpty(t *testing.T) {
	n := testNode(t)
	result, err := dispatch(n, "peers", nil)
	require.NoError(t, err)
	b, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(b))
}

func TestDispatchPublishAndFetchFeed(t *testing.T) {
	n := testNode(t)

	content := json.RawMessage(`{"type":"post","text":"hello"}`)
	publishResultAny, err := dispatch(n, "publish", content)
	require.NoError(t, err)

	published, ok := publishResultAny.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), published["seq_num"])
	msgRef, ok := published["msg_ref"].(string)
	require.True(t, ok)
	require.NotEmpty(t, msgRef)

	// feed lookup should return exactly the one published message.
	feedArgs, err := json.Marshal(map[string]string{"pub_key": n.FeedRef().Ref()})
	require.NoError(t, err)
	feedResultAny, err := dispatch(n, "feed", feedArgs)
	require.NoError(t, err)
	entries, ok := feedResultAny.([]kvt)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, msgRef, entries[0].Key)
	assert.Equal(t, int64(1), entries[0].Value.Sequence)
	assert.Nil(t, entries[0].Value.Previous)

	// message lookup by ref should return the same entry.
	msgArgs, err := json.Marshal(map[string]string{"msg_ref": msgRef})
	require.NoError(t, err)
	msgResultAny, err := dispatch(n, "message", msgArgs)
	require.NoError(t, err)
	single, ok := msgResultAny.(kvt)
	require.True(t, ok)
	assert.Equal(t, msgRef, single.Key)
}

func TestDispatchMessageNotFound(t *testing.T) {
	n := testNode(t)
	fakeRef := refs.NewMessageRef(make([]byte, 32)).Ref()
	msgArgs, err := json.Marshal(map[string]string{"msg_ref": fakeRef})
	require.NoError(t, err)
	_, err = dispatch(n, "message", msgArgs)
	assert.Error(t, err)
}

func TestDispatchFeedBadPubKey(t *testing.T) {
	n := testNode(t)
	feedArgs, err := json.Marshal(map[string]string{"pub_key": "not-a-feed-ref"})
	require.NoError(t, err)
	_, err = dispatch(n, "feed", feedArgs)
	assert.Error(t, err)
}
