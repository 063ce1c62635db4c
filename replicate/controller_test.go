package replicate

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ssb-solar/solar/codec"
	"github.com/ssb-solar/solar/muxrpc"
	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/store/memory"
)

func signedMessage(t *testing.T, priv ed25519.PrivateKey, author refs.FeedRef, seq int64, prev *refs.MessageRef) *codec.Message {
	t.Helper()
	m := &codec.Message{
		Previous:  prev,
		Author:    author,
		Sequence:  seq,
		Timestamp: seq * 1000,
		Hash:      "sha256",
		Content:   json.RawMessage(`{"type":"post","text":"hi"}`),
	}
	require.NoError(t, codec.Sign(m, priv))
	return m
}

func TestReplicateFeedPullsAndAppends(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	author := refs.NewFeedRef(pub)

	serverStore := memory.New()
	var prev *refs.MessageRef
	for seq := int64(1); seq <= 3; seq++ {
		m := signedMessage(t, priv, author, seq, prev)
		ref, err := codec.ComputeRef(m)
		require.NoError(t, err)
		_, err = serverStore.Append(m, ref)
		require.NoError(t, err)
		prev = &ref
	}

	clientStore := memory.New()

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientMux := muxrpc.NewMux(clientConn)
	serverMux := muxrpc.NewMux(serverConn)

	serverCtrl := NewController(serverStore, NewPromiscuousConfig())
	defer serverCtrl.Close()
	serverMux.Handle("createHistoryStream", serverCtrl.HandleHistoryStream)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go clientMux.Serve(ctx)
	go serverMux.Serve(ctx)

	clientCtrl := NewController(clientStore, NewSelectiveConfig([]PeerTarget{{Feed: author}}))
	defer clientCtrl.Close()

	require.NoError(t, clientCtrl.pull(ctx, clientMux, author))

	head, err := clientStore.Head(author)
	require.NoError(t, err)
	require.Equal(t, int64(3), head.Sequence)
}
