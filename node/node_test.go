package node

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssb-solar/solar/handshake"
	"github.com/ssb-solar/solar/replicate"
	"github.com/ssb-solar/solar/store/memory"
)

func genIdentity(t *testing.T) handshake.Identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return handshake.Identity{Public: pub, Private: priv}
}

func TestLoadOrCreateIdentityPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")

	first, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)

	second, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)

	assert.True(t, first.Public.Equal(second.Public))
	assert.Equal(t, first.Private, second.Private)
}

func TestNodeDialRegistersPeerOnBothSides(t *testing.T) {
	serverIdentity := genIdentity(t)
	clientIdentity := genIdentity(t)

	var networkKey [32]byte
	copy(networkKey[:], []byte("test-network-key-32-bytes-long!"))

	serverNode := New(serverIdentity, memory.New(), replicate.NewPromiscuousConfig(), networkKey, nil)
	defer serverNode.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, serverNode.Listen(ctx, "127.0.0.1:0"))
	addr := serverNode.ln.Addr().String()

	clientNode := New(clientIdentity, memory.New(), replicate.NewPromiscuousConfig(), networkKey, nil)
	defer clientNode.Close()

	require.NoError(t, clientNode.Dial(ctx, addr, serverIdentity.Public))

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, clientNode.Peers(), 1)
	assert.Len(t, serverNode.Peers(), 1)
}
