package batch

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genEntry(t *testing.T, msg []byte) Entry {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sig := ed25519.Sign(priv, msg)
	return Entry{Message: msg, PublicKey: pub, Signature: sig}
}

func TestVerifyBatchAllValid(t *testing.T) {
	entries := []Entry{
		genEntry(t, []byte("one")),
		genEntry(t, []byte("two")),
		genEntry(t, []byte("three")),
	}
	ok, fails, err := Verify(entries)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, fails)
}

func TestVerifyBatchDetectsTamperedEntry(t *testing.T) {
	entries := []Entry{
		genEntry(t, []byte("one")),
		genEntry(t, []byte("two")),
	}
	entries[1].Signature[0] ^= 0xFF

	ok, fails, err := Verify(entries)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrBatchInvalid)
	require.Len(t, fails, 2)
	assert.False(t, fails[0])
	assert.True(t, fails[1])
}

func TestVerifyEmptyBatch(t *testing.T) {
	ok, fails, err := Verify(nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, fails)
}
