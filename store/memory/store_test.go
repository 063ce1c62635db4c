package memory

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/ssb-solar/solar/codec"
	"github.com/ssb-solar/solar/refs"
	"github.com/ssb-solar/solar/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedMsg(t *testing.T, priv ed25519.PrivateKey, pub ed25519.PublicKey, seq int64, prev *refs.MessageRef) (*codec.Message, refs.MessageRef) {
	t.Helper()
	m := &codec.Message{
		Previous:  prev,
		Author:    refs.NewFeedRef(pub),
		Sequence:  seq,
		Timestamp: 1700000000000 + seq,
		Hash:      "sha256",
		Content:   json.RawMessage(`{"type":"post","text":"hi"}`),
	}
	require.NoError(t, codec.Sign(m, priv))
	ref, err := codec.ComputeRef(m)
	require.NoError(t, err)
	return m, ref
}

func TestAppendSequentialAndHead(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	s := New()

	m1, ref1 := signedMsg(t, priv, pub, 1, nil)
	_, err = s.Append(m1, ref1)
	require.NoError(t, err)

	m2, ref2 := signedMsg(t, priv, pub, 2, &ref1)
	_, err = s.Append(m2, ref2)
	require.NoError(t, err)

	head, err := s.Head(refs.NewFeedRef(pub))
	require.NoError(t, err)
	assert.Equal(t, int64(2), head.Sequence)
	assert.True(t, head.Ref.Equal(ref2))

	got, err := s.GetByRef(ref1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Sequence)
}

func TestAppendGapDetected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	s := New()

	m2, ref2 := signedMsg(t, priv, pub, 2, nil)
	_, err = s.Append(m2, ref2)
	assert.ErrorIs(t, err, store.ErrGapDetected)
}

func TestAppendForkDetected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	s := New()

	m1, ref1 := signedMsg(t, priv, pub, 1, nil)
	_, err = s.Append(m1, ref1)
	require.NoError(t, err)

	fakePrev, _ := refs.ParseMessageRef(ref1.Ref())
	fakePrev.Hash[0] ^= 0xFF
	m2, ref2 := signedMsg(t, priv, pub, 2, &fakePrev)
	_, err = s.Append(m2, ref2)
	assert.ErrorIs(t, err, store.ErrForkDetected)
}

func TestRangeReturnsOrderedMessages(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	s := New()

	var prev *refs.MessageRef
	for seq := int64(1); seq <= 3; seq++ {
		m, ref := signedMsg(t, priv, pub, seq, prev)
		_, err := s.Append(m, ref)
		require.NoError(t, err)
		prev = &ref
	}

	it, err := s.Range(refs.NewFeedRef(pub), 1, 0)
	require.NoError(t, err)
	defer it.Close()

	var seqs []int64
	for it.Next() {
		seqs = append(seqs, it.Message().Sequence)
	}
	assert.Equal(t, []int64{1, 2, 3}, seqs)
}
