package refs

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedRefRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	fr := NewFeedRef(pub)
	s := fr.Ref()
	assert.True(t, len(s) > 2 && s[0] == '@')

	parsed, err := ParseFeedRef(s)
	require.NoError(t, err)
	assert.True(t, fr.Equal(parsed))
}

func TestParseFeedRefErrors(t *testing.T) {
	_, err := ParseFeedRef("%not-a-feed.sha256")
	assert.ErrorIs(t, err, ErrInvalidSigil)

	_, err = ParseFeedRef("@AAAA.secp256k1")
	assert.ErrorIs(t, err, ErrInvalidAlgo)
}

func TestMessageRefRoundTrip(t *testing.T) {
	sum := sha256.Sum256([]byte("hello"))
	mr := NewMessageRef(sum[:])
	s := mr.Ref()
	assert.True(t, len(s) > 2 && s[0] == '%')

	parsed, err := ParseMessageRef(s)
	require.NoError(t, err)
	assert.True(t, mr.Equal(parsed))
}
