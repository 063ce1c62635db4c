package boxstream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	var nonce [24]byte
	copy(nonce[:], []byte("abcdefghijklmnopqrstuvwx"))

	buf := &bytes.Buffer{}
	w := NewWriter(buf, key, nonce)
	r := NewReader(buf, key, nonce)

	messages := [][]byte{
		[]byte("hello"),
		[]byte(""),
		bytes.Repeat([]byte("x"), MaxBodySize+100),
	}

	for _, m := range messages {
		_, err := w.Write(m)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	var got bytes.Buffer
	_, err := io.Copy(&got, r)
	require.NoError(t, err)

	var want bytes.Buffer
	for _, m := range messages {
		want.Write(m)
	}
	assert.Equal(t, want.Bytes(), got.Bytes())
}

func TestReaderDetectsTamperedBody(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	var nonce [24]byte
	copy(nonce[:], []byte("abcdefghijklmnopqrstuvwx"))

	buf := &bytes.Buffer{}
	w := NewWriter(buf, key, nonce)
	_, err := w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-headerBoxSize-1] ^= 0xFF

	r := NewReader(bytes.NewReader(corrupted), key, nonce)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestReaderRejectsOversizedFrame(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	var nonce [24]byte
	copy(nonce[:], []byte("abcdefghijklmnopqrstuvwx"))

	buf := &bytes.Buffer{}
	w := NewWriter(buf, key, nonce)
	// Bypass the chunking in Write to craft an over-limit single frame.
	oversized := bytes.Repeat([]byte("y"), MaxBodySize+1)
	require.NoError(t, w.writeFrame(oversized))

	r := NewReader(buf, key, nonce)
	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
