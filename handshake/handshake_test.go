package handshake

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genIdentity(t *testing.T) Identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return Identity{Public: pub, Private: priv}
}

func TestHandshakeRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := genIdentity(t)
	server := genIdentity(t)

	var networkKey [32]byte
	copy(networkKey[:], []byte("test-network-key-32-bytes-long!"))

	type result struct {
		sess *Session
		err  error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		sess, err := Dial(clientConn, networkKey, client, server.Public)
		clientCh <- result{sess, err}
	}()
	go func() {
		sess, err := Accept(serverConn, networkKey, server, AllowAny)
		serverCh <- result{sess, err}
	}()

	cr := <-clientCh
	sr := <-serverCh

	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	assert.Equal(t, cr.sess.SendKey, sr.sess.RecvKey)
	assert.Equal(t, cr.sess.RecvKey, sr.sess.SendKey)
	assert.Equal(t, cr.sess.SendNonce, sr.sess.RecvNonce)
	assert.Equal(t, cr.sess.RecvNonce, sr.sess.SendNonce)
	assert.True(t, cr.sess.PeerIdentity.Equal(server.Public))
	assert.True(t, sr.sess.PeerIdentity.Equal(client.Public))
}

func TestHandshakeRejectsWrongNetworkKey(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := genIdentity(t)
	server := genIdentity(t)

	var clientKey, serverKey [32]byte
	copy(clientKey[:], []byte("client-side-network-key-32bytes!"))
	copy(serverKey[:], []byte("server-side-network-key-32bytes!"))

	errCh := make(chan error, 2)
	go func() {
		_, err := Dial(clientConn, clientKey, client, server.Public)
		errCh <- err
	}()
	go func() {
		_, err := Accept(serverConn, serverKey, server, AllowAny)
		if err != nil {
			serverConn.Close() // unblock Dial, which waits for the server hello
		}
		errCh <- err
	}()

	e1 := <-errCh
	e2 := <-errCh
	assert.True(t, e1 != nil || e2 != nil)
}

func TestHandshakeRejectsUnknownPeer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := genIdentity(t)
	server := genIdentity(t)

	var networkKey [32]byte
	copy(networkKey[:], []byte("test-network-key-32-bytes-long!"))

	reject := func(ed25519.PublicKey) bool { return false }

	clientErrCh := make(chan error, 1)
	serverErrCh := make(chan error, 1)
	go func() {
		_, err := Dial(clientConn, networkKey, client, server.Public)
		clientErrCh <- err
	}()
	go func() {
		_, err := Accept(serverConn, networkKey, server, reject)
		if err != nil {
			serverConn.Close() // unblock Dial, which waits for the server accept
		}
		serverErrCh <- err
	}()

	serverErr := <-serverErrCh
	assert.ErrorIs(t, serverErr, ErrHandshakeFailed)
	<-clientErrCh
}
