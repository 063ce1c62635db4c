package muxrpc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{
		Stream:        true,
		EndOrErr:      false,
		Type:          BodyTypeJSON,
		RequestNumber: -42,
		Body:          []byte(`{"ok":true}`),
	}
	wire := p.Marshal()

	got, err := ReadPacket(bytes.NewReader(wire))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestReadPacketRejectsZeroRequestNumber(t *testing.T) {
	p := Packet{RequestNumber: 0, Body: []byte("x")}
	wire := p.Marshal()
	_, err := ReadPacket(bytes.NewReader(wire))
	assert.ErrorIs(t, err, ErrZeroRequestNumber)
}

func TestReadPacketRejectsOversizedBody(t *testing.T) {
	header := make([]byte, headerSize)
	header[0] = 0
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	header[4] = 0xFF
	header[8] = 1
	_, err := ReadPacket(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}
