package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	frame := &Frame{
		Version:    ProtocolVersion,
		Kind:       KindCreateMessage,
		AuthStatus: AuthNone,
		Payload:    []byte("hello"),
	}

	buf := new(bytes.Buffer)
	require.NoError(t, EncodeFrame(buf, frame))

	decoded, err := DecodeFrame(buf)
	require.NoError(t, err)

	assert.Equal(t, frame.Version, decoded.Version)
	assert.Equal(t, frame.Kind, decoded.Kind)
	assert.Equal(t, frame.AuthStatus, decoded.AuthStatus)
	assert.Equal(t, frame.Payload, decoded.Payload)
}

func TestFrameEmptyPayload(t *testing.T) {
	frame := &Frame{
		Version:    ProtocolVersion,
		Kind:       KindSignIn,
		AuthStatus: AuthSuccess,
	}

	buf := new(bytes.Buffer)
	require.NoError(t, EncodeFrame(buf, frame))

	// Length(4) + Version(1) + Kind(1) + AuthStatus(1)
	assert.Equal(t, 7, buf.Len())

	decoded, err := DecodeFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(AuthSuccess), decoded.AuthStatus)
	assert.Empty(t, decoded.Payload)
}

func TestFrameTooLarge(t *testing.T) {
	frame := &Frame{
		Version: ProtocolVersion,
		Kind:    KindCreateMessage,
		Payload: make([]byte, MaxFrameSize),
	}

	buf := new(bytes.Buffer)
	err := EncodeFrame(buf, frame)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeFrameRejectsOversizedLength(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteUint32(buf, MaxFrameSize+1))

	_, err := DecodeFrame(buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeFrameRejectsShortLength(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteUint32(buf, 2))

	_, err := DecodeFrame(buf)
	assert.ErrorIs(t, err, ErrInvalidFrameLength)
}

func TestDecodeFrameTruncatedPayload(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteUint32(buf, 10))
	require.NoError(t, WriteUint8(buf, ProtocolVersion))
	require.NoError(t, WriteUint8(buf, KindSignIn))
	require.NoError(t, WriteUint8(buf, AuthNone))
	// Payload promised 7 bytes, deliver 2
	buf.Write([]byte{0xAA, 0xBB})

	_, err := DecodeFrame(buf)
	assert.Error(t, err)
}

func TestEncodeDecodeMessage(t *testing.T) {
	data, err := EncodeMessage(ProtocolVersion, KindUpdateChats, AuthNone, []byte{0x01, 0x02})
	require.NoError(t, err)

	frame, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(KindUpdateChats), frame.Kind)
	assert.Equal(t, []byte{0x01, 0x02}, frame.Payload)
}

func TestFrameStreamCarriesMultipleFrames(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, EncodeFrame(buf, &Frame{Version: ProtocolVersion, Kind: KindSignIn, Payload: []byte("a")}))
	require.NoError(t, EncodeFrame(buf, &Frame{Version: ProtocolVersion, Kind: KindSignUp, Payload: []byte("bb")}))

	first, err := DecodeFrame(buf)
	require.NoError(t, err)
	second, err := DecodeFrame(buf)
	require.NoError(t, err)

	assert.Equal(t, uint8(KindSignIn), first.Kind)
	assert.Equal(t, []byte("a"), first.Payload)
	assert.Equal(t, uint8(KindSignUp), second.Kind)
	assert.Equal(t, []byte("bb"), second.Payload)
}
