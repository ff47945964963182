package protocol

import (
	"bytes"
	"errors"
	"io"
)

const (
	// MaxFrameSize is the maximum allowed frame size (1 MB)
	MaxFrameSize = 1024 * 1024

	// ProtocolVersion is the current protocol version
	ProtocolVersion = 1
)

var (
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size (1 MB)")
	ErrInvalidFrameLength = errors.New("invalid frame length")
)

// Frame represents one envelope on the wire.
// Format: [Length (4 bytes)][Version (1 byte)][Kind (1 byte)][AuthStatus (1 byte)][Payload (N bytes)]
//
// Kind discriminates the payload shape; AuthStatus only carries meaning on
// handshake envelopes and is AuthNone everywhere else.
type Frame struct {
	Version    uint8
	Kind       uint8
	AuthStatus uint8
	Payload    []byte
}

// EncodeFrame writes a frame to the writer
func EncodeFrame(w io.Writer, f *Frame) error {
	// Length covers Version (1) + Kind (1) + AuthStatus (1) + Payload (N)
	length := uint32(1 + 1 + 1 + len(f.Payload))

	if length > MaxFrameSize {
		return ErrFrameTooLarge
	}

	if err := WriteUint32(w, length); err != nil {
		return err
	}

	if err := WriteUint8(w, f.Version); err != nil {
		return err
	}

	if err := WriteUint8(w, f.Kind); err != nil {
		return err
	}

	if err := WriteUint8(w, f.AuthStatus); err != nil {
		return err
	}

	if len(f.Payload) > 0 {
		_, err := w.Write(f.Payload)
		return err
	}

	return nil
}

// DecodeFrame reads a frame from the reader
func DecodeFrame(r io.Reader) (*Frame, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}

	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	// Length must be at least 3 (version + kind + auth status)
	if length < 3 {
		return nil, ErrInvalidFrameLength
	}

	version, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}

	kind, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}

	authStatus, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}

	payloadLen := length - 3
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	return &Frame{
		Version:    version,
		Kind:       kind,
		AuthStatus: authStatus,
		Payload:    payload,
	}, nil
}

// EncodeMessage is a helper that encodes a frame to a byte slice
func EncodeMessage(version, kind, authStatus uint8, payload []byte) ([]byte, error) {
	frame := &Frame{
		Version:    version,
		Kind:       kind,
		AuthStatus: authStatus,
		Payload:    payload,
	}

	buf := new(bytes.Buffer)
	if err := EncodeFrame(buf, frame); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeMessage is a helper that decodes a frame from a byte slice
func DecodeMessage(data []byte) (*Frame, error) {
	buf := bytes.NewReader(data)
	return DecodeFrame(buf)
}
