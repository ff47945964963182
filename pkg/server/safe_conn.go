package server

import (
	"net"
	"sync"
	"time"

	"github.com/aeolun/huddle/pkg/protocol"
)

// SafeConn wraps a net.Conn with automatic write synchronization to prevent
// concurrent writes from corrupting the wire protocol frames.
//
// The session goroutine owns its connection, but shutdown paths may race a
// final write against the request loop. SafeConn encapsulates the connection
// and its write mutex so writing without synchronization is impossible.
type SafeConn struct {
	conn net.Conn
	mu   sync.Mutex // Protects writes to conn
}

// NewSafeConn wraps a net.Conn with write synchronization
func NewSafeConn(conn net.Conn) *SafeConn {
	return &SafeConn{
		conn: conn,
	}
}

// EncodeFrame encodes and sends a protocol frame with automatic write
// synchronization. This is the only way to write frames to the connection.
// The frame is marshaled first and written in one call, so message-oriented
// transports carry exactly one frame per message.
func (sc *SafeConn) EncodeFrame(frame *protocol.Frame) error {
	data, err := protocol.EncodeMessage(frame.Version, frame.Kind, frame.AuthStatus, frame.Payload)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, err = sc.conn.Write(data)
	return err
}

// ReadFrame reads a protocol frame from the connection.
// Reads don't need write synchronization.
func (sc *SafeConn) ReadFrame() (*protocol.Frame, error) {
	return protocol.DecodeFrame(sc.conn)
}

// SetReadDeadline bounds the next read on the connection
func (sc *SafeConn) SetReadDeadline(t time.Time) error {
	return sc.conn.SetReadDeadline(t)
}

// SetWriteDeadline bounds the next write on the connection
func (sc *SafeConn) SetWriteDeadline(t time.Time) error {
	return sc.conn.SetWriteDeadline(t)
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	return sc.conn.Close()
}

// RemoteAddr returns the remote network address
func (sc *SafeConn) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}
