package client

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/huddle/pkg/protocol"
)

// A rendezvous that swallows the announcement without dialing back leaves the
// client with a timeout, not a hang
func TestConnectTimesOutWithoutDialBack(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		io.Copy(io.Discard, conn)
		conn.Close()
	}()

	_, err = Connect(listener.Addr().String(), 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestConnectFailsWhenRendezvousUnreachable(t *testing.T) {
	// Grab a port and close it again so nothing is listening there
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	_, err = Connect(addr, 300*time.Millisecond)
	assert.Error(t, err)
}

// The announcement carries the reply address the client actually listens on
func TestAnnounceCarriesReplyAddress(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		frame, err := protocol.DecodeFrame(conn)
		if err != nil {
			return
		}
		msg := &protocol.AnnounceMessage{}
		if msg.Decode(frame.Payload) == nil && frame.Kind == protocol.KindAnnounce {
			got <- msg.ReplyAddr
		}
	}()

	// No dial-back happens, so Connect times out after announcing
	Connect(listener.Addr().String(), 300*time.Millisecond)

	select {
	case addr := <-got:
		host, _, err := net.SplitHostPort(addr)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", host)
	case <-time.After(time.Second):
		t.Fatal("announcement never arrived")
	}
}
