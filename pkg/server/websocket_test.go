package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/huddle/pkg/protocol"
)

// Websocket clients carry the same frames as binary messages and skip the
// rendezvous dance entirely
func TestWebSocketTransport(t *testing.T) {
	srv, _ := startTestServer(t)

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	writeFrame := func(kind uint8, payload []byte) {
		data, err := protocol.EncodeMessage(protocol.ProtocolVersion, kind, protocol.AuthNone, payload)
		require.NoError(t, err)
		require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, data))
	}
	readFrame := func() *protocol.Frame {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		frame, err := protocol.DecodeMessage(data)
		require.NoError(t, err)
		return frame
	}

	// Handshake
	payload, err := (&protocol.SignUpMessage{Username: "wsuser", Password: "pw"}).Encode()
	require.NoError(t, err)
	writeFrame(protocol.KindSignUp, payload)

	resp := readFrame()
	assert.Equal(t, uint8(protocol.KindSignUp), resp.Kind)
	assert.Equal(t, uint8(protocol.AuthSuccess), resp.AuthStatus)

	// A serving-phase request works over the same channel
	payload, err = (&protocol.CreateChatMessage{ChatName: "ws-chat"}).Encode()
	require.NoError(t, err)
	writeFrame(protocol.KindCreateChat, payload)

	resp = readFrame()
	assert.Equal(t, uint8(protocol.KindCreateChat), resp.Kind)

	// The websocket user is in the same directory as TCP users
	assert.True(t, srv.Directory().Contains("wsuser"))
}
