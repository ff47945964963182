package server

import (
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from any origin; the handshake inside the
	// session is the access control
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConn adapts a websocket connection to net.Conn so the session
// loop can treat both transports identically. Frames travel as binary
// websocket messages; partial reads drain a buffered remainder.
type WebSocketConn struct {
	ws     *websocket.Conn
	reader []byte // Unconsumed remainder of the current message
}

// NewWebSocketConn wraps a websocket connection
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

func (c *WebSocketConn) Read(b []byte) (int, error) {
	for len(c.reader) == 0 {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.reader = data
	}

	n := copy(b, c.reader)
	c.reader = c.reader[n:]
	return n, nil
}

func (c *WebSocketConn) Write(b []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *WebSocketConn) Close() error {
	return c.ws.Close()
}

func (c *WebSocketConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *WebSocketConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *WebSocketConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *WebSocketConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

// handleWebSocket upgrades an HTTP request into a session. Websocket clients
// already have a duplex channel, so they skip the rendezvous dance and go
// straight to the handshake.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.wg.Add(1)
	go s.runSession(NewWebSocketConn(ws))
}
