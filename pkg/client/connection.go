// Package client implements the connecting side of the rendezvous dance and
// typed request helpers over the duplex channel.
package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/aeolun/huddle/pkg/protocol"
)

// ErrTimeout is returned when the server does not dial back in time
var ErrTimeout = errors.New("timed out waiting for server dial-back")

// ErrRejected is returned by request helpers when the server answers with a
// ClientError envelope. The server's explanation is wrapped.
var ErrRejected = errors.New("request rejected")

// ErrServerFault is returned when the server answers with a ServerError
// envelope. The session is dead afterwards.
var ErrServerFault = errors.New("server fault")

// Connection is one client's duplex channel to the server
type Connection struct {
	conn    net.Conn
	timeout time.Duration
}

// Connect performs the two-phase dance: open an ephemeral listener, announce
// its address at the rendezvous port, then accept the server's dial-back.
func Connect(rendezvousAddr string, timeout time.Duration) (*Connection, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to open reply listener: %w", err)
	}
	defer listener.Close()

	if err := announce(rendezvousAddr, listener.Addr().String(), timeout); err != nil {
		return nil, err
	}

	if tcp, ok := listener.(*net.TCPListener); ok {
		tcp.SetDeadline(time.Now().Add(timeout))
	}
	conn, err := listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	return &Connection{conn: conn, timeout: timeout}, nil
}

// announce pushes one Announce envelope to the rendezvous port. The
// rendezvous connection carries nothing else and is closed immediately.
func announce(rendezvousAddr, replyAddr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", rendezvousAddr, timeout)
	if err != nil {
		return fmt.Errorf("failed to reach rendezvous at %s: %w", rendezvousAddr, err)
	}
	defer conn.Close()

	msg := &protocol.AnnounceMessage{ReplyAddr: replyAddr}
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(timeout))
	return protocol.EncodeFrame(conn, &protocol.Frame{
		Version: protocol.ProtocolVersion,
		Kind:    protocol.KindAnnounce,
		Payload: payload,
	})
}

// Close tears down the duplex channel
func (c *Connection) Close() error {
	return c.conn.Close()
}

// roundTrip sends one request envelope and reads the one response
func (c *Connection) roundTrip(req *protocol.Frame) (*protocol.Frame, error) {
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := protocol.EncodeFrame(c.conn, req); err != nil {
		return nil, fmt.Errorf("send %s: %w", protocol.KindName(req.Kind), err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	resp, err := protocol.DecodeFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", protocol.KindName(req.Kind), err)
	}
	return resp, nil
}

// request round-trips and maps error envelopes to client errors
func (c *Connection) request(kind uint8, msg interface{ Encode() ([]byte, error) }) (*protocol.Frame, error) {
	payload, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(&protocol.Frame{
		Version: protocol.ProtocolVersion,
		Kind:    kind,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}

	switch resp.Kind {
	case protocol.KindClientError:
		errMsg := &protocol.ErrorMessage{}
		if err := errMsg.Decode(resp.Payload); err != nil {
			return nil, fmt.Errorf("%w: unreadable explanation: %v", ErrRejected, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, errMsg.Message)
	case protocol.KindServerError:
		errMsg := &protocol.ErrorMessage{}
		if err := errMsg.Decode(resp.Payload); err != nil {
			return nil, ErrServerFault
		}
		return nil, fmt.Errorf("%w: %s", ErrServerFault, errMsg.Message)
	}

	return resp, nil
}

// authenticate sends one handshake envelope and returns the AuthStatus byte
func (c *Connection) authenticate(kind uint8, msg interface{ Encode() ([]byte, error) }) (uint8, error) {
	payload, err := msg.Encode()
	if err != nil {
		return protocol.AuthNone, err
	}
	resp, err := c.roundTrip(&protocol.Frame{
		Version: protocol.ProtocolVersion,
		Kind:    kind,
		Payload: payload,
	})
	if err != nil {
		return protocol.AuthNone, err
	}
	return resp.AuthStatus, nil
}

// SignIn authenticates an existing user. The returned status mirrors the
// server's AuthStatus byte.
func (c *Connection) SignIn(username, password string) (uint8, error) {
	return c.authenticate(protocol.KindSignIn, &protocol.SignInMessage{Username: username, Password: password})
}

// SignUp registers a new user
func (c *Connection) SignUp(username, password string) (uint8, error) {
	return c.authenticate(protocol.KindSignUp, &protocol.SignUpMessage{Username: username, Password: password})
}

// SendMessage appends a message to a chat
func (c *Connection) SendMessage(chatName, body string) error {
	_, err := c.request(protocol.KindCreateMessage, &protocol.CreateMessageMessage{
		ChatName: chatName,
		Body:     body,
	})
	return err
}

// CreateChat creates a chat with the given members; the signed-in user
// becomes its admin
func (c *Connection) CreateChat(chatName string, members []string) error {
	_, err := c.request(protocol.KindCreateChat, &protocol.CreateChatMessage{
		ChatName: chatName,
		Members:  members,
	})
	return err
}

// UpdateChats returns the chats with activity at or after since, oldest
// first, plus the server clock for the next sync
func (c *Connection) UpdateChats(username string, since time.Time) ([]string, time.Time, error) {
	resp, err := c.request(protocol.KindUpdateChats, &protocol.UpdateChatsMessage{
		Username: username,
		Since:    since,
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	list := &protocol.ChatListMessage{}
	if err := list.Decode(resp.Payload); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode chat list: %w", err)
	}
	return list.Chats, list.ServerTime, nil
}

// GetChatMessages returns the chat history visible to the signed-in user
func (c *Connection) GetChatMessages(chatName string) ([]string, error) {
	resp, err := c.request(protocol.KindGetChatMessages, &protocol.GetChatMessagesMessage{
		ChatName: chatName,
	})
	if err != nil {
		return nil, err
	}

	list := &protocol.MessageListMessage{}
	if err := list.Decode(resp.Payload); err != nil {
		return nil, fmt.Errorf("decode message list: %w", err)
	}
	return list.Messages, nil
}

// InviteUser adds a user to a chat, optionally sharing the full history
func (c *Connection) InviteUser(chatName, invitee string, shareHistory bool) error {
	_, err := c.request(protocol.KindInviteUser, &protocol.InviteUserMessage{
		ChatName:     chatName,
		Invitee:      invitee,
		ShareHistory: shareHistory,
	})
	return err
}

// Raw sends an arbitrary envelope and returns the raw response. Useful for
// probing version skew behavior.
func (c *Connection) Raw(frame *protocol.Frame) (*protocol.Frame, error) {
	return c.roundTrip(frame)
}
