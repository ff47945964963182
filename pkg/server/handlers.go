package server

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aeolun/huddle/pkg/database"
	"github.com/aeolun/huddle/pkg/protocol"
)

// handleRequest dispatches one serving-phase envelope. A returned error is
// fatal to the session; application-level rejections are answered with a
// ClientError envelope and return nil so the session keeps serving.
func (s *Server) handleRequest(sess *Session, frame *protocol.Frame) error {
	switch frame.Kind {
	case protocol.KindCreateMessage:
		return s.handleCreateMessage(sess, frame)
	case protocol.KindUpdateChats:
		return s.handleUpdateChats(sess, frame)
	case protocol.KindCreateChat:
		return s.handleCreateChat(sess, frame)
	case protocol.KindGetChatMessages:
		return s.handleGetChatMessages(sess, frame)
	case protocol.KindInviteUser:
		return s.handleInviteUser(sess, frame)
	default:
		// Unrecognized kinds are echoed back unchanged so version-skewed
		// clients get a response instead of a hang
		debugLog.Printf("Session %d: echoing unknown kind 0x%02X", sess.ID, frame.Kind)
		return s.send(sess, echoFrame(frame))
	}
}

func (s *Server) handleCreateMessage(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.CreateMessageMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return fmt.Errorf("malformed CREATE_MESSAGE payload: %w", err)
	}

	if uint32(len(msg.Body)) > s.config.MaxMessageLength {
		return s.sendClientError(sess, fmt.Sprintf("message exceeds %d bytes", s.config.MaxMessageLength))
	}

	userID, username := sess.User()
	err := s.db.CreateMessage(msg.ChatName, userID, time.Now(), msg.Body)
	switch {
	case errors.Is(err, database.ErrChatNotFound):
		return s.sendClientError(sess, fmt.Sprintf("no chat named %s", msg.ChatName))
	case errors.Is(err, database.ErrNotMember):
		return s.sendClientError(sess, fmt.Sprintf("%s is not a member of %s", username, msg.ChatName))
	case err != nil:
		s.sendServerError(sess, "storage failure")
		return fmt.Errorf("create message in %s: %w", msg.ChatName, err)
	}

	return s.sendAck(sess, frame.Kind)
}

func (s *Server) handleUpdateChats(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.UpdateChatsMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return fmt.Errorf("malformed UPDATE_CHATS payload: %w", err)
	}

	// The request names the user it syncs for; sessions only ever ask about
	// themselves but the envelope carries the name regardless
	userID, ok := s.directory.Lookup(msg.Username)
	if !ok {
		return s.sendClientError(sess, fmt.Sprintf("unknown user %s", msg.Username))
	}

	chats, err := s.db.GetChatsByTime(userID, msg.Since)
	if err != nil {
		s.sendServerError(sess, "storage failure")
		return fmt.Errorf("list chats for %s: %w", msg.Username, err)
	}

	return s.sendPayload(sess, frame.Kind, &protocol.ChatListMessage{
		Chats:      chats,
		ServerTime: time.Now(),
	})
}

func (s *Server) handleCreateChat(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.CreateChatMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return fmt.Errorf("malformed CREATE_CHAT payload: %w", err)
	}

	// Resolve every member up front so nothing is persisted when the request
	// names a user that doesn't exist
	memberIDs := make([]int64, 0, len(msg.Members))
	for _, name := range msg.Members {
		id, ok := s.directory.Lookup(name)
		if !ok {
			return s.sendClientError(sess, fmt.Sprintf("unknown user %s", name))
		}
		memberIDs = append(memberIDs, id)
	}

	adminID, _ := sess.User()
	err := s.db.CreateChat(msg.ChatName, adminID, memberIDs)
	switch {
	case errors.Is(err, database.ErrChatNameTaken):
		return s.sendClientError(sess, fmt.Sprintf("chat %s already exists", msg.ChatName))
	case err != nil:
		s.sendServerError(sess, "storage failure")
		return fmt.Errorf("create chat %s: %w", msg.ChatName, err)
	}

	log.Printf("Session %d: created chat %s with %d members", sess.ID, msg.ChatName, len(memberIDs)+1)
	return s.sendAck(sess, frame.Kind)
}

func (s *Server) handleGetChatMessages(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.GetChatMessagesMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return fmt.Errorf("malformed GET_CHAT_MESSAGES payload: %w", err)
	}

	userID, username := sess.User()
	messages, err := s.db.GetChatMessages(msg.ChatName, userID)
	switch {
	case errors.Is(err, database.ErrChatNotFound):
		return s.sendClientError(sess, fmt.Sprintf("no chat named %s", msg.ChatName))
	case errors.Is(err, database.ErrNotMember):
		return s.sendClientError(sess, fmt.Sprintf("%s is not a member of %s", username, msg.ChatName))
	case err != nil:
		s.sendServerError(sess, "storage failure")
		return fmt.Errorf("read chat %s: %w", msg.ChatName, err)
	}

	return s.sendPayload(sess, frame.Kind, &protocol.MessageListMessage{
		Messages: messages,
	})
}

func (s *Server) handleInviteUser(sess *Session, frame *protocol.Frame) error {
	msg := &protocol.InviteUserMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return fmt.Errorf("malformed INVITE_USER payload: %w", err)
	}

	inviteeID, ok := s.directory.Lookup(msg.Invitee)
	if !ok {
		return s.sendClientError(sess, fmt.Sprintf("unknown user %s", msg.Invitee))
	}

	invitorID, _ := sess.User()
	err := s.db.InviteUserToChat(msg.ChatName, invitorID, inviteeID, msg.ShareHistory)
	switch {
	case errors.Is(err, database.ErrChatNotFound):
		return s.sendClientError(sess, fmt.Sprintf("no chat named %s", msg.ChatName))
	case errors.Is(err, database.ErrAlreadyMember):
		// Re-inviting a member is a no-op; their horizon stays put
		return s.sendAck(sess, frame.Kind)
	case errors.Is(err, database.ErrUserNotFound):
		return s.sendClientError(sess, fmt.Sprintf("unknown user %s", msg.Invitee))
	case err != nil:
		s.sendServerError(sess, "storage failure")
		return fmt.Errorf("invite %s to %s: %w", msg.Invitee, msg.ChatName, err)
	}

	return s.sendAck(sess, frame.Kind)
}

// send writes one response envelope with a write deadline
func (s *Server) send(sess *Session, frame *protocol.Frame) error {
	sess.Conn.SetWriteDeadline(time.Now().Add(s.config.SessionTimeout()))
	if err := sess.Conn.EncodeFrame(frame); err != nil {
		return fmt.Errorf("write %s response: %w", protocol.KindName(frame.Kind), err)
	}
	debugLog.Printf("Session %d → SENT: Kind=0x%02X PayloadLen=%d", sess.ID, frame.Kind, len(frame.Payload))
	return nil
}

// sendAck acknowledges a request by echoing its kind with an empty payload
func (s *Server) sendAck(sess *Session, kind uint8) error {
	return s.send(sess, &protocol.Frame{
		Version: protocol.ProtocolVersion,
		Kind:    kind,
	})
}

// sendPayload sends a response envelope carrying an encoded message body
func (s *Server) sendPayload(sess *Session, kind uint8, msg interface{ Encode() ([]byte, error) }) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s response: %w", protocol.KindName(kind), err)
	}
	return s.send(sess, &protocol.Frame{
		Version: protocol.ProtocolVersion,
		Kind:    kind,
		Payload: payload,
	})
}

// sendClientError answers a rejected request. The session stays live.
func (s *Server) sendClientError(sess *Session, text string) error {
	if s.metrics != nil {
		s.metrics.RecordErrorResponse("client_error")
	}
	return s.sendPayload(sess, protocol.KindClientError, &protocol.ErrorMessage{Message: text})
}

// sendServerError reports an internal failure. The caller terminates the
// session afterwards, so the write error is irrelevant.
func (s *Server) sendServerError(sess *Session, text string) {
	if s.metrics != nil {
		s.metrics.RecordErrorResponse("server_error")
	}
	s.sendPayload(sess, protocol.KindServerError, &protocol.ErrorMessage{Message: text})
}
