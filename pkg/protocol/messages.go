package protocol

import (
	"bytes"
	"errors"
	"io"
	"time"
)

// Envelope kind constants (Client → Server). Response envelopes reuse the
// request kind; a rejected request comes back with the kind swapped to
// KindClientError or KindServerError.
const (
	KindSignIn          = 0x01
	KindSignUp          = 0x02
	KindCreateMessage   = 0x03
	KindUpdateChats     = 0x04
	KindCreateChat      = 0x05
	KindGetChatMessages = 0x06
	KindInviteUser      = 0x07
)

// Rendezvous-only kind. An Announce envelope is the single fire-and-forget
// message a client pushes at the well-known address before the server dials
// back; it never appears on a per-client channel.
const (
	KindAnnounce = 0x10
)

// Error kind constants (Server → Client)
const (
	KindClientError = 0x90
	KindServerError = 0x91
)

// AuthStatus values carried in the frame's AuthStatus byte. Only meaningful
// on handshake (SignIn/SignUp) responses; AuthNone everywhere else.
const (
	AuthNone            = 0x00
	AuthSuccess         = 0x01
	AuthExists          = 0x02
	AuthNotExists       = 0x03
	AuthInvalidPassword = 0x04
)

var (
	ErrEmptyUsername = errors.New("username cannot be empty")
	ErrEmptyChatName = errors.New("chat name cannot be empty")
	ErrEmptyBody     = errors.New("message body cannot be empty")
)

// KindName returns a human-readable name for an envelope kind, for logs and
// metrics labels.
func KindName(kind uint8) string {
	switch kind {
	case KindSignIn:
		return "SIGN_IN"
	case KindSignUp:
		return "SIGN_UP"
	case KindCreateMessage:
		return "CREATE_MESSAGE"
	case KindUpdateChats:
		return "UPDATE_CHATS"
	case KindCreateChat:
		return "CREATE_CHAT"
	case KindGetChatMessages:
		return "GET_CHAT_MESSAGES"
	case KindInviteUser:
		return "INVITE_USER"
	case KindAnnounce:
		return "ANNOUNCE"
	case KindClientError:
		return "CLIENT_ERROR"
	case KindServerError:
		return "SERVER_ERROR"
	default:
		return "UNKNOWN"
	}
}

// SignInMessage (0x01) - Authenticate an existing account
type SignInMessage struct {
	Username string
	Password string
}

func (m *SignInMessage) EncodeTo(w io.Writer) error {
	if m.Username == "" {
		return ErrEmptyUsername
	}
	if err := WriteString(w, m.Username); err != nil {
		return err
	}
	return WriteString(w, m.Password)
}

func (m *SignInMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *SignInMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	username, err := ReadString(buf)
	if err != nil {
		return err
	}
	password, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.Username = username
	m.Password = password
	return nil
}

// SignUpMessage (0x02) - Create a new account
type SignUpMessage struct {
	Username string
	Password string
}

func (m *SignUpMessage) EncodeTo(w io.Writer) error {
	if m.Username == "" {
		return ErrEmptyUsername
	}
	if err := WriteString(w, m.Username); err != nil {
		return err
	}
	return WriteString(w, m.Password)
}

func (m *SignUpMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *SignUpMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	username, err := ReadString(buf)
	if err != nil {
		return err
	}
	password, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.Username = username
	m.Password = password
	return nil
}

// CreateMessageMessage (0x03) - Append a message to a chat
type CreateMessageMessage struct {
	ChatName string
	Body     string
}

func (m *CreateMessageMessage) EncodeTo(w io.Writer) error {
	if m.ChatName == "" {
		return ErrEmptyChatName
	}
	if m.Body == "" {
		return ErrEmptyBody
	}
	if err := WriteString(w, m.ChatName); err != nil {
		return err
	}
	return WriteString(w, m.Body)
}

func (m *CreateMessageMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *CreateMessageMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	chatName, err := ReadString(buf)
	if err != nil {
		return err
	}
	body, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.ChatName = chatName
	m.Body = body
	return nil
}

// UpdateChatsMessage (0x04) - Request chats with activity since the last sync
type UpdateChatsMessage struct {
	Username string
	Since    time.Time
}

func (m *UpdateChatsMessage) EncodeTo(w io.Writer) error {
	if m.Username == "" {
		return ErrEmptyUsername
	}
	if err := WriteString(w, m.Username); err != nil {
		return err
	}
	return WriteTimestamp(w, m.Since)
}

func (m *UpdateChatsMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *UpdateChatsMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	username, err := ReadString(buf)
	if err != nil {
		return err
	}
	since, err := ReadTimestamp(buf)
	if err != nil {
		return err
	}

	m.Username = username
	m.Since = since
	return nil
}

// ChatListMessage (0x04 response) - Chat names plus the server time to use as
// the next sync cursor
type ChatListMessage struct {
	Chats      []string
	ServerTime time.Time
}

func (m *ChatListMessage) EncodeTo(w io.Writer) error {
	if err := WriteStringList(w, m.Chats); err != nil {
		return err
	}
	return WriteTimestamp(w, m.ServerTime)
}

func (m *ChatListMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ChatListMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	chats, err := ReadStringList(buf)
	if err != nil {
		return err
	}
	serverTime, err := ReadTimestamp(buf)
	if err != nil {
		return err
	}

	m.Chats = chats
	m.ServerTime = serverTime
	return nil
}

// CreateChatMessage (0x05) - Create a chat with an initial membership set.
// Members holds the usernames to enroll alongside the requesting user.
type CreateChatMessage struct {
	ChatName string
	Members  []string
}

func (m *CreateChatMessage) EncodeTo(w io.Writer) error {
	if m.ChatName == "" {
		return ErrEmptyChatName
	}
	if err := WriteString(w, m.ChatName); err != nil {
		return err
	}
	return WriteStringList(w, m.Members)
}

func (m *CreateChatMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *CreateChatMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	chatName, err := ReadString(buf)
	if err != nil {
		return err
	}
	members, err := ReadStringList(buf)
	if err != nil {
		return err
	}

	m.ChatName = chatName
	m.Members = members
	return nil
}

// GetChatMessagesMessage (0x06) - Fetch the visible history of a chat
type GetChatMessagesMessage struct {
	ChatName string
}

func (m *GetChatMessagesMessage) EncodeTo(w io.Writer) error {
	if m.ChatName == "" {
		return ErrEmptyChatName
	}
	return WriteString(w, m.ChatName)
}

func (m *GetChatMessagesMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *GetChatMessagesMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	chatName, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.ChatName = chatName
	return nil
}

// MessageListMessage (0x06 response) - Message bodies visible to the requester,
// oldest first
type MessageListMessage struct {
	Messages []string
}

func (m *MessageListMessage) EncodeTo(w io.Writer) error {
	return WriteStringList(w, m.Messages)
}

func (m *MessageListMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *MessageListMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	messages, err := ReadStringList(buf)
	if err != nil {
		return err
	}

	m.Messages = messages
	return nil
}

// InviteUserMessage (0x07) - Add a member to a chat. ShareHistory grants the
// invitee visibility into messages predating the invitation.
type InviteUserMessage struct {
	ChatName     string
	Invitee      string
	ShareHistory bool
}

func (m *InviteUserMessage) EncodeTo(w io.Writer) error {
	if m.ChatName == "" {
		return ErrEmptyChatName
	}
	if m.Invitee == "" {
		return ErrEmptyUsername
	}
	if err := WriteString(w, m.ChatName); err != nil {
		return err
	}
	if err := WriteString(w, m.Invitee); err != nil {
		return err
	}
	return WriteBool(w, m.ShareHistory)
}

func (m *InviteUserMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *InviteUserMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	chatName, err := ReadString(buf)
	if err != nil {
		return err
	}
	invitee, err := ReadString(buf)
	if err != nil {
		return err
	}
	shareHistory, err := ReadBool(buf)
	if err != nil {
		return err
	}

	m.ChatName = chatName
	m.Invitee = invitee
	m.ShareHistory = shareHistory
	return nil
}

// AnnounceMessage (0x10) - Client's self-chosen reply address, pushed at the
// rendezvous listener
type AnnounceMessage struct {
	ReplyAddr string
}

func (m *AnnounceMessage) EncodeTo(w io.Writer) error {
	return WriteString(w, m.ReplyAddr)
}

func (m *AnnounceMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *AnnounceMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	replyAddr, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.ReplyAddr = replyAddr
	return nil
}

// ErrorMessage (0x90/0x91) - Human-readable rejection reason
type ErrorMessage struct {
	Message string
}

func (m *ErrorMessage) EncodeTo(w io.Writer) error {
	return WriteString(w, m.Message)
}

func (m *ErrorMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ErrorMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	message, err := ReadString(buf)
	if err != nil {
		return err
	}

	m.Message = message
	return nil
}
