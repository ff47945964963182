package server

import (
	"net"
	"sync"

	"github.com/aeolun/huddle/pkg/protocol"
)

// SessionState tracks where a session is in its lifecycle
type SessionState int

const (
	StateHandshaking SessionState = iota
	StateAuthenticated
	StateServing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateAuthenticated:
		return "authenticated"
	case StateServing:
		return "serving"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session represents one connected client. The session goroutine owns the
// duplex channel exclusively; no other goroutine sends or receives on it.
type Session struct {
	ID   uint64
	Conn *SafeConn

	mu       sync.RWMutex // Protects state, userID and username
	state    SessionState
	userID   int64
	username string
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// SetUser records the authenticated identity and moves to Authenticated
func (s *Session) SetUser(userID int64, username string) {
	s.mu.Lock()
	s.userID = userID
	s.username = username
	s.state = StateAuthenticated
	s.mu.Unlock()
}

// User returns the authenticated identity
func (s *Session) User() (int64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.username
}

// SessionManager tracks all live sessions so the server can drain them on
// shutdown and report counts.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   uint64
	metrics  *Metrics
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[uint64]*Session),
		nextID:   1,
	}
}

// SetMetrics attaches metrics to the session manager
func (sm *SessionManager) SetMetrics(metrics *Metrics) {
	sm.metrics = metrics
}

// CreateSession registers a new session for a freshly bound connection
func (sm *SessionManager) CreateSession(conn net.Conn) *Session {
	sm.mu.Lock()

	sessionID := sm.nextID
	sm.nextID++

	sess := &Session{
		ID:    sessionID,
		Conn:  NewSafeConn(conn),
		state: StateHandshaking,
	}
	sm.sessions[sessionID] = sess
	count := len(sm.sessions)
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(count)
		sm.metrics.RecordSessionCreated()
	}

	return sess
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(sessionID uint64) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sess, ok := sm.sessions[sessionID]
	return sess, ok
}

// RemoveSession transitions a session to Closed, tears down its channel and
// forgets it
func (sm *SessionManager) RemoveSession(sessionID uint64) {
	sm.mu.Lock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, sessionID)
	count := len(sm.sessions)
	sm.mu.Unlock()

	sess.setState(StateClosed)
	sess.Conn.Close()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(count)
		sm.metrics.RecordSessionDisconnected()
	}
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sessions)
}

// CloseAll closes every session's channel. Session goroutines observe the
// closed connection and finish on their own.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, sess := range sm.sessions {
		sess.setState(StateClosed)
		sess.Conn.Close()
	}

	sm.sessions = make(map[uint64]*Session)
}

// echoFrame builds the no-op response for an unrecognized kind: the request
// envelope sent back unchanged.
func echoFrame(frame *protocol.Frame) *protocol.Frame {
	return &protocol.Frame{
		Version:    frame.Version,
		Kind:       frame.Kind,
		AuthStatus: frame.AuthStatus,
		Payload:    frame.Payload,
	}
}
