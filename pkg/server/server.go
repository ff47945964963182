package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aeolun/huddle/pkg/database"
	"github.com/aeolun/huddle/pkg/protocol"
)

// Debug log goes to /dev/null by default (can be enabled via EnableDebugLogging)
var debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)

// Server owns the storage engine, the user directory, the rendezvous
// listener and every live session.
type Server struct {
	db        *database.DB
	directory *Directory
	sessions  *SessionManager
	config    ServerConfig
	listener  net.Listener
	httpSrv   *http.Server
	metrics   *Metrics
	shutdown  chan struct{}
	wg        sync.WaitGroup
	startTime time.Time
}

// NewServer creates a new server instance and seeds the user directory from
// the store
func NewServer(dbPath string, config ServerConfig) (*Server, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	users, err := db.GetAllUsers()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	directory := NewDirectory()
	directory.Seed(users)

	return &Server{
		db:        db,
		directory: directory,
		sessions:  NewSessionManager(),
		config:    config,
		shutdown:  make(chan struct{}),
		startTime: time.Now(),
	}, nil
}

// SetMetrics attaches metrics to the server and its session manager
func (s *Server) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
	s.sessions.SetMetrics(metrics)
}

// EnableDebugLogging routes the debug logger to stderr
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.LstdFlags|log.Lmicroseconds)
}

// Directory returns the shared user directory
func (s *Server) Directory() *Directory {
	return s.directory
}

// Start binds the rendezvous listener and begins accepting announcements
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.RendezvousPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	log.Printf("Rendezvous listener on %s", listener.Addr())

	s.wg.Add(1)
	go s.acceptLoop()

	if s.config.HTTPPort > 0 {
		if err := s.startHTTP(); err != nil {
			s.listener.Close()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// RendezvousAddr returns the bound rendezvous address
func (s *Server) RendezvousAddr() net.Addr {
	return s.listener.Addr()
}

// Stop stops accepting announcements, waits for every live session to reach
// Closed, then closes the database
func (s *Server) Stop() error {
	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}

	s.stopHTTP()

	// Drain: existing sessions run to completion
	s.wg.Wait()

	s.sessions.CloseAll()

	return s.db.Close()
}

// runSession drives one client from Handshaking to Closed
func (s *Server) runSession(conn net.Conn) {
	defer s.wg.Done()

	sess := s.sessions.CreateSession(conn)
	defer s.sessions.RemoveSession(sess.ID)

	log.Printf("Session %d: bound to %s", sess.ID, conn.RemoteAddr())

	if !s.handshake(sess) {
		return
	}

	s.serveLoop(sess)
}

// handshake blocks for exactly one SignIn or SignUp envelope and sends
// exactly one response. Returns true only on AuthSuccess.
func (s *Server) handshake(sess *Session) bool {
	sess.Conn.SetReadDeadline(time.Now().Add(s.config.SessionTimeout()))
	frame, err := sess.Conn.ReadFrame()
	if err != nil {
		log.Printf("Session %d: handshake read error: %v", sess.ID, err)
		return false
	}

	switch frame.Kind {
	case protocol.KindSignIn:
		return s.handleSignIn(sess, frame)
	case protocol.KindSignUp:
		return s.handleSignUp(sess, frame)
	default:
		// Aborted without a response: only SignIn/SignUp may open a session
		log.Printf("Session %d: handshake got %s, aborting", sess.ID, protocol.KindName(frame.Kind))
		s.recordHandshake("aborted")
		return false
	}
}

func (s *Server) handleSignIn(sess *Session, frame *protocol.Frame) bool {
	msg := &protocol.SignInMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		log.Printf("Session %d: SIGN_IN decode failed: %v", sess.ID, err)
		return false
	}

	if !s.directory.Contains(msg.Username) {
		log.Printf("Session %d: SIGN_IN for unknown user %s", sess.ID, msg.Username)
		s.recordHandshake("not_exists")
		s.sendAuthResponse(sess, frame.Kind, protocol.AuthNotExists)
		return false
	}

	status, err := s.db.Authenticate(msg.Username, msg.Password)
	if err != nil {
		log.Printf("Session %d: authenticate failed: %v", sess.ID, err)
		s.sendServerError(sess, "storage failure")
		return false
	}

	switch status {
	case database.AuthSuccess:
		userID, ok := s.directory.Lookup(msg.Username)
		if !ok {
			// Directory raced with nothing that can remove entries
			log.Printf("Session %d: user %s vanished from directory", sess.ID, msg.Username)
			return false
		}
		sess.SetUser(userID, msg.Username)
		s.recordHandshake("success")
		log.Printf("Session %d: %s signed in (user %d)", sess.ID, msg.Username, userID)
		return s.sendAuthResponse(sess, frame.Kind, protocol.AuthSuccess) == nil
	case database.AuthInvalidPassword:
		log.Printf("Session %d: invalid password for %s", sess.ID, msg.Username)
		s.recordHandshake("invalid_password")
		s.sendAuthResponse(sess, frame.Kind, protocol.AuthInvalidPassword)
		return false
	default:
		// Directory knew the name but the store has no credential row
		s.recordHandshake("not_exists")
		s.sendAuthResponse(sess, frame.Kind, protocol.AuthNotExists)
		return false
	}
}

func (s *Server) handleSignUp(sess *Session, frame *protocol.Frame) bool {
	msg := &protocol.SignUpMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		log.Printf("Session %d: SIGN_UP decode failed: %v", sess.ID, err)
		return false
	}

	if s.directory.Contains(msg.Username) {
		log.Printf("Session %d: SIGN_UP for existing user %s", sess.ID, msg.Username)
		s.recordHandshake("exists")
		s.sendAuthResponse(sess, frame.Kind, protocol.AuthExists)
		return false
	}

	userID, err := s.db.CreateUser(msg.Username, msg.Password)
	if errors.Is(err, database.ErrUsernameTaken) {
		// Lost a concurrent sign-up race; the unique constraint is the backstop
		s.recordHandshake("exists")
		s.sendAuthResponse(sess, frame.Kind, protocol.AuthExists)
		return false
	}
	if err != nil {
		log.Printf("Session %d: create user failed: %v", sess.ID, err)
		s.sendServerError(sess, "storage failure")
		return false
	}

	if !s.directory.Add(msg.Username, userID) {
		// A concurrent sign-up slipped in between the store insert and the
		// directory insert; the store insert above would have failed first
		s.recordHandshake("exists")
		s.sendAuthResponse(sess, frame.Kind, protocol.AuthExists)
		return false
	}

	sess.SetUser(userID, msg.Username)
	s.recordHandshake("success")
	log.Printf("Session %d: %s signed up (user %d)", sess.ID, msg.Username, userID)
	return s.sendAuthResponse(sess, frame.Kind, protocol.AuthSuccess) == nil
}

// serveLoop exchanges request/response envelopes until the channel fails
func (s *Server) serveLoop(sess *Session) {
	sess.setState(StateServing)

	for {
		sess.Conn.SetReadDeadline(time.Now().Add(s.config.SessionTimeout()))
		frame, err := sess.Conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("Session %d: disconnected", sess.ID)
			} else {
				log.Printf("Session %d: read error: %v", sess.ID, err)
			}
			return
		}

		debugLog.Printf("Session %d ← RECV: Kind=0x%02X PayloadLen=%d", sess.ID, frame.Kind, len(frame.Payload))
		if s.metrics != nil {
			s.metrics.RecordRequest(protocol.KindName(frame.Kind))
		}

		if err := s.handleRequest(sess, frame); err != nil {
			log.Printf("Session %d: fatal error: %v", sess.ID, err)
			return
		}
	}
}

// sendAuthResponse sends the single handshake response envelope. The result
// travels in the AuthStatus byte; the payload is empty.
func (s *Server) sendAuthResponse(sess *Session, kind uint8, authStatus uint8) error {
	return s.send(sess, &protocol.Frame{
		Version:    protocol.ProtocolVersion,
		Kind:       kind,
		AuthStatus: authStatus,
	})
}

func (s *Server) recordHandshake(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordHandshake(outcome)
	}
}
