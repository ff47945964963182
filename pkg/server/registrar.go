package server

import (
	"log"
	"net"
	"strconv"
	"time"

	"github.com/aeolun/huddle/pkg/protocol"
)

// acceptLoop receives rendezvous announcements. Each announcement arrives on
// its own short-lived connection; the durable channel is the one the server
// dials back.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Rendezvous accept error: %v", err)
				return
			}
		}

		s.wg.Add(1)
		go s.handleAnnouncement(conn)
	}
}

// handleAnnouncement reads one Announce envelope, validates the reply
// address and dials the client back. A malformed or undialable announcement
// is dropped without a response; the client times out on its side.
func (s *Server) handleAnnouncement(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.config.DialTimeout()))
	frame, err := protocol.DecodeFrame(conn)
	if err != nil {
		log.Printf("Rendezvous: failed to read announcement from %s: %v", conn.RemoteAddr(), err)
		return
	}

	if frame.Kind != protocol.KindAnnounce {
		log.Printf("Rendezvous: got %s from %s, expected ANNOUNCE", protocol.KindName(frame.Kind), conn.RemoteAddr())
		return
	}

	msg := &protocol.AnnounceMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		log.Printf("Rendezvous: malformed announcement from %s: %v", conn.RemoteAddr(), err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordAnnouncement()
	}

	if !validReplyAddr(msg.ReplyAddr) {
		log.Printf("Rendezvous: invalid reply address %q from %s", msg.ReplyAddr, conn.RemoteAddr())
		return
	}

	debugLog.Printf("Rendezvous: announcement for %s from %s", msg.ReplyAddr, conn.RemoteAddr())

	client, err := net.DialTimeout("tcp", msg.ReplyAddr, s.config.DialTimeout())
	if err != nil {
		log.Printf("Rendezvous: dial-back to %s failed: %v", msg.ReplyAddr, err)
		if s.metrics != nil {
			s.metrics.RecordDialFailure()
		}
		return
	}

	if tcp, ok := client.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	s.wg.Add(1)
	go s.runSession(client)
}

// validReplyAddr checks the announced address is a dialable host:port before
// the server commits a connection to it
func validReplyAddr(addr string) bool {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return port > 0 && port <= 65535
}
