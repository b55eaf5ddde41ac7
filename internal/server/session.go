// internal/server/session.go
package server

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/popsauce/internal/protocol"
)

// Session is one client connection. Replies from the handler and
// broadcasts from lobby dispatchers share it, so writes are serialized.
type Session struct {
	ID        uuid.UUID
	Transport string

	conn         net.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func newSession(conn net.Conn, transport string, writeTimeout time.Duration) *Session {
	return &Session{
		ID:           uuid.New(),
		Transport:    transport,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// WriteFrame writes one encoded frame. A peer that stops reading fails the
// write after the write timeout instead of stalling its lobby.
func (s *Session) WriteFrame(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := s.conn.Write(frame)
	return err
}

// Send encodes and writes m.
func (s *Session) Send(m *protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return s.WriteFrame(frame)
}

func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func (s *Session) Close() error {
	return s.conn.Close()
}
