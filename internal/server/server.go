// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/jason-s-yu/popsauce/internal/game"
	"github.com/jason-s-yu/popsauce/internal/middleware"
	"github.com/jason-s-yu/popsauce/internal/queue"
	"github.com/sirupsen/logrus"
)

// DefaultWriteTimeout bounds a single frame write to a client.
const DefaultWriteTimeout = 5 * time.Second

// Server accepts game clients over TCP (and WebSocket, see HTTPHandler) and
// runs one handler per connection and one dispatcher per lobby.
type Server struct {
	Registry     *game.Registry
	Logger       *logrus.Logger
	WriteTimeout time.Duration
	PollInterval time.Duration

	// fatalf is called when even an error reply cannot be encoded.
	fatalf func(format string, args ...interface{})

	conns sync.WaitGroup
}

// New returns a server bound to reg.
func New(reg *game.Registry, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		Registry:     reg,
		Logger:       logger,
		WriteTimeout: DefaultWriteTimeout,
		PollInterval: queue.DefaultPollInterval,
		fatalf:       logger.Fatalf,
	}
}

// ListenAndServe listens on addr and serves clients until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	s.Logger.Infof("TCP game server listening on %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is done, then waits for the
// open connections to wind down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.conns.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.Logger.WithError(err).Warn("accept timeout, retrying")
				continue
			}
			return err
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.ServeConn(ctx, conn, "tcp")
		}()
	}
}

// ServeConn runs the connection handler on conn until the peer goes away,
// a framing error occurs or ctx is done. conn is closed on return.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn, transport string) {
	sess := newSession(conn, transport, s.WriteTimeout)
	h := &handler{
		srv:  s,
		sess: sess,
		log: s.Logger.WithFields(logrus.Fields{
			"session": sess.ID,
			"remote":  sess.RemoteAddr(),
		}),
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	middleware.LogClientConnect(s.Logger, sess.RemoteAddr(), transport)
	err := h.serve()
	h.cleanup()
	sess.Close()
	middleware.LogClientDisconnect(s.Logger, sess.RemoteAddr(), transport, err)
}
