// internal/server/http.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/popsauce/internal/game"
	"github.com/jason-s-yu/popsauce/internal/middleware"
	"github.com/jason-s-yu/popsauce/internal/protocol"
)

// Subprotocol is the WebSocket subprotocol clients must request on /ws.
const Subprotocol = "popsauce"

// StatusBadSubprotocol closes a WebSocket that did not negotiate Subprotocol.
const StatusBadSubprotocol websocket.StatusCode = 3000

// HTTPHandler serves the WebSocket gateway and the read-only endpoints.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /lobbies", s.handleLobbies)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return middleware.LogMiddleware(s.Logger)(mux)
}

// ListenAndServeHTTP runs the HTTP gateway on addr until ctx is done.
func (s *Server) ListenAndServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	s.Logger.Infof("HTTP gateway listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWS upgrades to WebSocket and runs the regular connection handler
// over the binary message stream. Frames are the same as over TCP.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	if c.Subprotocol() != Subprotocol {
		c.Close(StatusBadSubprotocol, "client must speak the popsauce subprotocol")
		return
	}
	// one message never needs to hold more than a full frame
	c.SetReadLimit(protocol.MaxPayloadLength + 5)

	ctx := r.Context()
	conn := websocket.NetConn(ctx, c, websocket.MessageBinary)
	s.ServeConn(ctx, conn, "ws")
}

type lobbiesResponse struct {
	Lobbies []game.LobbySummary `json:"lobbies"`
}

func (s *Server) handleLobbies(w http.ResponseWriter, r *http.Request) {
	lobbies := s.Registry.Lobbies()
	if lobbies == nil {
		lobbies = []game.LobbySummary{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(lobbiesResponse{Lobbies: lobbies}); err != nil {
		s.Logger.WithError(err).Warn("failed to write lobby list")
	}
}
