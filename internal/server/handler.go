// internal/server/handler.go
package server

import (
	"errors"
	"io"

	"github.com/jason-s-yu/popsauce/internal/protocol"
	"github.com/sirupsen/logrus"
)

// handler owns one client connection: it decodes frames, maps them to
// registry operations and writes the direct replies.
type handler struct {
	srv  *Server
	sess *Session
	log  *logrus.Entry

	// playerID is the private id registered by CONNECT.
	playerID  uint32
	connected bool
}

// serve reads frames until the connection fails. A frame that decodes badly
// is discarded; anything that desyncs the stream ends the connection.
func (h *handler) serve() error {
	for {
		frame, err := protocol.ReadFrame(h.sess.conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if protocol.IsFraming(err) {
				h.log.WithError(err).Warn("framing error, dropping connection")
			}
			return err
		}

		m, err := protocol.Decode(frame)
		if err != nil {
			h.log.WithError(err).Warn("discarding malformed message")
			continue
		}
		h.dispatch(m)
	}
}

func (h *handler) dispatch(m *protocol.Message) {
	log := h.log.WithField("type", m.Type)
	log.Debug("message received")

	if !m.Type.ClientOriginated() {
		log.Warn("ignoring server-only message from client")
		return
	}

	switch m.Type {
	case protocol.TypeConnect:
		h.handleConnect(m)
		return
	case protocol.TypeDisconnect:
		if h.connected {
			h.disconnect()
		}
		return
	}

	if !h.connected {
		if m.Type.NeedsResponse() {
			h.reply(protocol.ErrorMessage(protocol.CodePlayerDoesntExist))
		}
		return
	}

	switch p := m.Payload.(type) {
	case *protocol.CreateLobby:
		h.handleCreateLobby(p)
	case *protocol.JoinLobby:
		h.handleJoinLobby(p)
	case *protocol.ChangeRules:
		h.handleChangeRules(p)
	case *protocol.SendResponse:
		h.handleSendResponse(m)
	default:
		switch m.Type {
		case protocol.TypeQuitLobby:
			h.handleQuitLobby()
		case protocol.TypeStartGame:
			h.handleStartGame()
		}
	}
}

func (h *handler) handleConnect(m *protocol.Message) {
	p := m.Payload.(*protocol.Connect)
	if h.connected {
		h.reply(protocol.ErrorMessage(protocol.CodePlayerExists))
		return
	}

	code := h.srv.Registry.CreatePlayer(h.sess, m.SenderID, p.Username)
	if code != protocol.CodeSuccess {
		h.log.WithFields(logrus.Fields{"player": m.SenderID, "code": code}).Info("connect refused")
		h.reply(protocol.ErrorMessage(code))
		return
	}
	h.playerID = m.SenderID
	h.connected = true
	h.log = h.log.WithField("player", h.playerID)
	h.reply(protocol.ServerMessage(h.srv.Registry.LobbyList()))
}

func (h *handler) handleCreateLobby(p *protocol.CreateLobby) {
	ref, code := h.srv.Registry.CreateLobby(h.playerID, p.Name, int(p.MaxPlayers))
	if code != protocol.CodeSuccess {
		h.reply(protocol.ErrorMessage(code))
		return
	}
	h.srv.startDispatcher(ref)
	h.reply(protocol.SuccessMessage(int32(ref.ID)))
}

func (h *handler) handleJoinLobby(p *protocol.JoinLobby) {
	lobbyID := int(p.LobbyID)
	notice, code := h.srv.Registry.JoinLobby(h.playerID, lobbyID)
	if code != protocol.CodeSuccess {
		h.reply(protocol.ErrorMessage(code))
		return
	}

	roster, code := h.srv.Registry.PlayersData(lobbyID)
	if code != protocol.CodeSuccess {
		h.reply(protocol.ErrorMessage(protocol.CodeInternalError))
		return
	}
	h.reply(protocol.ServerMessage(roster))
	h.srv.Registry.PostOutbox(lobbyID, notice)
}

func (h *handler) handleQuitLobby() {
	notice, lobbyID, code := h.srv.Registry.QuitLobby(h.playerID)
	if code != protocol.CodeSuccess {
		h.log.WithField("code", code).Debug("quit refused")
		return
	}
	if notice != nil {
		h.srv.Registry.PostOutbox(lobbyID, notice)
	}
}

func (h *handler) handleStartGame() {
	lobbyID, ok := h.srv.Registry.PlayerLobby(h.playerID)
	if !ok {
		h.reply(protocol.ErrorMessage(protocol.CodeNotInLobby))
		return
	}
	if code := h.srv.Registry.StartGame(h.playerID, lobbyID); code != protocol.CodeSuccess {
		h.reply(protocol.ErrorMessage(code))
	}
}

func (h *handler) handleChangeRules(p *protocol.ChangeRules) {
	notice, code := h.srv.Registry.ChangeRules(h.playerID, p.Rules)
	if code != protocol.CodeSuccess {
		h.reply(protocol.ErrorMessage(code))
		return
	}
	h.reply(protocol.SuccessMessage(int32(protocol.CodeSuccess)))
	if lobbyID, ok := h.srv.Registry.PlayerLobby(h.playerID); ok {
		h.srv.Registry.PostOutbox(lobbyID, notice)
	}
}

func (h *handler) handleSendResponse(m *protocol.Message) {
	m.SenderID = h.playerID
	if _, code := h.srv.Registry.SubmitAnswer(h.playerID, m, h.sess); code != protocol.CodeSuccess {
		h.reply(protocol.ErrorMessage(protocol.CodeCannotSubmit))
	}
}

// disconnect removes the player and tells its former lobby.
func (h *handler) disconnect() {
	notice, lobbyID, code := h.srv.Registry.DeletePlayer(h.playerID)
	h.connected = false
	if code != protocol.CodeSuccess {
		h.log.WithField("code", code).Warn("disconnect of unknown player")
		return
	}
	if notice != nil {
		h.srv.Registry.PostOutbox(lobbyID, notice)
	}
}

// cleanup runs once the connection is gone.
func (h *handler) cleanup() {
	if h.connected {
		h.disconnect()
	}
}

// reply writes a direct response. If m cannot be encoded the client gets
// INTERNAL_ERROR instead; failing to encode that is fatal.
func (h *handler) reply(m *protocol.Message) {
	frame, err := protocol.Encode(m)
	if err != nil {
		h.log.WithError(err).Error("failed to encode reply")
		frame, err = protocol.Encode(protocol.ErrorMessage(protocol.CodeInternalError))
		if err != nil {
			h.srv.fatalf("cannot encode INTERNAL_ERROR reply: %v", err)
			return
		}
	}
	if err := h.sess.WriteFrame(frame); err != nil {
		h.log.WithError(err).Debug("failed to write reply")
	}
}
