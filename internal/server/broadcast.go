// internal/server/broadcast.go
package server

import (
	"github.com/jason-s-yu/popsauce/internal/game"
	"github.com/jason-s-yu/popsauce/internal/protocol"
	"github.com/sirupsen/logrus"
)

func (s *Server) startDispatcher(ref game.LobbyRef) {
	go s.dispatch(ref)
}

// dispatch drains the outbox of one lobby instance and fans every message
// out to the members in slot order. It exits when the lobby is deleted.
func (s *Server) dispatch(ref game.LobbyRef) {
	outbox, ctx, ok := s.Registry.Outbox(ref)
	if !ok {
		return
	}
	log := s.Logger.WithFields(logrus.Fields{"lobby": ref.ID, "instance": ref.UID})
	log.Debug("dispatcher started")
	defer log.Debug("dispatcher exited")

	for {
		item, ok := outbox.Poll(ctx, s.PollInterval)
		if !ok {
			return
		}
		frame, err := protocol.Encode(item.Message)
		if err != nil {
			log.WithError(err).WithField("type", item.Message.Type).Error("failed to encode broadcast")
			continue
		}
		for i, member := range s.Registry.Members(ref) {
			if err := member.WriteFrame(frame); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"type":   item.Message.Type,
					"member": i,
				}).Warn("broadcast write failed")
			}
		}
	}
}
