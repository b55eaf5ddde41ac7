// internal/game/lobby.go
package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/popsauce/internal/protocol"
	"github.com/jason-s-yu/popsauce/internal/queue"
)

// LobbyState is the phase of the lobby's game.
type LobbyState int

const (
	LobbyWaitingRoom LobbyState = iota
	LobbyStarting
	LobbyQuestion
	LobbyAnswer
)

func (s LobbyState) String() string {
	switch s {
	case LobbyWaitingRoom:
		return "waiting_room"
	case LobbyStarting:
		return "starting"
	case LobbyQuestion:
		return "question"
	case LobbyAnswer:
		return "answer"
	}
	return "unknown"
}

// LobbyRef names one lobby instance. Slots are reused, so goroutines that
// outlive a request hold a ref and re-resolve it under the slot lock.
type LobbyRef struct {
	ID  int
	UID uuid.UUID
}

// Lobby is a room of up to MaxPlayers players. Players[i] holds the player
// whose public id is i. Every field is guarded by the lobby slot lock,
// except the queues which carry their own.
type Lobby struct {
	ID         int
	UID        uuid.UUID
	Name       string
	OwnerID    uint32
	MaxPlayers int
	State      LobbyState
	Rules      Rules

	PlayersInLobby int
	Players        []*Player
	Points         []int

	// GameID identifies the current or last game started in this lobby.
	GameID uuid.UUID

	Inbox  *queue.MessageQueue
	Outbox *queue.MessageQueue

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func newLobby(parent context.Context, id int, name string, maxPlayers int, rules Rules) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	return &Lobby{
		ID:         id,
		UID:        uuid.New(),
		Name:       name,
		MaxPlayers: maxPlayers,
		State:      LobbyWaitingRoom,
		Rules:      rules,
		Players:    make([]*Player, maxPlayers),
		Points:     make([]int, maxPlayers),
		Inbox:      queue.New(queue.DefaultCapacity),
		Outbox:     queue.New(queue.DefaultCapacity),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Ref returns the reference goroutines keep instead of the pointer.
func (l *Lobby) Ref() LobbyRef {
	return LobbyRef{ID: l.ID, UID: l.UID}
}

func (l *Lobby) freeSlot() int {
	for i, p := range l.Players {
		if p == nil {
			return i
		}
	}
	return -1
}

// leader returns the public id with the highest score; the lowest id wins
// ties. It returns -1 for an empty lobby.
func (l *Lobby) leader() (publicID, points int) {
	publicID = -1
	for i, p := range l.Players {
		if p == nil {
			continue
		}
		if publicID == -1 || l.Points[i] > points {
			publicID, points = i, l.Points[i]
		}
	}
	return publicID, points
}

func (l *Lobby) setMemberStates(s PlayerState) {
	for _, p := range l.Players {
		if p != nil {
			p.State = s
		}
	}
}

func (l *Lobby) allAnswered() bool {
	for _, p := range l.Players {
		if p != nil && p.State != StateInGameAnswered {
			return false
		}
	}
	return true
}

func (l *Lobby) roster() *protocol.PlayersData {
	data := &protocol.PlayersData{Players: make([]protocol.PlayerEntry, 0, l.PlayersInLobby)}
	for i, p := range l.Players {
		if p != nil {
			data.Players = append(data.Players, protocol.PlayerEntry{
				ID:       int32(i),
				Username: p.Username,
				Points:   int32(l.Points[i]),
			})
		}
	}
	return data
}
