// internal/game/player.go
package game

// PlayerState tracks where a player is in the lobby/game lifecycle.
type PlayerState int

const (
	StateConnected PlayerState = iota
	StateInWaitingRoom
	StateInGameUnanswered
	StateInGameAnswered
)

func (s PlayerState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInWaitingRoom:
		return "waiting_room"
	case StateInGameUnanswered:
		return "in_game_unanswered"
	case StateInGameAnswered:
		return "in_game_answered"
	}
	return "unknown"
}

// Sender is the write side of a client connection. WriteFrame must be safe
// for concurrent use: direct replies and broadcasts share the socket.
type Sender interface {
	WriteFrame(frame []byte) error
}

// Player is a connected client. ID is the private id chosen by the client
// and never shown to others; PublicID is its slot in the current lobby.
//
// ID, Username and Conn never change. LobbyID and PublicID are written with
// both the player and lobby slot locks held. State is guarded by the lobby
// slot lock while the player is in a lobby.
type Player struct {
	ID       uint32
	Username string
	Conn     Sender

	PublicID int
	LobbyID  int
	State    PlayerState
}

func newPlayer(id uint32, username string, conn Sender) *Player {
	return &Player{
		ID:       id,
		Username: username,
		Conn:     conn,
		PublicID: -1,
		LobbyID:  -1,
		State:    StateConnected,
	}
}

func (p *Player) leaveLobby() {
	p.LobbyID = -1
	p.PublicID = -1
	p.State = StateConnected
}
