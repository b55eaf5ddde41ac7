package models

import "github.com/google/uuid"

// Action types published for every game. The historian finalizes a game
// when it sees ActionEndGame.
const (
	ActionGameStart = "action_game_start"
	ActionQuestion  = "action_question"
	ActionResponse  = "action_response"
	ActionAnswer    = "action_answer"
	ActionEndGame   = "action_end_game"
)

// GameAction captures a single event of a running game, in the order it
// happened. ActorID is the public id of the player involved, -1 for the server.
type GameAction struct {
	GameID        uuid.UUID              `json:"game_id"`
	LobbyID       int                    `json:"lobby_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorID       int32                  `json:"actor_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"` // epoch millis
}
