// internal/protocol/types.go
package protocol

import "fmt"

// Wire limits shared by the server and every client implementation.
const (
	MaxPayloadLength   = 1 << 20 // frame length above this is a fatal framing error
	MaxUsernameLength  = 32
	MaxResponseLength  = 64
	MaxLobbyNameLength = 64
	MaxQuestionLength  = 128
	MaxLobbies         = 16 // LobbyList always carries exactly this many entries

	ServerID   uint32 = 0
	Terminator byte   = 0x04

	headerLength = 12 // type + sender_id + payload_size
)

// MessageType identifies the payload carried by a frame.
// Types with the low bit set expect a synchronous reply from the server.
type MessageType uint32

const (
	TypeConnect               MessageType = 1
	TypeDisconnect            MessageType = 2
	TypeCreateLobby           MessageType = 3
	TypeJoinLobby             MessageType = 5
	TypeQuitLobby             MessageType = 6
	TypeStartGame             MessageType = 7
	TypeChangeRules           MessageType = 9
	TypeSendResponse          MessageType = 11
	TypePlayerJoined          MessageType = 12
	TypePlayerQuit            MessageType = 14
	TypeGameStarts            MessageType = 16
	TypeRulesChanged          MessageType = 18
	TypePlayerResponseChanged MessageType = 20
	TypeQuestionSent          MessageType = 22
	TypeAnswerSent            MessageType = 24
	TypeGameEnded             MessageType = 26
	TypeSuccess               MessageType = 28
	TypeError                 MessageType = 30
	TypeLobbyList             MessageType = 32
	TypePlayersData           MessageType = 34
)

var messageTypeNames = map[MessageType]string{
	TypeConnect:               "CONNECT",
	TypeDisconnect:            "DISCONNECT",
	TypeCreateLobby:           "CREATE_LOBBY",
	TypeJoinLobby:             "JOIN_LOBBY",
	TypeQuitLobby:             "QUIT_LOBBY",
	TypeStartGame:             "START_GAME",
	TypeChangeRules:           "CHANGE_RULES",
	TypeSendResponse:          "SEND_RESPONSE",
	TypePlayerJoined:          "PLAYER_JOINED",
	TypePlayerQuit:            "PLAYER_QUIT",
	TypeGameStarts:            "GAME_STARTS",
	TypeRulesChanged:          "RULES_CHANGED",
	TypePlayerResponseChanged: "PLAYER_RESPONSE_CHANGED",
	TypeQuestionSent:          "QUESTION_SENT",
	TypeAnswerSent:            "ANSWER_SENT",
	TypeGameEnded:             "GAME_ENDED",
	TypeSuccess:               "SUCCESS",
	TypeError:                 "ERROR",
	TypeLobbyList:             "LOBBYLIST",
	TypePlayersData:           "PLAYERS_DATA",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint32(t))
}

// NeedsResponse reports whether the client expects a reply to this type.
func (t MessageType) NeedsResponse() bool {
	return t&1 == 1
}

// ClientOriginated reports whether clients are allowed to send this type.
func (t MessageType) ClientOriginated() bool {
	switch t {
	case TypeConnect, TypeDisconnect, TypeCreateLobby, TypeJoinLobby, TypeQuitLobby, TypeStartGame, TypeChangeRules, TypeSendResponse:
		return true
	}
	return false
}

// ResponseCode is the data field of Success and Error payloads.
type ResponseCode int32

const (
	CodeSuccess ResponseCode = iota
	CodePlayerExists
	CodeInternalError
	CodeServerPrivate // reserved
	CodeBanned        // reserved
	CodeTooManyPlayers
	CodeGameAlreadyStarted
	CodeTooManyLobbies
	CodeCannotCreateLobby
	CodeCannotDeleteLobby
	CodeLobbyPrivate // reserved
	CodeAlreadyInLobby
	CodeLobbyFull
	CodeLobbyDoesntExist
	CodeNotEnoughPlayers
	CodeInsufficientPermission
	CodeWrongResponse
	CodeCannotSubmit
	CodePlayerDoesntExist
	CodeNotInLobby
	CodeInvalidRules
)

var responseCodeNames = [...]string{
	"SUCCESS",
	"PLAYER_EXISTS",
	"INTERNAL_ERROR",
	"SERVER_PRIVATE",
	"BANNED",
	"TOO_MANY_PLAYERS",
	"GAME_ALREADY_STARTED",
	"TOO_MANY_LOBBIES",
	"CANNOT_CREATE_LOBBY",
	"CANNOT_DELETE_LOBBY",
	"LOBBY_PRIVATE",
	"ALREADY_IN_LOBBY",
	"LOBBY_FULL",
	"LOBBY_DOESNT_EXIST",
	"NOT_ENOUGH_PLAYERS",
	"INSUFFICIENT_PERMISSION",
	"WRONG_RESPONSE",
	"CANNOT_SUBMIT",
	"PLAYER_DOESNT_EXIST",
	"NOT_IN_LOBBY",
	"INVALID_RULES",
}

func (c ResponseCode) String() string {
	if c >= 0 && int(c) < len(responseCodeNames) {
		return responseCodeNames[c]
	}
	return fmt.Sprintf("ResponseCode(%d)", int32(c))
}

// SupportType tags the support attached to a question.
type SupportType uint32

const (
	SupportText  SupportType = 0
	SupportImage SupportType = 1
)

func (s SupportType) String() string {
	switch s {
	case SupportText:
		return "txt"
	case SupportImage:
		return "img"
	}
	return fmt.Sprintf("SupportType(%d)", uint32(s))
}
