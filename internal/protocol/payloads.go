// internal/protocol/payloads.go
package protocol

import (
	"bytes"
	"fmt"
)

// Payload is implemented by every message body. EncodeTo appends the wire
// layout to buf, Decode consumes exactly the bytes it needs from r.
type Payload interface {
	Type() MessageType
	EncodeTo(buf *bytes.Buffer) error
	Decode(r *bytes.Reader) error
}

// payloadFactories maps each type tag to a constructor for its zero payload.
var payloadFactories = map[MessageType]func() Payload{
	TypeConnect:               func() Payload { return &Connect{} },
	TypeDisconnect:            func() Payload { return &Empty{Kind: TypeDisconnect} },
	TypeCreateLobby:           func() Payload { return &CreateLobby{} },
	TypeJoinLobby:             func() Payload { return &JoinLobby{} },
	TypeQuitLobby:             func() Payload { return &Empty{Kind: TypeQuitLobby} },
	TypeStartGame:             func() Payload { return &Empty{Kind: TypeStartGame} },
	TypeChangeRules:           func() Payload { return &ChangeRules{} },
	TypeSendResponse:          func() Payload { return &SendResponse{} },
	TypePlayerJoined:          func() Payload { return &PlayerJoined{} },
	TypePlayerQuit:            func() Payload { return &PlayerQuit{} },
	TypeGameStarts:            func() Payload { return &Empty{Kind: TypeGameStarts} },
	TypeRulesChanged:          func() Payload { return &RulesChanged{} },
	TypePlayerResponseChanged: func() Payload { return &PlayerResponseChanged{} },
	TypeQuestionSent:          func() Payload { return &QuestionSent{} },
	TypeAnswerSent:            func() Payload { return &AnswerSent{} },
	TypeGameEnded:             func() Payload { return &GameEnded{} },
	TypeSuccess:               func() Payload { return &Success{} },
	TypeError:                 func() Payload { return &Error{} },
	TypeLobbyList:             func() Payload { return &LobbyList{} },
	TypePlayersData:           func() Payload { return &PlayersData{} },
}

// NewPayload returns an empty payload for the given type.
func NewPayload(t MessageType) (Payload, error) {
	f, ok := payloadFactories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint32(t))
	}
	return f(), nil
}

// Empty is the body of DISCONNECT, QUIT_LOBBY, START_GAME and GAME_STARTS.
type Empty struct {
	Kind MessageType
}

func (p *Empty) Type() MessageType { return p.Kind }
func (p *Empty) EncodeTo(buf *bytes.Buffer) error { return nil }
func (p *Empty) Decode(r *bytes.Reader) error { return nil }

// Connect registers the sender id under a display name.
type Connect struct {
	Username string
}

func (p *Connect) Type() MessageType { return TypeConnect }

func (p *Connect) EncodeTo(buf *bytes.Buffer) error {
	writeString(buf, p.Username, MaxUsernameLength)
	return nil
}

func (p *Connect) Decode(r *bytes.Reader) (err error) {
	p.Username, err = readString(r, MaxUsernameLength)
	return err
}

// CreateLobby asks the server for a new lobby owned by the sender.
type CreateLobby struct {
	MaxPlayers int32
	Name       string
}

func (p *CreateLobby) Type() MessageType { return TypeCreateLobby }

func (p *CreateLobby) EncodeTo(buf *bytes.Buffer) error {
	writeInt32(buf, p.MaxPlayers)
	writeString(buf, p.Name, MaxLobbyNameLength)
	return nil
}

func (p *CreateLobby) Decode(r *bytes.Reader) (err error) {
	if p.MaxPlayers, err = readInt32(r); err != nil {
		return err
	}
	p.Name, err = readString(r, MaxLobbyNameLength)
	return err
}

type JoinLobby struct {
	LobbyID int32
}

func (p *JoinLobby) Type() MessageType { return TypeJoinLobby }

func (p *JoinLobby) EncodeTo(buf *bytes.Buffer) error {
	writeInt32(buf, p.LobbyID)
	return nil
}

func (p *JoinLobby) Decode(r *bytes.Reader) (err error) {
	p.LobbyID, err = readInt32(r)
	return err
}

// Rules is the body shared by CHANGE_RULES and RULES_CHANGED. Durations
// are whole seconds; a zero field in a request keeps the current value.
type Rules struct {
	PointsToWin          uint32
	TimeToAnswer         uint32
	TimeBetweenQuestions uint32
	TimeBeforeStart      uint32
}

func (p *Rules) encodeTo(buf *bytes.Buffer) {
	writeUint32(buf, p.PointsToWin)
	writeUint32(buf, p.TimeToAnswer)
	writeUint32(buf, p.TimeBetweenQuestions)
	writeUint32(buf, p.TimeBeforeStart)
}

func (p *Rules) decode(r *bytes.Reader) (err error) {
	for _, field := range []*uint32{&p.PointsToWin, &p.TimeToAnswer, &p.TimeBetweenQuestions, &p.TimeBeforeStart} {
		if *field, err = readUint32(r); err != nil {
			return err
		}
	}
	return nil
}

type ChangeRules struct {
	Rules
}

func (p *ChangeRules) Type() MessageType { return TypeChangeRules }
func (p *ChangeRules) EncodeTo(buf *bytes.Buffer) error { p.encodeTo(buf); return nil }
func (p *ChangeRules) Decode(r *bytes.Reader) error { return p.decode(r) }

type RulesChanged struct {
	Rules
}

func (p *RulesChanged) Type() MessageType { return TypeRulesChanged }
func (p *RulesChanged) EncodeTo(buf *bytes.Buffer) error { p.encodeTo(buf); return nil }
func (p *RulesChanged) Decode(r *bytes.Reader) error { return p.decode(r) }

// SendResponse carries a player's answer attempt.
type SendResponse struct {
	Response string
}

func (p *SendResponse) Type() MessageType { return TypeSendResponse }

func (p *SendResponse) EncodeTo(buf *bytes.Buffer) error {
	writeString(buf, p.Response, MaxResponseLength)
	return nil
}

func (p *SendResponse) Decode(r *bytes.Reader) (err error) {
	p.Response, err = readString(r, MaxResponseLength)
	return err
}

// PlayerJoined announces a new lobby member under its public id.
type PlayerJoined struct {
	PlayerID int32
	Username string
}

func (p *PlayerJoined) Type() MessageType { return TypePlayerJoined }

func (p *PlayerJoined) EncodeTo(buf *bytes.Buffer) error {
	writeInt32(buf, p.PlayerID)
	writeString(buf, p.Username, MaxUsernameLength)
	return nil
}

func (p *PlayerJoined) Decode(r *bytes.Reader) (err error) {
	if p.PlayerID, err = readInt32(r); err != nil {
		return err
	}
	p.Username, err = readString(r, MaxUsernameLength)
	return err
}

type PlayerQuit struct {
	PlayerID int32
}

func (p *PlayerQuit) Type() MessageType { return TypePlayerQuit }

func (p *PlayerQuit) EncodeTo(buf *bytes.Buffer) error {
	writeInt32(buf, p.PlayerID)
	return nil
}

func (p *PlayerQuit) Decode(r *bytes.Reader) (err error) {
	p.PlayerID, err = readInt32(r)
	return err
}

// PlayerResponseChanged reports the evaluation of one submitted answer.
type PlayerResponseChanged struct {
	PlayerID     int32
	PointsEarned int32
	IsCorrect    bool
	Response     string
}

func (p *PlayerResponseChanged) Type() MessageType { return TypePlayerResponseChanged }

func (p *PlayerResponseChanged) EncodeTo(buf *bytes.Buffer) error {
	writeInt32(buf, p.PlayerID)
	writeInt32(buf, p.PointsEarned)
	var correct uint32
	if p.IsCorrect {
		correct = 1
	}
	writeUint32(buf, correct)
	writeString(buf, p.Response, MaxResponseLength)
	return nil
}

func (p *PlayerResponseChanged) Decode(r *bytes.Reader) (err error) {
	if p.PlayerID, err = readInt32(r); err != nil {
		return err
	}
	if p.PointsEarned, err = readInt32(r); err != nil {
		return err
	}
	correct, err := readUint32(r)
	if err != nil {
		return err
	}
	p.IsCorrect = correct != 0
	p.Response, err = readString(r, MaxResponseLength)
	return err
}

// QuestionSent carries the question text and its support. The support
// runs to the end of the payload and is followed by a single NUL byte.
type QuestionSent struct {
	SupportType SupportType
	Question    string
	Support     []byte
}

func (p *QuestionSent) Type() MessageType { return TypeQuestionSent }

func (p *QuestionSent) EncodeTo(buf *bytes.Buffer) error {
	if len(p.Support) > MaxPayloadLength-headerLength-4-MaxQuestionLength-1 {
		return fmt.Errorf("%w: support is %d bytes", ErrFrameTooLarge, len(p.Support))
	}
	writeUint32(buf, uint32(p.SupportType))
	writeString(buf, p.Question, MaxQuestionLength)
	buf.Write(p.Support)
	buf.WriteByte(0)
	return nil
}

func (p *QuestionSent) Decode(r *bytes.Reader) error {
	st, err := readUint32(r)
	if err != nil {
		return err
	}
	p.SupportType = SupportType(st)
	if p.Question, err = readString(r, MaxQuestionLength); err != nil {
		return err
	}
	rest := make([]byte, r.Len())
	if _, err := r.Read(rest); err != nil || len(rest) == 0 || rest[len(rest)-1] != 0 {
		return fmt.Errorf("%w: question support is not NUL terminated", ErrMalformedPayload)
	}
	p.Support = rest[:len(rest)-1]
	return nil
}

type AnswerSent struct {
	Answer string
}

func (p *AnswerSent) Type() MessageType { return TypeAnswerSent }

func (p *AnswerSent) EncodeTo(buf *bytes.Buffer) error {
	writeString(buf, p.Answer, MaxResponseLength)
	return nil
}

func (p *AnswerSent) Decode(r *bytes.Reader) (err error) {
	p.Answer, err = readString(r, MaxResponseLength)
	return err
}

// GameEnded names the winner by public id, or -1 when nobody is left.
type GameEnded struct {
	WinnerID int32
}

func (p *GameEnded) Type() MessageType { return TypeGameEnded }

func (p *GameEnded) EncodeTo(buf *bytes.Buffer) error {
	writeInt32(buf, p.WinnerID)
	return nil
}

func (p *GameEnded) Decode(r *bytes.Reader) (err error) {
	p.WinnerID, err = readInt32(r)
	return err
}

// Success carries a request-specific value, e.g. the id of a created lobby.
type Success struct {
	Data int32
}

func (p *Success) Type() MessageType { return TypeSuccess }

func (p *Success) EncodeTo(buf *bytes.Buffer) error {
	writeInt32(buf, p.Data)
	return nil
}

func (p *Success) Decode(r *bytes.Reader) (err error) {
	p.Data, err = readInt32(r)
	return err
}

// Error carries a ResponseCode.
type Error struct {
	Code ResponseCode
}

func (p *Error) Type() MessageType { return TypeError }

func (p *Error) EncodeTo(buf *bytes.Buffer) error {
	writeInt32(buf, int32(p.Code))
	return nil
}

func (p *Error) Decode(r *bytes.Reader) error {
	v, err := readInt32(r)
	p.Code = ResponseCode(v)
	return err
}

// LobbyEntry is one row of a LobbyList.
type LobbyEntry struct {
	ID   int32
	Name string
}

// LobbyList is sent in reply to CONNECT. The wire layout always holds
// MaxLobbies ids followed by MaxLobbies names; only the first Quantity are
// meaningful.
type LobbyList struct {
	Lobbies []LobbyEntry
}

func (p *LobbyList) Type() MessageType { return TypeLobbyList }

func (p *LobbyList) EncodeTo(buf *bytes.Buffer) error {
	if len(p.Lobbies) > MaxLobbies {
		return fmt.Errorf("%w: %d lobbies listed", ErrMalformedPayload, len(p.Lobbies))
	}
	writeUint32(buf, uint32(len(p.Lobbies)))
	for i := 0; i < MaxLobbies; i++ {
		var id int32 = -1
		if i < len(p.Lobbies) {
			id = p.Lobbies[i].ID
		}
		writeInt32(buf, id)
	}
	for i := 0; i < MaxLobbies; i++ {
		var name string
		if i < len(p.Lobbies) {
			name = p.Lobbies[i].Name
		}
		writeString(buf, name, MaxLobbyNameLength)
	}
	return nil
}

func (p *LobbyList) Decode(r *bytes.Reader) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}
	if n > MaxLobbies {
		return fmt.Errorf("%w: %d lobbies listed", ErrMalformedPayload, n)
	}
	var ids [MaxLobbies]int32
	for i := range ids {
		if ids[i], err = readInt32(r); err != nil {
			return err
		}
	}
	p.Lobbies = make([]LobbyEntry, n)
	for i := 0; i < MaxLobbies; i++ {
		name, err := readString(r, MaxLobbyNameLength)
		if err != nil {
			return err
		}
		if i < int(n) {
			p.Lobbies[i] = LobbyEntry{ID: ids[i], Name: name}
		}
	}
	return nil
}

// PlayerEntry is one row of a PlayersData roster.
type PlayerEntry struct {
	ID       int32
	Username string
	Points   int32
}

// PlayersData is the roster snapshot sent to a player joining a lobby.
// On the wire the names, ids and points are laid out as three arrays.
type PlayersData struct {
	Players []PlayerEntry
}

func (p *PlayersData) Type() MessageType { return TypePlayersData }

func (p *PlayersData) EncodeTo(buf *bytes.Buffer) error {
	writeUint32(buf, uint32(len(p.Players)))
	for _, pl := range p.Players {
		writeString(buf, pl.Username, MaxUsernameLength)
	}
	for _, pl := range p.Players {
		writeInt32(buf, pl.ID)
	}
	for _, pl := range p.Players {
		writeInt32(buf, pl.Points)
	}
	return nil
}

func (p *PlayersData) Decode(r *bytes.Reader) error {
	n, err := readUint32(r)
	if err != nil {
		return err
	}
	if int64(n)*(MaxUsernameLength+8) > int64(r.Len()) {
		return fmt.Errorf("%w: roster of %d players does not fit", ErrMalformedPayload, n)
	}
	p.Players = make([]PlayerEntry, n)
	for i := range p.Players {
		if p.Players[i].Username, err = readString(r, MaxUsernameLength); err != nil {
			return err
		}
	}
	for i := range p.Players {
		if p.Players[i].ID, err = readInt32(r); err != nil {
			return err
		}
	}
	for i := range p.Players {
		if p.Players[i].Points, err = readInt32(r); err != nil {
			return err
		}
	}
	return nil
}
