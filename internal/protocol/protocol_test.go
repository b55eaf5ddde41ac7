// internal/protocol/protocol_test.go
package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, m *Message) *Message {
	t.Helper()
	frame, err := Encode(m)
	require.NoError(t, err)

	got, err := ReadMessage(bytes.NewReader(frame))
	require.NoError(t, err)
	return got
}

func TestRoundTripAllTypes(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x00, 0x1a, 0x00, 0xff}
	cases := []*Message{
		NewMessage(42, &Connect{Username: "alice"}),
		NewMessage(42, &Empty{Kind: TypeDisconnect}),
		NewMessage(42, &CreateLobby{MaxPlayers: 5, Name: "friday quiz"}),
		NewMessage(42, &JoinLobby{LobbyID: 3}),
		NewMessage(42, &Empty{Kind: TypeQuitLobby}),
		NewMessage(42, &Empty{Kind: TypeStartGame}),
		NewMessage(42, &ChangeRules{Rules{PointsToWin: 50, TimeToAnswer: 10}}),
		NewMessage(42, &SendResponse{Response: "Clöclo"}),
		ServerMessage(&PlayerJoined{PlayerID: 2, Username: "bob"}),
		ServerMessage(&PlayerQuit{PlayerID: 1}),
		ServerMessage(&Empty{Kind: TypeGameStarts}),
		ServerMessage(&RulesChanged{Rules{PointsToWin: 50, TimeToAnswer: 10, TimeBetweenQuestions: 3, TimeBeforeStart: 2}}),
		ServerMessage(&PlayerResponseChanged{PlayerID: 1, PointsEarned: 7, IsCorrect: true, Response: "Correct Answer"}),
		ServerMessage(&QuestionSent{SupportType: SupportText, Question: "Who sang Alexandrie Alexandra?", Support: []byte("French pop, 1978")}),
		ServerMessage(&QuestionSent{SupportType: SupportImage, Question: "Which flag is this?", Support: png}),
		ServerMessage(&AnswerSent{Answer: "Claude François"}),
		ServerMessage(&GameEnded{WinnerID: 3}),
		SuccessMessage(7),
		ErrorMessage(CodeLobbyFull),
		ServerMessage(&LobbyList{Lobbies: []LobbyEntry{{ID: 0, Name: "a"}, {ID: 4, Name: "b"}}}),
		ServerMessage(&LobbyList{Lobbies: []LobbyEntry{}}),
		ServerMessage(&PlayersData{Players: []PlayerEntry{{ID: 0, Username: "alice", Points: 10}, {ID: 2, Username: "bob", Points: 3}}}),
		ServerMessage(&PlayersData{Players: []PlayerEntry{}}),
	}

	for _, m := range cases {
		t.Run(m.Type.String(), func(t *testing.T) {
			got := roundTrip(t, m)
			assert.Equal(t, m.Type, got.Type)
			assert.Equal(t, m.SenderID, got.SenderID)
			assert.Equal(t, m.PayloadSize, got.PayloadSize)
			assert.Equal(t, m.Payload, got.Payload)
		})
	}
}

func TestEveryTypeHasPayload(t *testing.T) {
	for typ := range messageTypeNames {
		p, err := NewPayload(typ)
		require.NoError(t, err, typ.String())
		assert.Equal(t, typ, p.Type())
	}
}

func TestNeedsResponseMatchesClientRequests(t *testing.T) {
	for _, typ := range []MessageType{TypeConnect, TypeCreateLobby, TypeJoinLobby, TypeStartGame, TypeChangeRules, TypeSendResponse} {
		assert.True(t, typ.NeedsResponse(), typ.String())
	}
	for _, typ := range []MessageType{TypeDisconnect, TypeQuitLobby, TypePlayerJoined, TypeGameStarts, TypeLobbyList, TypePlayersData, TypeError} {
		assert.False(t, typ.NeedsResponse(), typ.String())
	}
}

func TestFrameLayout(t *testing.T) {
	frame, err := Encode(NewMessage(9, &JoinLobby{LobbyID: 1}))
	require.NoError(t, err)

	require.Len(t, frame, 4+12+4+1)
	assert.Equal(t, uint32(16), binary.BigEndian.Uint32(frame[0:4]))
	assert.Equal(t, uint32(TypeJoinLobby), binary.BigEndian.Uint32(frame[4:8]))
	assert.Equal(t, uint32(9), binary.BigEndian.Uint32(frame[8:12]))
	assert.Equal(t, uint32(4), binary.BigEndian.Uint32(frame[12:16]))
	assert.Equal(t, Terminator, frame[len(frame)-1])
}

func TestFixedWidthStrings(t *testing.T) {
	long := strings.Repeat("é", 40) // 80 bytes
	m := roundTrip(t, NewMessage(1, &Connect{Username: long}))

	name := m.Payload.(*Connect).Username
	assert.Len(t, name, MaxUsernameLength)
	assert.True(t, strings.HasPrefix(long, name))

	m = roundTrip(t, NewMessage(1, &Connect{Username: strings.Repeat("x", MaxUsernameLength)}))
	assert.Equal(t, strings.Repeat("x", MaxUsernameLength), m.Payload.(*Connect).Username)
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(MaxPayloadLength+1))
	buf.Write(make([]byte, 64))

	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.True(t, IsFraming(err))
}

func TestReadFrameBadTerminator(t *testing.T) {
	frame, err := Encode(NewMessage(1, &Empty{Kind: TypeQuitLobby}))
	require.NoError(t, err)
	frame[len(frame)-1] = 0

	_, err = ReadFrame(bytes.NewReader(frame))
	require.ErrorIs(t, err, ErrBadTerminator)
}

func TestDecodePayloadSizeMismatch(t *testing.T) {
	frame, err := Encode(NewMessage(1, &JoinLobby{LobbyID: 2}))
	require.NoError(t, err)
	body, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)

	// header claims more than the frame carries
	binary.BigEndian.PutUint32(body[8:12], 8)
	_, err = Decode(body)
	require.ErrorIs(t, err, ErrPayloadSize)
	assert.False(t, IsFraming(err))

	// payload longer than the type consumes
	long := append(append([]byte{}, body[:12]...), 0, 0, 0, 2, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(long[8:12], 8)
	_, err = Decode(long)
	require.ErrorIs(t, err, ErrPayloadSize)

	// payload shorter than the type needs
	short := append(append([]byte{}, body[:12]...), 0, 0)
	binary.BigEndian.PutUint32(short[8:12], 2)
	_, err = Decode(short)
	require.ErrorIs(t, err, ErrPayloadSize)
}

func TestDecodeUnknownType(t *testing.T) {
	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[0:4], 99)
	_, err := Decode(body)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestQuestionSentRequiresTerminator(t *testing.T) {
	var payload bytes.Buffer
	writeUint32(&payload, uint32(SupportText))
	writeString(&payload, "q", MaxQuestionLength)
	payload.WriteString("no nul")

	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[0:4], uint32(TypeQuestionSent))
	binary.BigEndian.PutUint32(body[8:12], uint32(payload.Len()))
	_, err := Decode(append(body, payload.Bytes()...))
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestEncodeRejectsOversizedSupport(t *testing.T) {
	_, err := Encode(ServerMessage(&QuestionSent{Support: make([]byte, MaxPayloadLength)}))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestEncodeRejectsTooManyLobbies(t *testing.T) {
	entries := make([]LobbyEntry, MaxLobbies+1)
	_, err := Encode(ServerMessage(&LobbyList{Lobbies: entries}))
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestResponseCodeNames(t *testing.T) {
	assert.Equal(t, "SUCCESS", CodeSuccess.String())
	assert.Equal(t, "CANNOT_SUBMIT", CodeCannotSubmit.String())
	assert.Equal(t, "INVALID_RULES", CodeInvalidRules.String())
	assert.Equal(t, ResponseCode(17), CodeCannotSubmit)
}
