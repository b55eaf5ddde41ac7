// internal/server/server_test.go
package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/popsauce/internal/game"
	"github.com/jason-s-yu/popsauce/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	reg := game.NewRegistry(ctx, game.DefaultConfig(), nil, logger)

	s := New(reg, logger)
	s.WriteTimeout = time.Second
	s.fatalf = func(format string, args ...interface{}) {
		t.Fatalf(format, args...)
	}
	return s, ctx
}

// dial connects an in-memory client to s.
func dial(t *testing.T, s *Server, ctx context.Context) net.Conn {
	t.Helper()
	client, srv := net.Pipe()
	go s.ServeConn(ctx, srv, "pipe")
	t.Cleanup(func() { client.Close() })
	return client
}

func send(t *testing.T, c net.Conn, sender uint32, p protocol.Payload) {
	t.Helper()
	require.NoError(t, c.SetWriteDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, protocol.WriteMessage(c, protocol.NewMessage(sender, p)))
}

func recv(t *testing.T, c net.Conn) *protocol.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	m, err := protocol.ReadMessage(c)
	require.NoError(t, err)
	return m
}

func expectError(t *testing.T, c net.Conn, code protocol.ResponseCode) {
	t.Helper()
	m := recv(t, c)
	require.Equal(t, protocol.TypeError, m.Type)
	assert.Equal(t, code, m.Payload.(*protocol.Error).Code)
}

// connectClient dials and registers a player.
func connectClient(t *testing.T, s *Server, ctx context.Context, id uint32, name string) (net.Conn, *protocol.LobbyList) {
	t.Helper()
	c := dial(t, s, ctx)
	send(t, c, id, &protocol.Connect{Username: name})
	m := recv(t, c)
	require.Equal(t, protocol.TypeLobbyList, m.Type)
	return c, m.Payload.(*protocol.LobbyList)
}

// openLobby has alice create a lobby and bob join it.
func openLobby(t *testing.T, s *Server, ctx context.Context) (alice, bob net.Conn) {
	t.Helper()
	alice, _ = connectClient(t, s, ctx, 1001, "alice")
	send(t, alice, 1001, &protocol.CreateLobby{MaxPlayers: 4, Name: "quiz"})
	m := recv(t, alice)
	require.Equal(t, protocol.TypeSuccess, m.Type)
	require.Equal(t, int32(0), m.Payload.(*protocol.Success).Data)

	bob, list := connectClient(t, s, ctx, 2002, "bob")
	require.Len(t, list.Lobbies, 1)
	assert.Equal(t, "quiz", list.Lobbies[0].Name)

	send(t, bob, 2002, &protocol.JoinLobby{LobbyID: 0})
	m = recv(t, bob)
	require.Equal(t, protocol.TypePlayersData, m.Type)
	roster := m.Payload.(*protocol.PlayersData)
	require.Len(t, roster.Players, 2)
	assert.Equal(t, "alice", roster.Players[0].Username)
	assert.Equal(t, int32(1), roster.Players[1].ID)

	for _, c := range []net.Conn{alice, bob} {
		m = recv(t, c)
		require.Equal(t, protocol.TypePlayerJoined, m.Type)
		joined := m.Payload.(*protocol.PlayerJoined)
		assert.Equal(t, int32(1), joined.PlayerID)
		assert.Equal(t, "bob", joined.Username)
	}
	return alice, bob
}

func TestConnectRepliesLobbyList(t *testing.T) {
	s, ctx := newTestServer(t)
	c, list := connectClient(t, s, ctx, 7, "alice")
	assert.Empty(t, list.Lobbies)

	send(t, c, 7, &protocol.Connect{Username: "again"})
	expectError(t, c, protocol.CodePlayerExists)

	other := dial(t, s, ctx)
	send(t, other, 7, &protocol.Connect{Username: "thief"})
	expectError(t, other, protocol.CodePlayerExists)
}

func TestRequestsBeforeConnect(t *testing.T) {
	s, ctx := newTestServer(t)
	c := dial(t, s, ctx)

	send(t, c, 5, &protocol.CreateLobby{MaxPlayers: 4, Name: "quiz"})
	expectError(t, c, protocol.CodePlayerDoesntExist)
	send(t, c, 5, &protocol.SendResponse{Response: "cloclo"})
	expectError(t, c, protocol.CodePlayerDoesntExist)

	// server-only and even types get no reply
	send(t, c, 5, &protocol.PlayerJoined{PlayerID: 3, Username: "ghost"})
	send(t, c, 5, &protocol.Empty{Kind: protocol.TypeQuitLobby})

	send(t, c, 5, &protocol.Connect{Username: "alice"})
	assert.Equal(t, protocol.TypeLobbyList, recv(t, c).Type)
}

func TestJoinLobbyBroadcastsPlayerJoined(t *testing.T) {
	s, ctx := newTestServer(t)
	openLobby(t, s, ctx)

	data, code := s.Registry.PlayersData(0)
	require.Equal(t, protocol.CodeSuccess, code)
	assert.Len(t, data.Players, 2)
}

func TestSendResponseRejectedOutsideQuestion(t *testing.T) {
	s, ctx := newTestServer(t)
	_, bob := openLobby(t, s, ctx)

	send(t, bob, 2002, &protocol.SendResponse{Response: "cloclo"})
	expectError(t, bob, protocol.CodeCannotSubmit)

	_, code := s.Registry.SubmitAnswer(2002, protocol.NewMessage(2002, &protocol.SendResponse{Response: "cloclo"}), nil)
	assert.Equal(t, protocol.CodeCannotSubmit, code)
}

func TestStartGameErrors(t *testing.T) {
	s, ctx := newTestServer(t)
	alice, _ := connectClient(t, s, ctx, 1, "alice")

	send(t, alice, 1, &protocol.Empty{Kind: protocol.TypeStartGame})
	expectError(t, alice, protocol.CodeNotInLobby)

	send(t, alice, 1, &protocol.CreateLobby{MaxPlayers: 5, Name: "solo"})
	require.Equal(t, protocol.TypeSuccess, recv(t, alice).Type)
	send(t, alice, 1, &protocol.Empty{Kind: protocol.TypeStartGame})
	expectError(t, alice, protocol.CodeNotEnoughPlayers)
}

func TestNonOwnerCannotStart(t *testing.T) {
	s, ctx := newTestServer(t)
	_, bob := openLobby(t, s, ctx)

	send(t, bob, 2002, &protocol.Empty{Kind: protocol.TypeStartGame})
	expectError(t, bob, protocol.CodeInsufficientPermission)
	send(t, bob, 2002, &protocol.ChangeRules{Rules: protocol.Rules{PointsToWin: 10}})
	expectError(t, bob, protocol.CodeInsufficientPermission)
}

func TestStartGameBroadcastsToEveryMember(t *testing.T) {
	s, ctx := newTestServer(t)
	owner, _ := connectClient(t, s, ctx, 1, "alice")
	send(t, owner, 1, &protocol.CreateLobby{MaxPlayers: 5, Name: "quiz"})
	require.Equal(t, protocol.TypeSuccess, recv(t, owner).Type)

	send(t, owner, 1, &protocol.Empty{Kind: protocol.TypeStartGame})
	expectError(t, owner, protocol.CodeNotEnoughPlayers)

	members := []net.Conn{owner}
	for i, name := range []string{"bob", "carol", "dave"} {
		id := uint32(10 + i)
		c, _ := connectClient(t, s, ctx, id, name)
		send(t, c, id, &protocol.JoinLobby{LobbyID: 0})
		require.Equal(t, protocol.TypePlayersData, recv(t, c).Type)

		members = append(members, c)
		for _, m := range members {
			joined := recv(t, m)
			require.Equal(t, protocol.TypePlayerJoined, joined.Type)
			assert.Equal(t, name, joined.Payload.(*protocol.PlayerJoined).Username)
		}
	}

	send(t, owner, 1, &protocol.Empty{Kind: protocol.TypeStartGame})
	for i, c := range members {
		m := recv(t, c)
		assert.Equal(t, protocol.TypeGameStarts, m.Type, "member %d", i)
	}
}

func TestChangeRulesBroadcasts(t *testing.T) {
	s, ctx := newTestServer(t)
	alice, bob := openLobby(t, s, ctx)

	send(t, alice, 1001, &protocol.ChangeRules{Rules: protocol.Rules{PointsToWin: 30}})
	m := recv(t, alice)
	require.Equal(t, protocol.TypeSuccess, m.Type)

	for _, c := range []net.Conn{alice, bob} {
		m = recv(t, c)
		require.Equal(t, protocol.TypeRulesChanged, m.Type)
		assert.Equal(t, uint32(30), m.Payload.(*protocol.RulesChanged).PointsToWin)
	}
}

func TestDroppedClientLeavesLobby(t *testing.T) {
	s, ctx := newTestServer(t)
	alice, bob := openLobby(t, s, ctx)

	require.NoError(t, bob.Close())

	m := recv(t, alice)
	require.Equal(t, protocol.TypePlayerQuit, m.Type)
	assert.Equal(t, int32(1), m.Payload.(*protocol.PlayerQuit).PlayerID)

	// the private id is free again
	c, _ := connectClient(t, s, ctx, 2002, "bob")
	assert.NotNil(t, c)
}

func TestOwnerQuitTransfersLobby(t *testing.T) {
	s, ctx := newTestServer(t)
	alice, bob := openLobby(t, s, ctx)

	send(t, alice, 1001, &protocol.Empty{Kind: protocol.TypeQuitLobby})
	m := recv(t, bob)
	require.Equal(t, protocol.TypePlayerQuit, m.Type)
	assert.Equal(t, int32(0), m.Payload.(*protocol.PlayerQuit).PlayerID)

	// bob owns the lobby now and may change its rules
	send(t, bob, 2002, &protocol.ChangeRules{Rules: protocol.Rules{TimeToAnswer: 10}})
	assert.Equal(t, protocol.TypeSuccess, recv(t, bob).Type)
	assert.Equal(t, protocol.TypeRulesChanged, recv(t, bob).Type)
}

func TestOversizedFrameDropsConnection(t *testing.T) {
	s, ctx := newTestServer(t)
	c, _ := connectClient(t, s, ctx, 9, "mallory")

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], protocol.MaxPayloadLength+1)
	require.NoError(t, c.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := c.Write(hdr[:])
	require.NoError(t, err)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = protocol.ReadMessage(c)
	assert.ErrorIs(t, err, io.EOF)

	assert.Eventually(t, func() bool {
		return s.Registry.CreatePlayer(nil, 9, "mallory") == protocol.CodeSuccess
	}, time.Second, 10*time.Millisecond, "player is removed with the connection")
}

func TestPayloadSizeMismatchIsDiscarded(t *testing.T) {
	s, ctx := newTestServer(t)
	c := dial(t, s, ctx)

	frame, err := protocol.Encode(protocol.NewMessage(3, &protocol.Connect{Username: "alice"}))
	require.NoError(t, err)
	binary.BigEndian.PutUint32(frame[12:16], 5)
	require.NoError(t, c.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err = c.Write(frame)
	require.NoError(t, err)

	send(t, c, 3, &protocol.Connect{Username: "alice"})
	m := recv(t, c)
	assert.Equal(t, protocol.TypeLobbyList, m.Type, "the corrupt message got no reply and the stream is intact")
}

func TestHTTPGateway(t *testing.T) {
	s, ctx := newTestServer(t)
	alice, _ := connectClient(t, s, ctx, 1, "alice")
	send(t, alice, 1, &protocol.CreateLobby{MaxPlayers: 3, Name: "web"})
	require.Equal(t, protocol.TypeSuccess, recv(t, alice).Type)

	ts := httptest.NewServer(s.HTTPHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/lobbies")
	require.NoError(t, err)
	var out struct {
		Lobbies []game.LobbySummary `json:"lobbies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.Len(t, out.Lobbies, 1)
	assert.Equal(t, "web", out.Lobbies[0].Name)
	assert.Equal(t, 3, out.Lobbies[0].MaxPlayers)

	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{Subprotocols: []string{Subprotocol}})
	require.NoError(t, err)
	conn := websocket.NetConn(ctx, ws, websocket.MessageBinary)
	defer conn.Close()

	send(t, conn, 2, &protocol.Connect{Username: "bob"})
	m := recv(t, conn)
	require.Equal(t, protocol.TypeLobbyList, m.Type)
	require.Len(t, m.Payload.(*protocol.LobbyList).Lobbies, 1)

	send(t, conn, 2, &protocol.JoinLobby{LobbyID: 0})
	assert.Equal(t, protocol.TypePlayersData, recv(t, conn).Type)
	assert.Equal(t, protocol.TypePlayerJoined, recv(t, alice).Type)
	assert.Equal(t, protocol.TypePlayerJoined, recv(t, conn).Type)
}
