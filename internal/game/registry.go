// internal/game/registry.go
package game

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/popsauce/internal/models"
	"github.com/jason-s-yu/popsauce/internal/protocol"
	"github.com/jason-s-yu/popsauce/internal/questions"
	"github.com/jason-s-yu/popsauce/internal/queue"
	"github.com/sirupsen/logrus"
)

// Config sizes the registry and seeds the rules of new lobbies.
type Config struct {
	MaxPlayers         int
	MaxLobbies         int
	MaxPlayersPerLobby int
	MinPlayers         int
	BatchSize          int
	PollInterval       time.Duration
	Rules              Rules
}

// DefaultConfig returns the stock server limits.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:         64,
		MaxLobbies:         protocol.MaxLobbies,
		MaxPlayersPerLobby: 16,
		MinPlayers:         2,
		BatchSize:          questions.DefaultBatchSize,
		PollInterval:       queue.DefaultPollInterval,
		Rules:              DefaultRules(),
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = def.MaxPlayers
	}
	if c.MaxLobbies <= 0 || c.MaxLobbies > protocol.MaxLobbies {
		c.MaxLobbies = protocol.MaxLobbies
	}
	if c.MaxPlayersPerLobby <= 0 {
		c.MaxPlayersPerLobby = def.MaxPlayersPerLobby
	}
	if c.MinPlayers <= 0 {
		c.MinPlayers = def.MinPlayers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Rules.PointsToWin <= 0 {
		c.Rules = def.Rules
	}
}

// ActionRecorder receives every game event, e.g. to feed the historian.
// It is never called with a registry lock held.
type ActionRecorder interface {
	RecordAction(ctx context.Context, action models.GameAction) error
}

type playerSlot struct {
	mu sync.Mutex
	p  *Player
}

type lobbySlot struct {
	mu sync.Mutex
	l  *Lobby
	// draining is set while a deleted lobby's history is being dropped.
	// The slot cannot be reused until it clears.
	draining bool
}

// Registry owns every player and lobby. Locks are always taken in this
// order: player slot, lobby slot, then the id index. No lock is held while
// talking to the question store or the recorder.
type Registry struct {
	cfg    Config
	store  questions.Store
	logger *logrus.Logger

	// Recorder is optional; set it before the first game starts.
	Recorder ActionRecorder

	players []playerSlot
	lobbies []lobbySlot

	indexMu sync.Mutex
	index   map[uint32]int

	ctx context.Context
}

// NewRegistry returns an empty registry. Lobbies are cancelled when ctx is.
func NewRegistry(ctx context.Context, cfg Config, store questions.Store, logger *logrus.Logger) *Registry {
	cfg.normalize()
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if store == nil {
		store = questions.NewMemoryStore()
	}
	return &Registry{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		players: make([]playerSlot, cfg.MaxPlayers),
		lobbies: make([]lobbySlot, cfg.MaxLobbies),
		index:   make(map[uint32]int),
		ctx:     ctx,
	}
}

// Config returns the effective configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// lockPlayer locks and returns the slot of player id. The caller must
// unlock the slot when the returned player is non-nil.
func (r *Registry) lockPlayer(id uint32) (*playerSlot, *Player) {
	for attempt := 0; attempt < 3; attempt++ {
		r.indexMu.Lock()
		idx, ok := r.index[id]
		r.indexMu.Unlock()
		if !ok {
			return nil, nil
		}
		s := &r.players[idx]
		s.mu.Lock()
		if s.p != nil && s.p.ID == id {
			return s, s.p
		}
		s.mu.Unlock()
	}
	return nil, nil
}

// lockLobby locks and returns lobby id. The caller must unlock the slot
// when the returned lobby is non-nil.
func (r *Registry) lockLobby(id int) (*lobbySlot, *Lobby) {
	if id < 0 || id >= len(r.lobbies) {
		return nil, nil
	}
	s := &r.lobbies[id]
	s.mu.Lock()
	if s.l == nil {
		s.mu.Unlock()
		return nil, nil
	}
	return s, s.l
}

// lockRef is lockLobby restricted to one lobby instance.
func (r *Registry) lockRef(ref LobbyRef) (*lobbySlot, *Lobby) {
	s, l := r.lockLobby(ref.ID)
	if l != nil && l.UID != ref.UID {
		s.mu.Unlock()
		return nil, nil
	}
	return s, l
}

func (r *Registry) lockAllLobbies() {
	for i := range r.lobbies {
		r.lobbies[i].mu.Lock()
	}
}

func (r *Registry) unlockAllLobbies() {
	for i := len(r.lobbies) - 1; i >= 0; i-- {
		r.lobbies[i].mu.Unlock()
	}
}

// CreatePlayer registers a new connected player.
func (r *Registry) CreatePlayer(conn Sender, id uint32, username string) protocol.ResponseCode {
	username = protocol.Truncate(username, protocol.MaxUsernameLength)

	for i := range r.players {
		s := &r.players[i]
		s.mu.Lock()
		if s.p != nil {
			s.mu.Unlock()
			continue
		}

		r.indexMu.Lock()
		if _, exists := r.index[id]; exists {
			r.indexMu.Unlock()
			s.mu.Unlock()
			return protocol.CodePlayerExists
		}
		r.index[id] = i
		r.indexMu.Unlock()

		s.p = newPlayer(id, username, conn)
		s.mu.Unlock()

		r.logger.WithFields(logrus.Fields{"player": id, "username": username, "slot": i}).Info("player connected")
		return protocol.CodeSuccess
	}

	r.indexMu.Lock()
	_, exists := r.index[id]
	r.indexMu.Unlock()
	if exists {
		return protocol.CodePlayerExists
	}
	return protocol.CodeTooManyPlayers
}

// DeletePlayer removes a player, quitting its lobby first. The returned
// notice, if any, must be broadcast to lobbyID.
func (r *Registry) DeletePlayer(id uint32) (notice *protocol.Message, lobbyID int, code protocol.ResponseCode) {
	s, p := r.lockPlayer(id)
	if p == nil {
		return nil, -1, protocol.CodePlayerDoesntExist
	}

	lobbyID = p.LobbyID
	var deleted *Lobby
	if p.LobbyID >= 0 {
		notice, deleted = r.quitLocked(p)
	}

	r.indexMu.Lock()
	delete(r.index, id)
	r.indexMu.Unlock()
	s.p = nil
	s.mu.Unlock()

	if deleted != nil {
		r.finishDelete(deleted)
	}
	r.logger.WithFields(logrus.Fields{"player": id, "lobby": lobbyID}).Info("player disconnected")
	return notice, lobbyID, protocol.CodeSuccess
}

// CreateLobby opens a lobby owned by ownerID, who takes public id 0.
func (r *Registry) CreateLobby(ownerID uint32, name string, maxPlayers int) (LobbyRef, protocol.ResponseCode) {
	none := LobbyRef{ID: -1}
	if maxPlayers <= 0 || maxPlayers > r.cfg.MaxPlayersPerLobby || len(name) > protocol.MaxLobbyNameLength {
		return none, protocol.CodeCannotCreateLobby
	}

	s, p := r.lockPlayer(ownerID)
	if p == nil {
		return none, protocol.CodePlayerDoesntExist
	}
	defer s.mu.Unlock()

	if p.LobbyID >= 0 {
		return none, protocol.CodeAlreadyInLobby
	}

	for i := range r.lobbies {
		ls := &r.lobbies[i]
		ls.mu.Lock()
		if ls.l != nil || ls.draining {
			ls.mu.Unlock()
			continue
		}

		l := newLobby(r.ctx, i, name, maxPlayers, r.cfg.Rules)
		l.OwnerID = p.ID
		l.Players[0] = p
		l.PlayersInLobby = 1
		p.LobbyID = i
		p.PublicID = 0
		p.State = StateInWaitingRoom
		ls.l = l
		ls.mu.Unlock()

		r.logger.WithFields(logrus.Fields{
			"lobby":      i,
			"name":       name,
			"owner":      ownerID,
			"maxPlayers": maxPlayers,
		}).Info("lobby created")
		return l.Ref(), protocol.CodeSuccess
	}
	return none, protocol.CodeTooManyLobbies
}

// JoinLobby seats playerID in the lowest free slot of lobbyID and returns
// the PlayerJoined notice for the other members.
func (r *Registry) JoinLobby(playerID uint32, lobbyID int) (*protocol.Message, protocol.ResponseCode) {
	s, p := r.lockPlayer(playerID)
	if p == nil {
		return nil, protocol.CodePlayerDoesntExist
	}
	defer s.mu.Unlock()

	if p.LobbyID >= 0 {
		return nil, protocol.CodeAlreadyInLobby
	}

	ls, l := r.lockLobby(lobbyID)
	if l == nil {
		return nil, protocol.CodeLobbyDoesntExist
	}
	defer ls.mu.Unlock()

	if l.PlayersInLobby >= l.MaxPlayers {
		return nil, protocol.CodeLobbyFull
	}
	if l.State != LobbyWaitingRoom {
		return nil, protocol.CodeGameAlreadyStarted
	}
	slot := l.freeSlot()
	if slot < 0 {
		r.logger.WithField("lobby", lobbyID).Error("lobby count says free seat but none found")
		return nil, protocol.CodeInternalError
	}

	l.Players[slot] = p
	l.Points[slot] = 0
	l.PlayersInLobby++
	p.LobbyID = lobbyID
	p.PublicID = slot
	p.State = StateInWaitingRoom

	r.logger.WithFields(logrus.Fields{"lobby": lobbyID, "player": playerID, "publicID": slot}).Info("player joined lobby")
	return protocol.ServerMessage(&protocol.PlayerJoined{PlayerID: int32(slot), Username: p.Username}), protocol.CodeSuccess
}

// QuitLobby removes playerID from its lobby. Ownership moves to the lowest
// remaining public id; an empty lobby is deleted and no notice is returned.
func (r *Registry) QuitLobby(playerID uint32) (notice *protocol.Message, lobbyID int, code protocol.ResponseCode) {
	s, p := r.lockPlayer(playerID)
	if p == nil {
		return nil, -1, protocol.CodePlayerDoesntExist
	}
	lobbyID = p.LobbyID
	if lobbyID < 0 {
		s.mu.Unlock()
		return nil, -1, protocol.CodeNotInLobby
	}
	notice, deleted := r.quitLocked(p)
	s.mu.Unlock()

	if deleted != nil {
		r.finishDelete(deleted)
	}
	return notice, lobbyID, protocol.CodeSuccess
}

// quitLocked detaches p from its lobby. The player slot must be locked. A
// lobby left empty is unlinked and returned so the caller can finish the
// deletion once every lock is released.
func (r *Registry) quitLocked(p *Player) (notice *protocol.Message, deleted *Lobby) {
	ls, l := r.lockLobby(p.LobbyID)
	if l == nil {
		p.leaveLobby()
		return nil, nil
	}
	defer ls.mu.Unlock()

	pub := p.PublicID
	lobbyID := l.ID
	if pub >= 0 && pub < len(l.Players) && l.Players[pub] == p {
		l.Players[pub] = nil
		l.Points[pub] = 0
		l.PlayersInLobby--
	}
	p.leaveLobby()

	log := r.logger.WithFields(logrus.Fields{"lobby": lobbyID, "player": p.ID, "publicID": pub})
	if l.PlayersInLobby == 0 {
		l.cancel()
		ls.l = nil
		ls.draining = true
		log.Info("last player left, lobby deleted")
		return nil, l
	}

	if l.OwnerID == p.ID {
		for _, m := range l.Players {
			if m != nil {
				l.OwnerID = m.ID
				log.WithField("newOwner", m.PublicID).Info("lobby ownership transferred")
				break
			}
		}
	}
	log.Info("player left lobby")
	return protocol.ServerMessage(&protocol.PlayerQuit{PlayerID: int32(pub)}), nil
}

// finishDelete waits for the lobby's game loop, drops its question history
// and releases the slot. Called without locks, after the lobby has been
// unlinked.
func (r *Registry) finishDelete(l *Lobby) {
	if l.loopDone != nil {
		<-l.loopDone
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.DestroyLobbyHistory(ctx, l.ID); err != nil {
		r.logger.WithError(err).WithField("lobby", l.ID).Warn("failed to destroy lobby history")
	}

	ls := &r.lobbies[l.ID]
	ls.mu.Lock()
	ls.draining = false
	ls.mu.Unlock()
}

// StartGame launches the game loop of lobbyID on behalf of its owner.
// GameStarts is queued for broadcast; no direct reply is due on success.
func (r *Registry) StartGame(playerID uint32, lobbyID int) protocol.ResponseCode {
	s, p := r.lockPlayer(playerID)
	if p == nil {
		return protocol.CodePlayerDoesntExist
	}
	defer s.mu.Unlock()

	ls, l := r.lockLobby(lobbyID)
	if l == nil {
		return protocol.CodeLobbyDoesntExist
	}
	defer ls.mu.Unlock()

	if l.OwnerID != p.ID || p.LobbyID != lobbyID {
		return protocol.CodeInsufficientPermission
	}
	if l.State != LobbyWaitingRoom {
		return protocol.CodeGameAlreadyStarted
	}
	if l.PlayersInLobby < r.cfg.MinPlayers {
		return protocol.CodeNotEnoughPlayers
	}

	l.State = LobbyStarting
	for i := range l.Points {
		l.Points[i] = 0
	}
	l.setMemberStates(StateInWaitingRoom)
	l.GameID = uuid.New()
	done := make(chan struct{})
	l.loopDone = done

	if !l.Outbox.Enqueue(protocol.ServerMessage(&protocol.Empty{Kind: protocol.TypeGameStarts}), nil) {
		r.logger.WithField("lobby", lobbyID).Warn("outbox full, GameStarts dropped")
	}

	g := &gameRun{
		r:     r,
		ref:   l.Ref(),
		id:    l.GameID,
		rules: l.Rules,
		inbox: l.Inbox,
		log:   r.logger.WithFields(logrus.Fields{"lobby": lobbyID, "game": l.GameID}),
	}
	go g.run(l.ctx, done)

	g.log.WithField("players", l.PlayersInLobby).Info("game started")
	return protocol.CodeSuccess
}

// ChangeRules updates the rules of the caller's lobby and returns the
// RulesChanged notice.
func (r *Registry) ChangeRules(playerID uint32, req protocol.Rules) (*protocol.Message, protocol.ResponseCode) {
	s, p := r.lockPlayer(playerID)
	if p == nil {
		return nil, protocol.CodePlayerDoesntExist
	}
	defer s.mu.Unlock()

	ls, l := r.lockLobby(p.LobbyID)
	if l == nil {
		return nil, protocol.CodeNotInLobby
	}
	defer ls.mu.Unlock()

	if l.OwnerID != p.ID {
		return nil, protocol.CodeInsufficientPermission
	}
	if l.State != LobbyWaitingRoom {
		return nil, protocol.CodeGameAlreadyStarted
	}
	if err := l.Rules.Update(req); err != nil {
		r.logger.WithError(err).WithField("lobby", l.ID).Debug("rejected rules")
		return nil, protocol.CodeInvalidRules
	}
	return protocol.ServerMessage(&protocol.RulesChanged{Rules: l.Rules.Wire()}), protocol.CodeSuccess
}

// LobbySummary is a read-only view of one lobby.
type LobbySummary struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	State      string `json:"state"`
	Rules      Rules  `json:"rules"`
}

// Lobbies returns a consistent snapshot of every open lobby.
func (r *Registry) Lobbies() []LobbySummary {
	r.lockAllLobbies()
	defer r.unlockAllLobbies()

	var out []LobbySummary
	for i := range r.lobbies {
		l := r.lobbies[i].l
		if l == nil {
			continue
		}
		out = append(out, LobbySummary{
			ID:         l.ID,
			Name:       l.Name,
			Players:    l.PlayersInLobby,
			MaxPlayers: l.MaxPlayers,
			State:      l.State.String(),
			Rules:      l.Rules,
		})
	}
	return out
}

// LobbyList is the CONNECT reply payload.
func (r *Registry) LobbyList() *protocol.LobbyList {
	summaries := r.Lobbies()
	list := &protocol.LobbyList{Lobbies: make([]protocol.LobbyEntry, 0, len(summaries))}
	for _, s := range summaries {
		list.Lobbies = append(list.Lobbies, protocol.LobbyEntry{ID: int32(s.ID), Name: s.Name})
	}
	return list
}

// PlayersData is the roster of lobbyID, sent to players joining it.
func (r *Registry) PlayersData(lobbyID int) (*protocol.PlayersData, protocol.ResponseCode) {
	ls, l := r.lockLobby(lobbyID)
	if l == nil {
		return nil, protocol.CodeLobbyDoesntExist
	}
	defer ls.mu.Unlock()
	return l.roster(), protocol.CodeSuccess
}

// PlayerLobby returns the lobby playerID currently sits in.
func (r *Registry) PlayerLobby(playerID uint32) (lobbyID int, ok bool) {
	s, p := r.lockPlayer(playerID)
	if p == nil {
		return -1, false
	}
	defer s.mu.Unlock()
	return p.LobbyID, p.LobbyID >= 0
}

// CanSubmitAnswers reports whether playerID may answer the open question,
// and in which lobby.
func (r *Registry) CanSubmitAnswers(playerID uint32) (lobbyID int, ok bool) {
	s, p := r.lockPlayer(playerID)
	if p == nil {
		return -1, false
	}
	defer s.mu.Unlock()

	ls, l := r.lockLobby(p.LobbyID)
	if l == nil {
		return -1, false
	}
	defer ls.mu.Unlock()
	return l.ID, l.State == LobbyQuestion && p.State == StateInGameUnanswered
}

// SubmitAnswer queues m, an answer from playerID, for the game loop of its
// lobby. The check and the enqueue happen under the same locks, so an answer
// is only ever accepted while the question it targets is open.
func (r *Registry) SubmitAnswer(playerID uint32, m *protocol.Message, origin Sender) (lobbyID int, code protocol.ResponseCode) {
	s, p := r.lockPlayer(playerID)
	if p == nil {
		return -1, protocol.CodePlayerDoesntExist
	}
	defer s.mu.Unlock()

	ls, l := r.lockLobby(p.LobbyID)
	if l == nil {
		return -1, protocol.CodeCannotSubmit
	}
	defer ls.mu.Unlock()

	if l.State != LobbyQuestion || p.State != StateInGameUnanswered {
		return l.ID, protocol.CodeCannotSubmit
	}
	var w io.Writer
	if origin != nil {
		w = writerFunc(origin.WriteFrame)
	}
	if !l.Inbox.Enqueue(m, w) {
		r.logger.WithFields(logrus.Fields{"lobby": l.ID, "player": playerID}).Warn("inbox full, answer dropped")
		return l.ID, protocol.CodeCannotSubmit
	}
	return l.ID, protocol.CodeSuccess
}

// PostInbox queues a client message for the lobby's game loop.
func (r *Registry) PostInbox(lobbyID int, m *protocol.Message, origin Sender) bool {
	ls, l := r.lockLobby(lobbyID)
	if l == nil {
		return false
	}
	inbox := l.Inbox
	ls.mu.Unlock()

	var w io.Writer
	if origin != nil {
		w = writerFunc(origin.WriteFrame)
	}
	if !inbox.Enqueue(m, w) {
		r.logger.WithFields(logrus.Fields{"lobby": lobbyID, "type": m.Type}).Warn("inbox full, message dropped")
		return false
	}
	return true
}

// PostOutbox queues a message for broadcast to every member of lobbyID.
func (r *Registry) PostOutbox(lobbyID int, m *protocol.Message) bool {
	ls, l := r.lockLobby(lobbyID)
	if l == nil {
		return false
	}
	outbox := l.Outbox
	ls.mu.Unlock()

	if !outbox.Enqueue(m, nil) {
		r.logger.WithFields(logrus.Fields{"lobby": lobbyID, "type": m.Type}).Warn("outbox full, broadcast dropped")
		return false
	}
	return true
}

// Outbox hands the broadcast queue of a lobby instance to its dispatcher.
// ctx is cancelled when the lobby is deleted.
func (r *Registry) Outbox(ref LobbyRef) (q *queue.MessageQueue, ctx context.Context, ok bool) {
	ls, l := r.lockRef(ref)
	if l == nil {
		return nil, nil, false
	}
	defer ls.mu.Unlock()
	return l.Outbox, l.ctx, true
}

// Members returns the senders of every current member in slot order.
func (r *Registry) Members(ref LobbyRef) []Sender {
	ls, l := r.lockRef(ref)
	if l == nil {
		return nil
	}
	defer ls.mu.Unlock()

	out := make([]Sender, 0, l.PlayersInLobby)
	for _, p := range l.Players {
		if p != nil {
			out = append(out, p.Conn)
		}
	}
	return out
}

// LobbyAlive reports whether the lobby instance still exists.
func (r *Registry) LobbyAlive(ref LobbyRef) bool {
	ls, l := r.lockRef(ref)
	if l == nil {
		return false
	}
	ls.mu.Unlock()
	return true
}

// writerFunc adapts a Sender to io.Writer for queue origins.
type writerFunc func([]byte) error

func (f writerFunc) Write(b []byte) (int, error) {
	if err := f(b); err != nil {
		return 0, err
	}
	return len(b), nil
}
