// internal/game/loop.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/popsauce/internal/models"
	"github.com/jason-s-yu/popsauce/internal/protocol"
	"github.com/jason-s-yu/popsauce/internal/questions"
	"github.com/jason-s-yu/popsauce/internal/queue"
	"github.com/sirupsen/logrus"
)

// gameRun is the state of one game loop goroutine. It only holds the lobby
// by reference and re-resolves it under lock for every step.
type gameRun struct {
	r     *Registry
	ref   LobbyRef
	id    uuid.UUID
	rules Rules
	inbox *queue.MessageQueue
	log   *logrus.Entry

	actionIndex int
}

// run drives STARTING -> (QUESTION -> ANSWER)* -> WAITING_ROOM. It returns
// early, without touching the lobby, once ctx is cancelled or the lobby is
// gone.
func (g *gameRun) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer g.log.Debug("game loop exited")

	if !g.sleep(ctx, g.rules.TimeBeforeStart) {
		return
	}
	g.record(ctx, models.ActionGameStart, -1, map[string]interface{}{
		"pointsToWin":  g.rules.PointsToWin,
		"timeToAnswer": g.rules.TimeToAnswer.Seconds(),
	})

	var (
		batch []questions.Question
		next  int
	)
	for {
		if ctx.Err() != nil || !g.r.LobbyAlive(g.ref) {
			return
		}
		if n := g.playerCount(); n < g.r.cfg.MinPlayers {
			g.log.WithField("players", n).Info("not enough players left, ending game")
			g.end(ctx)
			return
		}

		if next >= len(batch) {
			var err error
			batch, err = g.r.store.RandomQuestions(ctx, g.ref.ID, g.r.cfg.BatchSize)
			next = 0
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				g.log.WithError(err).Error("failed to fetch questions, ending game")
				g.end(ctx)
				return
			}
			if len(batch) == 0 {
				g.log.Info("question bank exhausted, ending game")
				g.end(ctx)
				return
			}
		}
		q := batch[next]
		next++

		support, err := q.LoadSupport()
		if err != nil {
			g.log.WithError(err).WithField("question", q.ID).Warn("skipping question with unusable support")
			continue
		}

		opened, ok := g.ask(ctx, q, support)
		if !ok || !g.collect(ctx, q, opened) || !g.reveal(ctx, q) {
			return
		}
		if !g.sleep(ctx, g.rules.TimeBetweenQuestions) {
			return
		}

		if leader, points, ok := g.leader(); ok && points >= g.rules.PointsToWin {
			g.log.WithFields(logrus.Fields{"leader": leader, "points": points}).Info("winning score reached")
			g.end(ctx)
			return
		}
	}
}

// ask opens question q: every member goes back to unanswered and the
// question is queued for broadcast. It returns the time the question opened
// on the inbox clock.
func (g *gameRun) ask(ctx context.Context, q questions.Question, support []byte) (time.Time, bool) {
	ls, l := g.r.lockRef(g.ref)
	if l == nil {
		return time.Time{}, false
	}
	opened := g.inbox.Clock()
	l.State = LobbyQuestion
	l.setMemberStates(StateInGameUnanswered)
	g.broadcastLocked(l, &protocol.QuestionSent{
		SupportType: q.SupportType,
		Question:    q.Text,
		Support:     support,
	})
	ls.mu.Unlock()

	g.record(ctx, models.ActionQuestion, -1, map[string]interface{}{
		"questionID":  q.ID,
		"question":    q.Text,
		"supportType": q.SupportType.String(),
	})
	return opened, true
}

// collect evaluates answers until the timer runs out or every member has
// answered correctly, then closes the question and drains what was already
// accepted. Items that arrived before the question opened are dropped.
func (g *gameRun) collect(ctx context.Context, q questions.Question, opened time.Time) bool {
	var score roundScore
	deadline := time.Now().Add(g.rules.TimeToAnswer)

	for time.Now().Before(deadline) {
		item, ok := g.inbox.Dequeue()
		if !ok {
			if !g.sleep(ctx, g.r.cfg.PollInterval) {
				return false
			}
			continue
		}
		if item.Arrival.Before(opened) {
			g.log.WithField("player", item.Message.SenderID).Debug("dropping answer to a closed question")
			continue
		}
		if g.evaluate(ctx, q, item, &score) {
			break
		}
	}

	ls, l := g.r.lockRef(g.ref)
	if l == nil {
		return false
	}
	l.State = LobbyAnswer
	ls.mu.Unlock()

	for {
		item, ok := g.inbox.Dequeue()
		if !ok {
			return true
		}
		if item.Arrival.Before(opened) {
			continue
		}
		g.evaluate(ctx, q, item, &score)
	}
}

// evaluate scores one queued message and reports whether every member has
// now answered correctly.
func (g *gameRun) evaluate(ctx context.Context, q questions.Question, item queue.Item, score *roundScore) bool {
	resp, ok := item.Message.Payload.(*protocol.SendResponse)
	if !ok {
		g.log.WithField("type", item.Message.Type).Debug("ignoring non-answer in inbox")
		return false
	}

	change, all := g.evaluateLocked(q, item, resp, score)
	if change == nil {
		return all
	}
	g.record(ctx, models.ActionResponse, change.PlayerID, map[string]interface{}{
		"correct": change.IsCorrect,
		"points":  change.PointsEarned,
	})
	return all
}

func (g *gameRun) evaluateLocked(q questions.Question, item queue.Item, resp *protocol.SendResponse, score *roundScore) (*protocol.PlayerResponseChanged, bool) {
	ps, p := g.r.lockPlayer(item.Message.SenderID)
	if p == nil {
		return nil, false
	}
	defer ps.mu.Unlock()

	if p.LobbyID != g.ref.ID {
		return nil, false
	}
	ls, l := g.r.lockRef(g.ref)
	if l == nil {
		return nil, false
	}
	defer ls.mu.Unlock()

	if p.State != StateInGameUnanswered {
		return nil, l.allAnswered()
	}

	change := &protocol.PlayerResponseChanged{
		PlayerID: int32(p.PublicID),
		Response: resp.Response,
	}
	if q.Accepts(resp.Response) {
		points := score.award(item.Arrival)
		l.Points[p.PublicID] += points
		p.State = StateInGameAnswered
		change.IsCorrect = true
		change.PointsEarned = int32(points)
		change.Response = CorrectAnswerText
	}
	g.broadcastLocked(l, change)
	return change, l.allAnswered()
}

// reveal broadcasts the expected answer of q.
func (g *gameRun) reveal(ctx context.Context, q questions.Question) bool {
	ls, l := g.r.lockRef(g.ref)
	if l == nil {
		return false
	}
	g.broadcastLocked(l, &protocol.AnswerSent{Answer: q.DisplayAnswer()})
	ls.mu.Unlock()

	g.record(ctx, models.ActionAnswer, -1, map[string]interface{}{"answer": q.DisplayAnswer()})
	return true
}

// end announces the winner and sends everyone back to the waiting room.
// The question history is cleared first so the next game starts fresh.
func (g *gameRun) end(ctx context.Context) {
	if err := g.r.store.WipeLobbyHistory(ctx, g.ref.ID); err != nil {
		g.log.WithError(err).Warn("failed to wipe lobby history")
	}

	ls, l := g.r.lockRef(g.ref)
	if l == nil {
		return
	}
	winner, points := l.leader()
	g.broadcastLocked(l, &protocol.GameEnded{WinnerID: int32(winner)})
	l.setMemberStates(StateInWaitingRoom)
	l.State = LobbyWaitingRoom
	ls.mu.Unlock()

	g.log.WithFields(logrus.Fields{"winner": winner, "points": points}).Info("game ended")
	g.record(ctx, models.ActionEndGame, int32(winner), map[string]interface{}{"points": points})
}

func (g *gameRun) leader() (publicID, points int, ok bool) {
	ls, l := g.r.lockRef(g.ref)
	if l == nil {
		return -1, 0, false
	}
	defer ls.mu.Unlock()
	publicID, points = l.leader()
	return publicID, points, publicID >= 0
}

func (g *gameRun) playerCount() int {
	ls, l := g.r.lockRef(g.ref)
	if l == nil {
		return 0
	}
	defer ls.mu.Unlock()
	return l.PlayersInLobby
}

// broadcastLocked queues p on the lobby outbox. The lobby slot must be locked.
func (g *gameRun) broadcastLocked(l *Lobby, p protocol.Payload) {
	if !l.Outbox.Enqueue(protocol.ServerMessage(p), nil) {
		g.log.WithField("type", p.Type()).Warn("outbox full, broadcast dropped")
	}
}

func (g *gameRun) record(ctx context.Context, actionType string, actor int32, payload map[string]interface{}) {
	if g.r.Recorder == nil {
		return
	}
	action := models.GameAction{
		GameID:        g.id,
		LobbyID:       g.ref.ID,
		ActionIndex:   g.actionIndex,
		ActorID:       actor,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	g.actionIndex++
	if err := g.r.Recorder.RecordAction(ctx, action); err != nil {
		g.log.WithError(err).WithField("action", actionType).Warn("failed to record game action")
	}
}

// sleep waits for d and reports false if ctx was cancelled first.
func (g *gameRun) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
