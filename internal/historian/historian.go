// internal/historian/historian.go is an asynchronous historian service that pops game actions from a Redis queue and persists them to PostgreSQL.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/popsauce/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sink persists game actions.
type Sink interface {
	WriteActions(ctx context.Context, actions []models.GameAction) error
	MarkAbandoned(ctx context.Context, gameID uuid.UUID) error
}

// popper is the part of the Redis client the service reads with.
type popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Service batches actions read from Redis into the sink and marks games
// abandoned when no action arrived for Inactivity.
type Service struct {
	BatchSize       int
	FlushDelay      time.Duration
	Inactivity      time.Duration
	InactivityCheck time.Duration
	PopTimeout      time.Duration

	source popper
	queue  string
	sink   Sink
	logger *logrus.Logger

	lastActivity sync.Map // map[uuid.UUID]time.Time

	batchMu sync.Mutex
	batch   []models.GameAction

	now func() time.Time
}

// New returns a service reading queue from client.
func New(client *redis.Client, queue string, sink Sink, logger *logrus.Logger) *Service {
	return newService(client, queue, sink, logger)
}

func newService(source popper, queue string, sink Sink, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		BatchSize:       20,
		FlushDelay:      500 * time.Millisecond,
		Inactivity:      10 * time.Minute,
		InactivityCheck: time.Minute,
		PopTimeout:      3 * time.Second,
		source:          source,
		queue:           queue,
		sink:            sink,
		logger:          logger,
		now:             time.Now,
	}
}

// Run reads, flushes and checks for inactivity until ctx is done, then
// flushes whatever is left.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.flushLoop(gctx) })
	g.Go(func() error { return s.inactivityLoop(gctx) })

	s.logger.WithField("queue", s.queue).Info("historian started")
	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)
	s.logger.Info("historian stopped")
	return err
}

// readLoop uses BLPop with a timeout so that context cancellation is handled.
func (s *Service) readLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		res, err := s.source.BLPop(ctx, s.PopTimeout, s.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.logger.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		// res[0] is the queue name and res[1] the payload.
		if len(res) < 2 {
			continue
		}
		s.handle(ctx, res[1])
	}
	return nil
}

func (s *Service) handle(ctx context.Context, payload string) {
	var action models.GameAction
	if err := json.Unmarshal([]byte(payload), &action); err != nil {
		s.logger.WithError(err).Warn("invalid action record")
		return
	}

	if action.ActionType == models.ActionEndGame {
		s.lastActivity.Delete(action.GameID)
	} else {
		s.lastActivity.Store(action.GameID, s.now())
	}

	s.batchMu.Lock()
	s.batch = append(s.batch, action)
	full := len(s.batch) >= s.BatchSize
	s.batchMu.Unlock()

	if full {
		s.flush(ctx)
	}
}

func (s *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// flush writes the pending batch in one call to the sink. A failed batch
// is logged and dropped.
func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := s.batch
	s.batch = make([]models.GameAction, 0, s.BatchSize)
	s.batchMu.Unlock()

	if err := s.sink.WriteActions(ctx, pending); err != nil {
		s.logger.WithError(err).WithField("actions", len(pending)).Error("failed to flush actions")
		return
	}
	s.logger.WithField("actions", len(pending)).Debug("flushed actions")
}

func (s *Service) inactivityLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.InactivityCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.markInactive(ctx)
		}
	}
}

// markInactive abandons every game whose last action is older than
// Inactivity.
func (s *Service) markInactive(ctx context.Context) {
	now := s.now()
	s.lastActivity.Range(func(key, val interface{}) bool {
		gameID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.Inactivity {
			return true
		}
		if err := s.sink.MarkAbandoned(ctx, gameID); err != nil {
			s.logger.WithError(err).WithField("game", gameID).Error("failed to mark game abandoned")
			return true
		}
		s.logger.WithField("game", gameID).Info("marked game abandoned due to inactivity")
		s.lastActivity.Delete(gameID)
		return true
	})
}
