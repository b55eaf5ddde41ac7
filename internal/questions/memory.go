// internal/questions/memory.go
package questions

import (
	"context"
	"math/rand"
	"sync"
)

// MemoryStore keeps the question bank in memory. Used by tests and when no
// database is configured.
type MemoryStore struct {
	mu        sync.Mutex
	questions []Question
	nextID    int64
	history   map[int]map[int64]bool
}

// NewMemoryStore returns a store seeded with the given questions.
func NewMemoryStore(seed ...Question) *MemoryStore {
	s := &MemoryStore{history: make(map[int]map[int64]bool)}
	for _, q := range seed {
		s.insert(q)
	}
	return s
}

func (s *MemoryStore) insert(q Question) int64 {
	s.nextID++
	q.ID = s.nextID
	q.Answers = append([]string(nil), q.Answers...)
	s.questions = append(s.questions, q)
	return q.ID
}

func (s *MemoryStore) RandomQuestions(ctx context.Context, lobbyID, n int) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.history[lobbyID]
	if seen == nil {
		seen = make(map[int64]bool)
		s.history[lobbyID] = seen
	}

	var fresh []Question
	for _, q := range s.questions {
		if !seen[q.ID] {
			fresh = append(fresh, q)
		}
	}
	rand.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
	if len(fresh) > n {
		fresh = fresh[:n]
	}
	for _, q := range fresh {
		seen[q.ID] = true
	}
	return fresh, nil
}

func (s *MemoryStore) WipeLobbyHistory(ctx context.Context, lobbyID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seen, ok := s.history[lobbyID]; ok {
		clear(seen)
	}
	return nil
}

func (s *MemoryStore) DestroyLobbyHistory(ctx context.Context, lobbyID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, lobbyID)
	return nil
}

func (s *MemoryStore) InsertQuestion(ctx context.Context, q Question) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(q), nil
}

func (s *MemoryStore) Close() error { return nil }
