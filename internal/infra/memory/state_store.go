package memory

import (
	"context"
	"sync"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

// StateStore is an in-memory implementation of quiz.StateStore, used in
// tests and when no durable backend is configured.
type StateStore struct {
	mu     sync.RWMutex
	states map[int64]*domain.ChatState
}

func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[int64]*domain.ChatState),
	}
}

func (s *StateStore) Load(_ context.Context) (map[int64]*domain.ChatState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]*domain.ChatState, len(s.states))
	for chatID, state := range s.states {
		out[chatID] = state.Clone()
	}
	return out, nil
}

func (s *StateStore) SaveChat(_ context.Context, chatID int64, state *domain.ChatState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[chatID] = state
	return nil
}

func (s *StateStore) DeleteChat(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
	return nil
}
