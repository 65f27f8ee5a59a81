package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

// StateStore persists all chat quiz states as one JSON snapshot file. Every
// SaveChat rewrites the snapshot atomically (temp file + rename), so a crash
// mid-write leaves the previous snapshot intact.
type StateStore struct {
	path string

	mu     sync.Mutex
	states map[int64]*domain.ChatState
}

func NewStateStore(path string) *StateStore {
	return &StateStore{
		path:   path,
		states: make(map[int64]*domain.ChatState),
	}
}

// Load reads the snapshot. A missing file starts empty; an unreadable or
// unparsable file is an error, and the caller must refuse to start on it.
func (s *StateStore) Load(_ context.Context) (map[int64]*domain.ChatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[int64]*domain.ChatState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	// Chat ids are JSON object keys, so they arrive as strings.
	var raw map[string]*domain.ChatState
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}

	out := make(map[int64]*domain.ChatState, len(raw))
	for key, state := range raw {
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse state file %s: bad chat id %q: %w", s.path, key, err)
		}
		out[chatID] = state
		s.states[chatID] = state.Clone()
	}
	return out, nil
}

func (s *StateStore) SaveChat(_ context.Context, chatID int64, state *domain.ChatState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[chatID] = state
	return s.flushLocked()
}

func (s *StateStore) DeleteChat(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
	return s.flushLocked()
}

func (s *StateStore) flushLocked() error {
	raw := make(map[string]*domain.ChatState, len(s.states))
	for chatID, state := range s.states {
		raw[strconv.FormatInt(chatID, 10)] = state
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
