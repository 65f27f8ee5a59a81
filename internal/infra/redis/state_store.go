package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

const chatKeyPrefix = "quiz:chat:"

// StateStore is a Redis implementation of quiz.StateStore: one JSON value
// per chat under quiz:chat:{id}. Unlike the file store there is no single
// snapshot write, so concurrent chats persist without contending.
type StateStore struct {
	client *redis.Client
}

func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{client: client}
}

// Load scans all chat keys. An unparsable value is an error: the process
// must not start on a corrupt store.
func (s *StateStore) Load(ctx context.Context) (map[int64]*domain.ChatState, error) {
	out := make(map[int64]*domain.ChatState)

	iter := s.client.Scan(ctx, 0, chatKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		chatID, err := strconv.ParseInt(strings.TrimPrefix(key, chatKeyPrefix), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chat key %q: %w", key, err)
		}
		raw, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		state := &domain.ChatState{}
		if err := json.Unmarshal(raw, state); err != nil {
			return nil, fmt.Errorf("parse %s: %w", key, err)
		}
		out[chatID] = state
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan chat states: %w", err)
	}
	return out, nil
}

func (s *StateStore) SaveChat(ctx context.Context, chatID int64, state *domain.ChatState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal chat %d: %w", chatID, err)
	}
	if err := s.client.Set(ctx, s.key(chatID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save chat %d: %w", chatID, err)
	}
	return nil
}

func (s *StateStore) DeleteChat(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, s.key(chatID)).Err(); err != nil {
		return fmt.Errorf("delete chat %d: %w", chatID, err)
	}
	return nil
}

func (s *StateStore) key(chatID int64) string {
	return chatKeyPrefix + strconv.FormatInt(chatID, 10)
}
