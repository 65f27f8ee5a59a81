package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/quiz"
)

// SetCache caches each chat's latest archived question set in Redis
// (quiz:set:{chatID}) and falls back to the backing bank on a miss, so a
// fleet of bot instances shares one warm copy.
type SetCache struct {
	client *redis.Client
	bank   quiz.SetBank
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewSetCache(client *redis.Client, bank quiz.SetBank, ttl time.Duration) *SetCache {
	return &SetCache{
		client: client,
		bank:   bank,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Archive writes through to the bank and drops the chat's cached copy.
func (c *SetCache) Archive(ctx context.Context, set domain.QuestionSet) error {
	if err := c.bank.Archive(ctx, set); err != nil {
		return err
	}
	_ = c.client.Del(ctx, c.key(set.ChatID)).Err()
	return nil
}

func (c *SetCache) LoadLatest(ctx context.Context, chatID int64) (domain.QuestionSet, error) {
	key := c.key(chatID)

	if set, ok := c.cached(ctx, key); ok {
		return set, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if set, ok := c.cached(ctx, key); ok {
			return set, nil
		}

		set, err := c.bank.LoadLatest(ctx, chatID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		raw, err := json.Marshal(set)
		if err != nil {
			return domain.QuestionSet{}, fmt.Errorf("marshal set: %w", err)
		}
		_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (c *SetCache) cached(ctx context.Context, key string) (domain.QuestionSet, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.QuestionSet{}, false
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return domain.QuestionSet{}, false
	}
	return set, true
}

func (c *SetCache) key(chatID int64) string {
	return "quiz:set:" + strconv.FormatInt(chatID, 10)
}

func (c *SetCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
