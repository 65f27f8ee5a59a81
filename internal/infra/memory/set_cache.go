package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/quiz"
)

// SetCache fronts a question bank with a TTL cache so repeated /loadset
// requests do not hammer the backing store.
type SetCache struct {
	bank  quiz.SetBank
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewSetCache(bank quiz.SetBank, ttl time.Duration) *SetCache {
	return &SetCache{
		bank:  bank,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[int64]cachedSet),
	}
}

// Archive writes through to the bank and invalidates the chat's cached set.
func (c *SetCache) Archive(ctx context.Context, set domain.QuestionSet) error {
	if err := c.bank.Archive(ctx, set); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.cache, set.ChatID)
	c.mu.Unlock()
	return nil
}

func (c *SetCache) LoadLatest(ctx context.Context, chatID int64) (domain.QuestionSet, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[chatID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.set, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(strconv.FormatInt(chatID, 10), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[chatID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.set, nil
		}
		c.mu.RUnlock()

		set, err := c.bank.LoadLatest(ctx, chatID)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		c.mu.Lock()
		c.cache[chatID] = cachedSet{
			set:       set,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (c *SetCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
