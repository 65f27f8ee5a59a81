package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

func TestSetCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bank := &countingBank{}
	cache := NewSetCache(client, bank, time.Minute)
	ctx := context.Background()

	first, err := cache.LoadLatest(ctx, 9)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if bank.loads != 1 {
		t.Fatalf("expected bank hit once, got %d", bank.loads)
	}
	if !mr.Exists("quiz:set:9") {
		t.Fatalf("expected cached set in redis")
	}

	// Second call should come from the cache.
	second, err := cache.LoadLatest(ctx, 9)
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if bank.loads != 1 {
		t.Fatalf("expected cache hit, bank loads %d", bank.loads)
	}
	if second.ID != first.ID || len(second.Records) != len(first.Records) {
		t.Fatalf("cached copy differs: %+v vs %+v", second, first)
	}
}

func TestSetCacheArchiveDropsCachedCopy(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bank := &countingBank{}
	cache := NewSetCache(client, bank, time.Minute)
	ctx := context.Background()

	if _, err := cache.LoadLatest(ctx, 9); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cache.Archive(ctx, domain.QuestionSet{ChatID: 9}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if mr.Exists("quiz:set:9") {
		t.Fatalf("expected cached set invalidated")
	}
}

type countingBank struct {
	loads int
}

func (b *countingBank) Archive(context.Context, domain.QuestionSet) error {
	return nil
}

func (b *countingBank) LoadLatest(_ context.Context, chatID int64) (domain.QuestionSet, error) {
	b.loads++
	return domain.QuestionSet{
		ID:     "set-1",
		ChatID: chatID,
		Records: []domain.QuestionRecord{
			{Prompt: "2+2?", Options: []string{"three", "four", "five", "six"}, CorrectIndex: 1},
		},
	}, nil
}
