package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
	pgbank "github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/infra/postgres"
	pgmigrations "github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/infra/postgres/migrations"
	infraredis "github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/infra/redis"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/quiz"
)

const testChatID = int64(42)

func TestQuizRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	applyMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	bank := infraredis.NewSetCache(redisClient, pgbank.NewQuestionBank(pool), 5*time.Minute)
	if err := bank.Archive(ctx, sampleSet()); err != nil {
		t.Fatalf("archive: %v", err)
	}

	store := infraredis.NewStateStore(redisClient)
	sender := &captureSender{}
	sched := &manualScheduler{}
	engine := quiz.New(quiz.Config{OpenWindow: 20 * time.Second}, store, sender, nil, bank, sched)
	if err := engine.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	loaded, err := engine.LoadSet(ctx, testChatID)
	if err != nil {
		t.Fatalf("loadset: %v", err)
	}
	if loaded != 1 {
		t.Fatalf("expected 1 question loaded, got %d", loaded)
	}

	outcome, err := engine.Start(ctx, testChatID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if outcome != quiz.OutcomeStarted {
		t.Fatalf("expected started outcome, got %q", outcome)
	}

	pollID, correct := sender.lastPoll()
	engine.RecordAnswer(ctx, pollID, 7, "Alice", correct)
	sched.fireAll()

	lb := sender.lastLeaderboard()
	if len(lb.Entries) != 1 || lb.Entries[0].DisplayName != "Alice" || lb.Entries[0].Correct != 1 {
		t.Fatalf("unexpected final leaderboard: %+v", lb.Entries)
	}

	// A fresh engine over the same Redis store must see the retained set.
	restored := quiz.New(quiz.Config{}, store, &captureSender{}, nil, bank, &manualScheduler{})
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("second restore: %v", err)
	}
	snap, ok := restored.Snapshot(testChatID)
	if !ok {
		t.Fatalf("expected persisted chat after completion")
	}
	if len(snap.LastSet) != 1 || snap.ActiveQuiz != nil {
		t.Fatalf("expected retained set and no active quiz, got %+v", snap)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{
		ChatID: testChatID,
		Records: []domain.QuestionRecord{
			{
				Prompt:       "What is 2 + 2?",
				Options:      []string{"Three", "Four", "Five", "Twenty-two"},
				CorrectIndex: 1,
			},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

// captureSender records what the engine asks it to send.
type captureSender struct {
	mu      sync.Mutex
	pollSeq int
	pollID  string
	correct int
	lb      domain.Leaderboard
}

func (s *captureSender) SendQuizPoll(_ context.Context, _ int64, _, _ int, _ string, _ []string, correctIndex int, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollSeq++
	s.pollID = fmt.Sprintf("poll-%d", s.pollSeq)
	s.correct = correctIndex
	return s.pollID, nil
}

func (s *captureSender) SendText(context.Context, int64, string) error { return nil }

func (s *captureSender) SendLeaderboard(_ context.Context, _ int64, lb domain.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lb = lb
	return nil
}

func (s *captureSender) lastPoll() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollID, s.correct
}

func (s *captureSender) lastLeaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lb
}

// manualScheduler lets the test drive question advancement.
type manualScheduler struct {
	mu  sync.Mutex
	fns []func()
}

func (s *manualScheduler) AfterFunc(_ time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
}

func (s *manualScheduler) fireAll() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
