package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/infra/memory"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/quiz"
)

func TestWatchStreamsLeaderboard(t *testing.T) {
	ctx := context.Background()

	store := memory.NewStateStore()
	state := domain.NewChatState()
	state.Stock = []domain.QuestionRecord{
		{Prompt: "2+2?", Options: []string{"three", "four", "five", "six"}, CorrectIndex: 1},
	}
	if err := store.SaveChat(ctx, 77, state); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	sender := &stubSender{}
	engine := quiz.New(
		quiz.Config{OpenWindow: time.Second, Grace: time.Second},
		store, sender, nil, nil, stubScheduler{},
	)
	if err := engine.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/watch", NewWSHandler(engine).ServeWatch)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/watch?chatId=77"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial snapshot comes first, before any scores exist.
	first := readFrame(t, conn)
	if first.Type != "leaderboard" || len(first.Payload.Entries) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", first)
	}

	// Start the run and score one correct answer; a fresh snapshot follows.
	if _, err := engine.Start(ctx, 77); err != nil {
		t.Fatalf("start: %v", err)
	}
	engine.RecordAnswer(ctx, sender.lastPollID, 5, "Alice", sender.lastCorrect)

	update := readFrame(t, conn)
	if len(update.Payload.Entries) != 1 || update.Payload.Entries[0].Correct != 1 {
		t.Fatalf("expected scored entry, got %+v", update.Payload.Entries)
	}
	if update.Payload.Entries[0].DisplayName != "Alice" {
		t.Fatalf("expected Alice, got %+v", update.Payload.Entries[0])
	}
}

func TestWatchRejectsBadChatID(t *testing.T) {
	engine := quiz.New(quiz.Config{}, memory.NewStateStore(), &stubSender{}, nil, nil, stubScheduler{})
	server := httptest.NewServer(http.HandlerFunc(NewWSHandler(engine).ServeWatch))
	defer server.Close()

	resp, err := http.Get(server.URL + "?chatId=not-a-number")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) outboundMessage {
	t.Helper()
	var msg outboundMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

type stubSender struct {
	lastPollID  string
	lastCorrect int
}

func (s *stubSender) SendQuizPoll(_ context.Context, _ int64, number, _ int, _ string, _ []string, correct int, _ time.Duration) (string, error) {
	s.lastPollID = "poll-1"
	s.lastCorrect = correct
	return s.lastPollID, nil
}

func (s *stubSender) SendText(context.Context, int64, string) error { return nil }

func (s *stubSender) SendLeaderboard(context.Context, int64, domain.Leaderboard) error { return nil }

type stubScheduler struct{}

func (stubScheduler) AfterFunc(time.Duration, func()) {}
