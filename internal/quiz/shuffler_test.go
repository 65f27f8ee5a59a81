package quiz

import (
	"testing"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

func TestPresentKeepsCorrectOptionTracked(t *testing.T) {
	rec := domain.QuestionRecord{
		Prompt:       "Pick the even number",
		Options:      []string{"one", "two", "three", "five"},
		CorrectIndex: 1,
	}

	s := NewShuffler()
	for i := 0; i < 50; i++ {
		displayed, correct := s.Present(rec)
		if len(displayed) != 4 {
			t.Fatalf("expected 4 options, got %d", len(displayed))
		}
		if correct < 0 || correct > 3 {
			t.Fatalf("correct index out of range: %d", correct)
		}
		if displayed[correct] != "two" {
			t.Fatalf("correct index %d points at %q", correct, displayed[correct])
		}
	}
}

func TestPresentIsAPermutation(t *testing.T) {
	rec := domain.QuestionRecord{
		Options:      []string{"a1", "b2", "c3", "d4"},
		CorrectIndex: 2,
	}

	s := NewShuffler()
	displayed, _ := s.Present(rec)
	seen := make(map[string]int)
	for _, opt := range displayed {
		seen[opt]++
	}
	for _, opt := range rec.Options {
		if seen[opt] != 1 {
			t.Fatalf("option %q appears %d times in %v", opt, seen[opt], displayed)
		}
	}
}

func TestPresentDoesNotMutateRecord(t *testing.T) {
	rec := domain.QuestionRecord{
		Options:      []string{"alpha", "beta", "gamma", "delta"},
		CorrectIndex: 0,
	}

	s := NewShuffler()
	for i := 0; i < 20; i++ {
		s.Present(rec)
	}
	if rec.Options[0] != "alpha" || rec.CorrectIndex != 0 {
		t.Fatalf("record mutated: %+v", rec)
	}
}
