package quiz

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

// Shuffler randomizes displayed option order per dispatch and reports where
// the correct option landed. A fresh permutation is drawn on every call, so
// resending the same record shows a different order.
type Shuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewShuffler() *Shuffler {
	return &Shuffler{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Present returns a uniformly random permutation of the record's options and
// the displayed index of the canonical correct option.
func (s *Shuffler) Present(rec domain.QuestionRecord) ([]string, int) {
	s.mu.Lock()
	order := s.rnd.Perm(len(rec.Options))
	s.mu.Unlock()

	displayed := make([]string, len(rec.Options))
	correct := 0
	for pos, original := range order {
		displayed[pos] = rec.Options[original]
		if original == rec.CorrectIndex {
			correct = pos
		}
	}
	return displayed, correct
}
