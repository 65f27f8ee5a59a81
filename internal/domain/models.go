package domain

import "time"

// Candidate is a loosely-typed question produced by the generator before
// validation. Field names follow the JSON the model is prompted to emit.
type Candidate struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
	Exam     string   `json:"exam,omitempty"`
}

// QuestionRecord is a validated MCQ: exactly four meaningful options and a
// canonical correct index in [0,3]. Immutable once it leaves the validator.
type QuestionRecord struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	ExamTag      string   `json:"examTag,omitempty"`
}

// Score tracks one participant's progress within a single quiz run.
// Seq is the arrival order of the first recorded answer; the leaderboard
// uses it to keep ties stable.
type Score struct {
	Name    string `json:"name"`
	Correct int    `json:"correct"`
	Seq     int    `json:"seq"`
}

// ChatState is the per-chat quiz record, the unit of persistence. One
// instance exists per chat; the engine serializes all access to it.
type ChatState struct {
	Notes         string           `json:"notes"`
	Stock         []QuestionRecord `json:"stock"`
	ActiveQuiz    []QuestionRecord `json:"activeQuiz"`
	LastSet       []QuestionRecord `json:"lastSet,omitempty"`
	Cursor        int              `json:"cursor"`
	PollCorrect   map[string]int   `json:"pollCorrect"`
	Scores        map[int64]*Score `json:"scores"`
	ResumePending bool             `json:"resumePending"`
}

// NewChatState returns a zeroed state with maps allocated.
func NewChatState() *ChatState {
	return &ChatState{
		PollCorrect: make(map[string]int),
		Scores:      make(map[int64]*Score),
	}
}

// Clone deep-copies the state so callers can hand it to a store or a reader
// without racing subsequent mutations.
func (s *ChatState) Clone() *ChatState {
	out := &ChatState{
		Notes:         s.Notes,
		Stock:         append([]QuestionRecord(nil), s.Stock...),
		ActiveQuiz:    append([]QuestionRecord(nil), s.ActiveQuiz...),
		LastSet:       append([]QuestionRecord(nil), s.LastSet...),
		Cursor:        s.Cursor,
		PollCorrect:   make(map[string]int, len(s.PollCorrect)),
		Scores:        make(map[int64]*Score, len(s.Scores)),
		ResumePending: s.ResumePending,
	}
	for pollID, idx := range s.PollCorrect {
		out.PollCorrect[pollID] = idx
	}
	for userID, score := range s.Scores {
		copied := *score
		out.Scores[userID] = &copied
	}
	return out
}

// LeaderboardEntry is a snapshot-friendly view of a participant's score.
type LeaderboardEntry struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	Correct     int    `json:"correct"`
}

// Leaderboard captures the ordered scoreboard for one chat's quiz run.
type Leaderboard struct {
	ChatID    int64              `json:"chatId"`
	Total     int                `json:"total"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// QuestionSet is an archived batch of validated questions kept in the
// question bank for later reuse.
type QuestionSet struct {
	ID        string           `json:"id"`
	ChatID    int64            `json:"chatId"`
	Records   []QuestionRecord `json:"records"`
	CreatedAt time.Time        `json:"createdAt"`
}
