package quiz

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

// PollSender is the outbound transport: it delivers timed quiz polls and
// plain messages to a chat. Implemented by the telegram package.
type PollSender interface {
	// SendQuizPoll dispatches one timed single-choice poll and returns the
	// platform-assigned poll identifier.
	SendQuizPoll(ctx context.Context, chatID int64, number, total int, prompt string, options []string, correctIndex int, open time.Duration) (string, error)
	SendText(ctx context.Context, chatID int64, text string) error
	SendLeaderboard(ctx context.Context, chatID int64, lb domain.Leaderboard) error
}

// StateStore is the durable snapshot of all chat quiz states.
type StateStore interface {
	// Load reads the snapshot. A missing store yields an empty map; an
	// unparsable store is an error and the process must not start on it.
	Load(ctx context.Context) (map[int64]*domain.ChatState, error)
	SaveChat(ctx context.Context, chatID int64, state *domain.ChatState) error
	DeleteChat(ctx context.Context, chatID int64) error
}

// Generator produces raw question candidates from source material. It may
// return fewer than requested; any failure is treated as zero candidates.
type Generator interface {
	GenerateCandidates(ctx context.Context, notes string, count int) ([]domain.Candidate, error)
}

// SetBank archives validated question batches for later reuse. All bank
// access is best-effort; the quiz flow never depends on it.
type SetBank interface {
	Archive(ctx context.Context, set domain.QuestionSet) error
	LoadLatest(ctx context.Context, chatID int64) (domain.QuestionSet, error)
}

// CompletionPolicy decides what happens to a chat's record when a run ends.
type CompletionPolicy string

const (
	// PolicyRetain keeps the completed set for immediate reuse on the next start.
	PolicyRetain CompletionPolicy = "retain"
	// PolicyReset clears the quiz fields in place, keeping the chat record.
	PolicyReset CompletionPolicy = "reset"
	// PolicyEvict drops the whole chat record.
	PolicyEvict CompletionPolicy = "evict"
)

// SessionState is the observable lifecycle position of a chat's quiz.
type SessionState string

const (
	StateIdle           SessionState = "idle"
	StateAwaitingResume SessionState = "awaiting-resume"
	StateInProgress     SessionState = "in-progress"
)

// StartOutcome reports what a start request did.
type StartOutcome string

const (
	// OutcomeStarted means the first (or next) question was dispatched.
	OutcomeStarted StartOutcome = "started"
	// OutcomeResumePrompt means an unfinished run exists and the
	// administrator must choose resume or restart first.
	OutcomeResumePrompt StartOutcome = "resume-prompt"
)

// Resume choices recognized by ResumeChoice; anything else is ignored.
const (
	ChoiceResume  = "1"
	ChoiceRestart = "2"
)

// Config carries the engine's tunables.
type Config struct {
	// OpenWindow is how long each poll accepts answers.
	OpenWindow time.Duration
	// Grace is added to OpenWindow before the advance timer fires.
	Grace time.Duration
	// Policy is applied when a run completes.
	Policy CompletionPolicy
	// VaguePhrases overrides the validator's unverifiable-prompt list.
	VaguePhrases []string
}

func (c *Config) applyDefaults() {
	if c.OpenWindow <= 0 {
		c.OpenWindow = 20 * time.Second
	}
	if c.Grace <= 0 {
		c.Grace = time.Second
	}
	if c.Policy == "" {
		c.Policy = PolicyRetain
	}
}

// Engine is the per-chat quiz state machine: it owns all chat states, routes
// poll answers, schedules question advancement and aggregates scores.
// Operations on different chats never block each other; operations on the
// same chat are serialized by that chat's lock.
type Engine struct {
	cfg      Config
	store    StateStore
	sender   PollSender
	gen      Generator
	bank     SetBank
	sched    Scheduler
	validate *Validator
	shuffle  *Shuffler
	now      func() time.Time

	mu        sync.RWMutex
	chats     map[int64]*chatSession
	pollIndex map[string]int64
}

// chatSession pairs the durable state with the live-only bookkeeping for one
// chat: per-poll answered sets and leaderboard subscribers.
type chatSession struct {
	mu       sync.Mutex
	state    *domain.ChatState
	answered map[string]map[int64]struct{}
	subs     map[chan domain.Leaderboard]struct{}
	// epoch increments whenever in-flight polls are invalidated; a reveal
	// timer armed under an older epoch is abandoned when it fires.
	epoch uint64
}

func New(cfg Config, store StateStore, sender PollSender, gen Generator, bank SetBank, sched Scheduler) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:       cfg,
		store:     store,
		sender:    sender,
		gen:       gen,
		bank:      bank,
		sched:     sched,
		validate:  NewValidator(cfg.VaguePhrases),
		shuffle:   NewShuffler(),
		now:       time.Now,
		chats:     make(map[int64]*chatSession),
		pollIndex: make(map[string]int64),
	}
}

// Restore merges the persisted snapshot into memory. States already created
// in this run win. In-flight poll mappings are dropped: their timers died
// with the previous process, so an unfinished run simply becomes
// resume-eligible.
func (e *Engine) Restore(ctx context.Context) error {
	stored, err := e.store.Load(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for chatID, state := range stored {
		if _, ok := e.chats[chatID]; ok {
			continue
		}
		normalizeState(state)
		state.PollCorrect = make(map[string]int)
		e.chats[chatID] = newChatSession(state)
	}
	log.Printf("restored %d chat state(s)", len(stored))
	return nil
}

func newChatSession(state *domain.ChatState) *chatSession {
	return &chatSession{
		state:    state,
		answered: make(map[string]map[int64]struct{}),
		subs:     make(map[chan domain.Leaderboard]struct{}),
	}
}

func normalizeState(state *domain.ChatState) {
	if state.PollCorrect == nil {
		state.PollCorrect = make(map[string]int)
	}
	if state.Scores == nil {
		state.Scores = make(map[int64]*domain.Score)
	}
}

// session returns the chat's session, creating a default one on first
// reference.
func (e *Engine) session(chatID int64) *chatSession {
	e.mu.RLock()
	cs, ok := e.chats[chatID]
	e.mu.RUnlock()
	if ok {
		return cs
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cs, ok := e.chats[chatID]; ok {
		return cs
	}
	cs = newChatSession(domain.NewChatState())
	e.chats[chatID] = cs
	return cs
}

func (e *Engine) peek(chatID int64) (*chatSession, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cs, ok := e.chats[chatID]
	return cs, ok
}

// AddNotes appends source material to the chat's notes buffer.
func (e *Engine) AddNotes(ctx context.Context, chatID int64, text string) error {
	cs := e.session(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.state.Notes += "\n" + text
	return e.persistLocked(ctx, chatID, cs)
}

// Generate asks the generator for count candidates from the chat's notes,
// validates them and appends survivors to the stock. A generator failure
// counts as zero candidates. Returns survivors added and resulting stock size.
func (e *Engine) Generate(ctx context.Context, chatID int64, count int) (int, int, error) {
	cs := e.session(chatID)

	cs.mu.Lock()
	notes := cs.state.Notes
	cs.mu.Unlock()
	if strings.TrimSpace(notes) == "" {
		return 0, 0, domain.ErrNoNotes
	}

	// Generation runs outside the chat lock: it is slow and must not block
	// answer recording for an active quiz in the same chat.
	candidates, err := e.gen.GenerateCandidates(ctx, notes, count)
	if err != nil {
		log.Printf("chat %d: generation failed, treating as zero candidates: %v", chatID, err)
		candidates = nil
	}
	records := e.validate.Validate(candidates)

	cs.mu.Lock()
	cs.state.Stock = append(cs.state.Stock, records...)
	if e.cfg.Policy == PolicyRetain {
		cs.state.LastSet = cloneRecords(cs.state.Stock)
	}
	total := len(cs.state.Stock)
	if err := e.persistLocked(ctx, chatID, cs); err != nil {
		log.Printf("chat %d: persist after generate: %v", chatID, err)
	}
	cs.mu.Unlock()

	if e.bank != nil && len(records) > 0 {
		e.archive(ctx, chatID, records)
	}
	return len(records), total, nil
}

func (e *Engine) archive(ctx context.Context, chatID int64, records []domain.QuestionRecord) {
	set := domain.QuestionSet{
		ChatID:    chatID,
		Records:   records,
		CreatedAt: e.now(),
	}
	if err := e.bank.Archive(ctx, set); err != nil {
		log.Printf("chat %d: question bank archive failed: %v", chatID, err)
	}
}

// LoadSet refills the chat's stock from the most recent archived set.
func (e *Engine) LoadSet(ctx context.Context, chatID int64) (int, error) {
	if e.bank == nil {
		return 0, domain.ErrSetNotFound
	}
	set, err := e.bank.LoadLatest(ctx, chatID)
	if err != nil {
		return 0, err
	}

	cs := e.session(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.state.Stock = append(cs.state.Stock, cloneRecords(set.Records)...)
	if err := e.persistLocked(ctx, chatID, cs); err != nil {
		log.Printf("chat %d: persist after loadset: %v", chatID, err)
	}
	return len(set.Records), nil
}

// Start begins a quiz run. With an unfinished run present it surfaces the
// resume-or-restart choice instead of silently continuing or discarding.
// Fresh stock takes precedence over a retained set; with neither available
// it fails with ErrNoMaterial and no state change.
func (e *Engine) Start(ctx context.Context, chatID int64) (StartOutcome, error) {
	cs := e.session(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	state := cs.state
	if state.ResumePending {
		return OutcomeResumePrompt, nil
	}
	if len(state.ActiveQuiz) > 0 && state.Cursor < len(state.ActiveQuiz) {
		state.ResumePending = true
		if err := e.persistLocked(ctx, chatID, cs); err != nil {
			log.Printf("chat %d: persist resume flag: %v", chatID, err)
		}
		return OutcomeResumePrompt, nil
	}

	switch {
	case len(state.Stock) > 0:
		state.ActiveQuiz = state.Stock
		state.Stock = nil
	case e.cfg.Policy == PolicyRetain && len(state.LastSet) > 0:
		state.ActiveQuiz = cloneRecords(state.LastSet)
	default:
		return "", domain.ErrNoMaterial
	}
	if e.cfg.Policy == PolicyRetain {
		state.LastSet = cloneRecords(state.ActiveQuiz)
	}

	state.Cursor = 0
	state.Scores = make(map[int64]*domain.Score)
	e.closePollsLocked(cs)

	if err := e.dispatchLocked(ctx, chatID, cs); err != nil {
		return "", err
	}
	return OutcomeStarted, nil
}

// ResumeChoice applies the administrator's resume-or-restart decision. It
// reports whether the input was consumed by a pending decision; unrecognized
// input while pending is consumed but changes nothing.
func (e *Engine) ResumeChoice(ctx context.Context, chatID int64, choice string) (bool, error) {
	cs, ok := e.peek(chatID)
	if !ok {
		return false, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	state := cs.state
	if !state.ResumePending {
		return false, nil
	}

	switch strings.TrimSpace(choice) {
	case ChoiceResume:
		// Cursor and scores stay untouched.
	case ChoiceRestart:
		state.Cursor = 0
		state.Scores = make(map[int64]*domain.Score)
		e.closePollsLocked(cs)
	default:
		return true, nil
	}

	state.ResumePending = false
	if err := e.persistLocked(ctx, chatID, cs); err != nil {
		log.Printf("chat %d: persist resume choice: %v", chatID, err)
	}
	return true, e.dispatchLocked(ctx, chatID, cs)
}

// dispatchLocked sends the question under the cursor, or finishes the run
// when the cursor has passed the end. The cursor advances and the reveal
// timer is armed only after a successful send and persist, so a failed send
// never skips a question.
func (e *Engine) dispatchLocked(ctx context.Context, chatID int64, cs *chatSession) error {
	state := cs.state
	if state.Cursor >= len(state.ActiveQuiz) {
		e.finishLocked(ctx, chatID, cs)
		return nil
	}

	rec := state.ActiveQuiz[state.Cursor]
	options, correct := e.shuffle.Present(rec)
	pollID, err := e.sender.SendQuizPoll(ctx, chatID, state.Cursor+1, len(state.ActiveQuiz), rec.Prompt, options, correct, e.cfg.OpenWindow)
	if err != nil {
		log.Printf("chat %d: poll send failed, cursor stays at %d: %v", chatID, state.Cursor, err)
		return err
	}

	state.PollCorrect[pollID] = correct
	cs.answered[pollID] = make(map[int64]struct{})
	state.Cursor++

	e.mu.Lock()
	e.pollIndex[pollID] = chatID
	e.mu.Unlock()

	if err := e.persistLocked(ctx, chatID, cs); err != nil {
		log.Printf("chat %d: persist after dispatch: %v", chatID, err)
	}

	epoch := cs.epoch
	e.sched.AfterFunc(e.cfg.OpenWindow+e.cfg.Grace, func() {
		e.advance(chatID, epoch)
	})
	return nil
}

// advance is the reveal-timer callback: it closes the open poll and either
// dispatches the next question or completes the run. Timers armed before a
// restart or reset invalidated their poll are abandoned here.
func (e *Engine) advance(chatID int64, epoch uint64) {
	cs, ok := e.peek(chatID)
	if !ok {
		return
	}
	ctx := context.Background()

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if epoch != cs.epoch {
		return
	}
	e.closePollsLocked(cs)
	if len(cs.state.ActiveQuiz) == 0 {
		return
	}
	if err := e.dispatchLocked(ctx, chatID, cs); err != nil {
		log.Printf("chat %d: advance dispatch: %v", chatID, err)
	}
}

// closePollsLocked invalidates every in-flight poll for the chat: late
// answers to them are silently dropped from here on.
func (e *Engine) closePollsLocked(cs *chatSession) {
	if len(cs.state.PollCorrect) == 0 {
		return
	}
	e.mu.Lock()
	for pollID := range cs.state.PollCorrect {
		delete(e.pollIndex, pollID)
	}
	e.mu.Unlock()
	cs.state.PollCorrect = make(map[string]int)
	cs.answered = make(map[string]map[int64]struct{})
	cs.epoch++
}

// RecordAnswer folds one poll answer into the chat's scores. Unknown or
// closed polls and repeated answers from the same participant are dropped
// without any feedback.
func (e *Engine) RecordAnswer(ctx context.Context, pollID string, userID int64, displayName string, chosen int) {
	e.mu.RLock()
	chatID, ok := e.pollIndex[pollID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	cs, ok := e.peek(chatID)
	if !ok {
		return
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	correct, ok := cs.state.PollCorrect[pollID]
	if !ok {
		return
	}
	seen := cs.answered[pollID]
	if seen == nil {
		seen = make(map[int64]struct{})
		cs.answered[pollID] = seen
	}
	if _, dup := seen[userID]; dup {
		return
	}
	seen[userID] = struct{}{}

	score, ok := cs.state.Scores[userID]
	if !ok {
		score = &domain.Score{Name: displayName, Seq: len(cs.state.Scores)}
		cs.state.Scores[userID] = score
	}
	if chosen == correct {
		score.Correct++
	}

	if err := e.persistLocked(ctx, chatID, cs); err != nil {
		log.Printf("chat %d: persist after answer: %v", chatID, err)
	}
	e.broadcastLocked(chatID, cs)
}

// finishLocked emits the leaderboard and applies the completion policy.
func (e *Engine) finishLocked(ctx context.Context, chatID int64, cs *chatSession) {
	lb := e.leaderboardLocked(chatID, cs)
	if err := e.sender.SendLeaderboard(ctx, chatID, lb); err != nil {
		log.Printf("chat %d: leaderboard send failed: %v", chatID, err)
	}
	e.publishLocked(cs, lb)

	state := cs.state
	e.closePollsLocked(cs)
	state.Cursor = 0
	state.Scores = make(map[int64]*domain.Score)
	state.ResumePending = false

	switch e.cfg.Policy {
	case PolicyEvict:
		e.mu.Lock()
		delete(e.chats, chatID)
		e.mu.Unlock()
		if err := e.store.DeleteChat(ctx, chatID); err != nil {
			log.Printf("chat %d: evict: %v", chatID, err)
		}
		return
	case PolicyRetain:
		state.LastSet = state.ActiveQuiz
		state.ActiveQuiz = nil
	default: // PolicyReset
		state.ActiveQuiz = nil
		state.LastSet = nil
	}
	if err := e.persistLocked(ctx, chatID, cs); err != nil {
		log.Printf("chat %d: persist after completion: %v", chatID, err)
	}
}

func (e *Engine) persistLocked(ctx context.Context, chatID int64, cs *chatSession) error {
	return e.store.SaveChat(ctx, chatID, cs.state.Clone())
}

// Leaderboard returns the current standings for a chat.
func (e *Engine) Leaderboard(chatID int64) (domain.Leaderboard, bool) {
	cs, ok := e.peek(chatID)
	if !ok {
		return domain.Leaderboard{}, false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return e.leaderboardLocked(chatID, cs), true
}

// leaderboardLocked ranks by correct count descending; ties keep the order
// in which participants first scored.
func (e *Engine) leaderboardLocked(chatID int64, cs *chatSession) domain.Leaderboard {
	state := cs.state
	entries := make([]domain.LeaderboardEntry, 0, len(state.Scores))
	seqs := make(map[int64]int, len(state.Scores))
	for userID, score := range state.Scores {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      userID,
			DisplayName: score.Name,
			Correct:     score.Correct,
		})
		seqs[userID] = score.Seq
	}
	sort.Slice(entries, func(i, j int) bool {
		return seqs[entries[i].UserID] < seqs[entries[j].UserID]
	})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Correct > entries[j].Correct
	})

	return domain.Leaderboard{
		ChatID:    chatID,
		Total:     len(state.ActiveQuiz),
		Entries:   entries,
		UpdatedAt: e.now(),
	}
}

// State reports the chat's lifecycle position. Completion is transient, so
// a finished chat reads as idle again.
func (e *Engine) State(chatID int64) SessionState {
	cs, ok := e.peek(chatID)
	if !ok {
		return StateIdle
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	switch {
	case cs.state.ResumePending:
		return StateAwaitingResume
	case len(cs.state.ActiveQuiz) > 0 && cs.state.Cursor < len(cs.state.ActiveQuiz):
		return StateInProgress
	default:
		return StateIdle
	}
}

// Snapshot returns a copy of the chat's state for status reporting and tests.
func (e *Engine) Snapshot(chatID int64) (domain.ChatState, bool) {
	cs, ok := e.peek(chatID)
	if !ok {
		return domain.ChatState{}, false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return *cs.state.Clone(), true
}

// Watch subscribes to leaderboard updates for a chat. The caller must invoke
// the returned cancel function to avoid leaks.
func (e *Engine) Watch(chatID int64) (<-chan domain.Leaderboard, func()) {
	cs := e.session(chatID)
	ch := make(chan domain.Leaderboard, 8)

	cs.mu.Lock()
	cs.subs[ch] = struct{}{}
	initial := e.leaderboardLocked(chatID, cs)
	cs.mu.Unlock()

	ch <- initial

	cancel := func() {
		cs.mu.Lock()
		if _, ok := cs.subs[ch]; ok {
			delete(cs.subs, ch)
			close(ch)
		}
		cs.mu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) broadcastLocked(chatID int64, cs *chatSession) {
	if len(cs.subs) == 0 {
		return
	}
	e.publishLocked(cs, e.leaderboardLocked(chatID, cs))
}

// publishLocked fans a snapshot out to subscribers, dropping the oldest
// buffered update when a slow client falls behind.
func (e *Engine) publishLocked(cs *chatSession, lb domain.Leaderboard) {
	for ch := range cs.subs {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

func cloneRecords(records []domain.QuestionRecord) []domain.QuestionRecord {
	if records == nil {
		return nil
	}
	out := make([]domain.QuestionRecord, len(records))
	copy(out, records)
	return out
}
