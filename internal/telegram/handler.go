package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/quiz"
)

// Handler drives the Telegram update loop and routes administrator commands
// and poll answers into the quiz engine. Every mutating command is gated on
// the configured owner list.
type Handler struct {
	api    *tgbotapi.BotAPI
	engine *quiz.Engine
	owners map[int64]struct{}
}

func NewHandler(api *tgbotapi.BotAPI, engine *quiz.Engine, ownerIDs []int64) *Handler {
	owners := make(map[int64]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}
	return &Handler{api: api, engine: engine, owners: owners}
}

// Run consumes updates until ctx is canceled.
func (h *Handler) Run(ctx context.Context) error {
	log.Printf("authorized on account %s", h.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := h.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			h.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			h.handleUpdate(ctx, update)
		}
	}
}

func (h *Handler) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.PollAnswer != nil {
		h.handlePollAnswer(ctx, update.PollAnswer)
		return
	}
	if update.Message == nil {
		return
	}

	msg := update.Message
	switch msg.Command() {
	case "makequiz":
		h.handleMakeQuiz(ctx, msg)
	case "startquiz":
		h.handleStartQuiz(ctx, msg)
	case "loadset":
		h.handleLoadSet(ctx, msg)
	case "results":
		h.handleResults(ctx, msg)
	case "":
		h.handleText(ctx, msg)
	default:
		h.reply(msg.Chat.ID, "Unknown command")
	}
}

func (h *Handler) isOwner(user *tgbotapi.User) bool {
	if user == nil {
		return false
	}
	_, ok := h.owners[user.ID]
	return ok
}

// handleText routes plain text: a pending resume decision consumes it,
// otherwise an owner's text is appended to the chat's source material.
func (h *Handler) handleText(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From) {
		return
	}
	chatID := msg.Chat.ID

	handled, err := h.engine.ResumeChoice(ctx, chatID, msg.Text)
	if err != nil {
		log.Printf("chat %d: resume choice: %v", chatID, err)
		return
	}
	if handled {
		return
	}

	if err := h.engine.AddNotes(ctx, chatID, msg.Text); err != nil {
		log.Printf("chat %d: add notes: %v", chatID, err)
		return
	}
	h.reply(chatID, "✅ Notes added")
}

func (h *Handler) handleMakeQuiz(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From) {
		return
	}
	chatID := msg.Chat.ID

	count, err := strconv.Atoi(msg.CommandArguments())
	if err != nil || count <= 0 {
		h.reply(chatID, "Use /makequiz 5")
		return
	}

	added, total, err := h.engine.Generate(ctx, chatID, count)
	if errors.Is(err, domain.ErrNoNotes) {
		h.reply(chatID, "❌ Upload some notes first")
		return
	}
	if err != nil {
		log.Printf("chat %d: generate: %v", chatID, err)
		h.reply(chatID, "✅ 0 questions added")
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ %d questions added | Total stock: %d", added, total))
}

func (h *Handler) handleStartQuiz(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From) {
		return
	}
	chatID := msg.Chat.ID

	outcome, err := h.engine.Start(ctx, chatID)
	if errors.Is(err, domain.ErrNoMaterial) {
		h.reply(chatID, "❌ No question set available")
		return
	}
	if err != nil {
		log.Printf("chat %d: start: %v", chatID, err)
		h.reply(chatID, "❌ Could not start the quiz, try again")
		return
	}
	if outcome == quiz.OutcomeResumePrompt {
		h.reply(chatID, "⚠️ Previous quiz is unfinished\n1️⃣ Resume\n2️⃣ Restart\nReply 1 or 2")
	}
}

func (h *Handler) handleLoadSet(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isOwner(msg.From) {
		return
	}
	chatID := msg.Chat.ID

	loaded, err := h.engine.LoadSet(ctx, chatID)
	if errors.Is(err, domain.ErrSetNotFound) {
		h.reply(chatID, "❌ No archived set for this chat")
		return
	}
	if err != nil {
		log.Printf("chat %d: loadset: %v", chatID, err)
		h.reply(chatID, "❌ Question bank is unavailable")
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ %d questions loaded from the bank", loaded))
}

func (h *Handler) handleResults(_ context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	lb, ok := h.engine.Leaderboard(chatID)
	if !ok || len(lb.Entries) == 0 {
		h.reply(chatID, "No scores yet")
		return
	}
	sender := NewSender(h.api)
	if err := sender.SendLeaderboard(context.Background(), chatID, lb); err != nil {
		log.Printf("chat %d: results: %v", chatID, err)
	}
}

func (h *Handler) handlePollAnswer(ctx context.Context, answer *tgbotapi.PollAnswer) {
	// A retracted vote arrives with no options chosen.
	if len(answer.OptionIDs) == 0 {
		return
	}
	h.engine.RecordAnswer(ctx, answer.PollID, answer.User.ID, answer.User.FirstName, answer.OptionIDs[0])
}

func (h *Handler) reply(chatID int64, text string) {
	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("chat %d: send reply: %v", chatID, err)
	}
}
