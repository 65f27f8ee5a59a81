package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

// topicEmojis decorates question prompts with a topic marker.
var topicEmojis = []struct {
	keyword string
	emoji   string
}{
	{"भारत", "🇮🇳"}, {"india", "🇮🇳"},
	{"नदी", "🌊"}, {"river", "🌊"},
	{"विज्ञान", "🔬"}, {"science", "🔬"},
	{"शेर", "🦁"}, {"lion", "🦁"},
}

func detectEmoji(prompt string) string {
	lowered := strings.ToLower(prompt)
	for _, entry := range topicEmojis {
		if strings.Contains(lowered, entry.keyword) {
			return entry.emoji
		}
	}
	return "❓"
}

// Sender implements quiz.PollSender on top of the Telegram Bot API.
type Sender struct {
	api *tgbotapi.BotAPI
}

func NewSender(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

// SendQuizPoll dispatches one quiz-type poll with a fixed open period and
// returns Telegram's poll identifier.
func (s *Sender) SendQuizPoll(_ context.Context, chatID int64, number, total int, prompt string, options []string, correctIndex int, open time.Duration) (string, error) {
	question := fmt.Sprintf("%s Q%d/%d. %s", detectEmoji(prompt), number, total, prompt)

	poll := tgbotapi.NewPoll(chatID, question, options...)
	poll.Type = "quiz"
	poll.CorrectOptionID = int64(correctIndex)
	poll.IsAnonymous = false
	poll.OpenPeriod = int(open.Seconds())

	msg, err := s.api.Send(poll)
	if err != nil {
		return "", fmt.Errorf("send poll: %w", err)
	}
	if msg.Poll == nil {
		return "", fmt.Errorf("send poll: response carried no poll")
	}
	return msg.Poll.ID, nil
}

func (s *Sender) SendText(_ context.Context, chatID int64, text string) error {
	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendLeaderboard posts the final scoreboard for a finished run.
func (s *Sender) SendLeaderboard(ctx context.Context, chatID int64, lb domain.Leaderboard) error {
	var sb strings.Builder
	sb.WriteString("🏆 FINAL SCORE 🏆\n\n")
	if len(lb.Entries) == 0 {
		sb.WriteString("Nobody answered this time.")
	}
	for i, entry := range lb.Entries {
		sb.WriteString(fmt.Sprintf("%s %d. %s – %d/%d\n", medal(i), i+1, entry.DisplayName, entry.Correct, lb.Total))
	}
	return s.SendText(ctx, chatID, sb.String())
}

func medal(position int) string {
	switch position {
	case 0:
		return "🥇"
	case 1:
		return "🥈"
	case 2:
		return "🥉"
	default:
		return "🔸"
	}
}
