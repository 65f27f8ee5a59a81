package gen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

// DefaultModel is served by Groq's OpenAI-compatible endpoint.
const DefaultModel = "llama-3.1-8b-instant"

// Client generates MCQ candidates from source material through an
// OpenAI-compatible chat completion API.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a generator. baseURL selects the provider (empty means
// api.openai.com); model falls back to DefaultModel.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

// GenerateCandidates asks the model for count exam-level MCQs over the given
// notes. The model may return fewer; callers treat any error as zero
// candidates.
func (c *Client) GenerateCandidates(ctx context.Context, notes string, count int) ([]domain.Candidate, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(notes, count),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	candidates, err := ExtractCandidates(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates, nil
}

func buildPrompt(notes string, count int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Create %d exam level MCQ.\n", count))
	sb.WriteString("Rules:\n")
	sb.WriteString("- 4 meaningful options\n")
	sb.WriteString("- 1 correct answer, given as the 0-based field \"answer\"\n")
	sb.WriteString("- tag the source exam in the field \"exam\" when the fact is exam-verified\n")
	sb.WriteString("- Output ONLY a JSON array of objects with fields question, options, answer, exam.\n\n")
	sb.WriteString("CONTENT:\n")
	sb.WriteString(notes)

	return sb.String()
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)

// ExtractCandidates pulls the first JSON array of objects out of a model
// response, tolerating prose or code fences around it.
func ExtractCandidates(text string) ([]domain.Candidate, error) {
	match := jsonArrayPattern.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("no JSON array in model response")
	}
	var candidates []domain.Candidate
	if err := json.Unmarshal([]byte(match), &candidates); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	return candidates, nil
}
