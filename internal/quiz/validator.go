package quiz

import (
	"strings"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

// placeholderOptions are option texts that mean the model echoed the answer
// letters instead of real content.
var placeholderOptions = map[string]struct{}{
	"a": {}, "b": {}, "c": {}, "d": {},
	"option a": {}, "option b": {}, "option c": {}, "option d": {},
}

// DefaultVaguePhrases flag prompts that reference unverifiable current events.
// Applied only to candidates without an exam tag.
var DefaultVaguePhrases = []string{
	"recently",
	"successful test",
	"which city",
	"where was it conducted",
	"हाल ही में",
	"सफल परीक्षण",
	"किस शहर",
	"कहाँ किया गया",
}

// Validator filters raw generated candidates down to well-formed records.
// It is a pure filter: malformed candidates are dropped, never reported
// individually.
type Validator struct {
	vague []string
}

func NewValidator(vaguePhrases []string) *Validator {
	if len(vaguePhrases) == 0 {
		vaguePhrases = DefaultVaguePhrases
	}
	return &Validator{vague: vaguePhrases}
}

// Validate returns the candidates that satisfy every structural rule,
// converted to immutable records. Order is preserved.
func (v *Validator) Validate(candidates []domain.Candidate) []domain.QuestionRecord {
	records := make([]domain.QuestionRecord, 0, len(candidates))
	for _, c := range candidates {
		if !v.acceptable(c) {
			continue
		}
		options := make([]string, len(c.Options))
		copy(options, c.Options)
		records = append(records, domain.QuestionRecord{
			Prompt:       strings.TrimSpace(c.Question),
			Options:      options,
			CorrectIndex: c.Answer,
			ExamTag:      strings.TrimSpace(c.Exam),
		})
	}
	return records
}

func (v *Validator) acceptable(c domain.Candidate) bool {
	prompt := strings.TrimSpace(c.Question)
	if prompt == "" {
		return false
	}
	if len(c.Options) != 4 {
		return false
	}
	for _, opt := range c.Options {
		if !meaningfulOption(opt) {
			return false
		}
	}
	if c.Answer < 0 || c.Answer > 3 {
		return false
	}
	if strings.TrimSpace(c.Exam) == "" && v.vaguePrompt(prompt) {
		return false
	}
	return true
}

func meaningfulOption(opt string) bool {
	trimmed := strings.TrimSpace(opt)
	if len([]rune(trimmed)) <= 2 {
		return false
	}
	_, reserved := placeholderOptions[strings.ToLower(trimmed)]
	return !reserved
}

func (v *Validator) vaguePrompt(prompt string) bool {
	lowered := strings.ToLower(prompt)
	for _, phrase := range v.vague {
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
