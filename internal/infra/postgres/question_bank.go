package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/rajanpuja87-glitch/telegram-quiz-bot/internal/domain"
)

// QuestionBank archives validated question sets as JSONB rows in Postgres.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

func (b *QuestionBank) Archive(ctx context.Context, set domain.QuestionSet) error {
	if set.ID == "" {
		set.ID = uuid.NewString()
	}
	data, err := json.Marshal(set.Records)
	if err != nil {
		return fmt.Errorf("marshal question set: %w", err)
	}
	_, err = b.pool.Exec(ctx,
		`INSERT INTO question_sets (id, chat_id, data, created_at) VALUES ($1, $2, $3, $4)`,
		set.ID, set.ChatID, data, set.CreatedAt)
	if err != nil {
		return fmt.Errorf("archive question set: %w", err)
	}
	return nil
}

func (b *QuestionBank) LoadLatest(ctx context.Context, chatID int64) (domain.QuestionSet, error) {
	set := domain.QuestionSet{ChatID: chatID}
	var raw []byte
	err := b.pool.QueryRow(ctx,
		`SELECT id, data, created_at FROM question_sets WHERE chat_id=$1 ORDER BY created_at DESC LIMIT 1`,
		chatID).Scan(&set.ID, &raw, &set.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrSetNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("load question set: %w", err)
	}
	if err := json.Unmarshal(raw, &set.Records); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("unmarshal question set: %w", err)
	}
	return set, nil
}
