package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-session-engine/internal/domain"
)

// AnswerLog appends answers to the answers table. The (session_id, question_id)
// key makes retried writes idempotent.
type AnswerLog struct {
	pool *pgxpool.Pool
}

func NewAnswerLog(pool *pgxpool.Pool) *AnswerLog {
	return &AnswerLog{pool: pool}
}

func (l *AnswerLog) AppendAnswer(ctx context.Context, sessionID string, answer domain.Answer) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO answers (session_id, question_id, idx, option_id, is_correct, time_spent_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, question_id) DO NOTHING`,
		sessionID, answer.QuestionID, answer.Index, answer.OptionID, answer.Correct, answer.TimeSpentSeconds,
	)
	if err != nil {
		return fmt.Errorf("append answer: %w", err)
	}
	return nil
}

// Answers returns the logged answers of a session in order.
func (l *AnswerLog) Answers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT idx, question_id, option_id, is_correct, time_spent_seconds
		 FROM answers WHERE session_id=$1 ORDER BY idx`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.Index, &a.QuestionID, &a.OptionID, &a.Correct, &a.TimeSpentSeconds); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
