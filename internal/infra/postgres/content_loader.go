package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-session-engine/internal/domain"
)

// ContentLoader loads events and quiz JSONB from Postgres.
type ContentLoader struct {
	pool *pgxpool.Pool
}

func NewContentLoader(pool *pgxpool.Pool) *ContentLoader {
	return &ContentLoader{pool: pool}
}

func (l *ContentLoader) LoadEvent(ctx context.Context, eventID string) (domain.Event, error) {
	var (
		event domain.Event
		end   *time.Time
	)
	err := l.pool.QueryRow(ctx,
		`SELECT id, title, quiz_id, start_time, end_time FROM events WHERE id=$1`, eventID,
	).Scan(&event.ID, &event.Title, &event.QuizID, &event.StartTime, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, fmt.Errorf("event %s: %w", eventID, domain.ErrContentNotFound)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("load event: %w", err)
	}
	if end != nil {
		event.EndTime = *end
	}
	return event, nil
}

func (l *ContentLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, domain.ErrContentNotFound)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = quizID
	return quiz, nil
}

// SaveEvent upserts an event and its quiz; used for seeding and tests.
func (l *ContentLoader) SaveEvent(ctx context.Context, event domain.Event, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	var end *time.Time
	if !event.EndTime.IsZero() {
		end = &event.EndTime
	}
	return l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO quizzes (id, event_id, data) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET event_id = EXCLUDED.event_id, data = EXCLUDED.data`,
			quiz.ID, event.ID, data,
		); err != nil {
			return fmt.Errorf("save quiz: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO events (id, title, quiz_id, start_time, end_time) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, quiz_id = EXCLUDED.quiz_id,
			   start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time`,
			event.ID, event.Title, quiz.ID, event.StartTime, end,
		); err != nil {
			return fmt.Errorf("save event: %w", err)
		}
		return nil
	})
}
