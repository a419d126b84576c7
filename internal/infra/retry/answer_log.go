package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

// AnswerLog retries a wrapped log. The wrapped log must tolerate duplicate appends.
type AnswerLog struct {
	next   app.AnswerLog
	policy Policy
}

func NewAnswerLog(next app.AnswerLog, policy Policy) *AnswerLog {
	return &AnswerLog{next: next, policy: policy}
}

func (l *AnswerLog) AppendAnswer(ctx context.Context, sessionID string, answer domain.Answer) error {
	op := func() error {
		return l.next.AppendAnswer(ctx, sessionID, answer)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("question_id", answer.QuestionID).
			Dur("retry_in", wait).
			Msg("answer write failed, retrying")
	}
	return backoff.RetryNotify(op, l.policy.backOff(ctx), notify)
}
