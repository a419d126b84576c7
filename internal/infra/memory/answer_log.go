package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-session-engine/internal/domain"
)

// AnswerLog keeps appended answers per session. Re-appending the same question is a no-op.
type AnswerLog struct {
	mu      sync.Mutex
	answers map[string][]domain.Answer
}

func NewAnswerLog() *AnswerLog {
	return &AnswerLog{answers: make(map[string][]domain.Answer)}
}

func (l *AnswerLog) AppendAnswer(_ context.Context, sessionID string, answer domain.Answer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.answers[sessionID] {
		if existing.QuestionID == answer.QuestionID {
			return nil
		}
	}
	l.answers[sessionID] = append(l.answers[sessionID], answer)
	return nil
}

// Answers returns a copy of what was logged for sessionID in question order.
func (l *AnswerLog) Answers(sessionID string) []domain.Answer {
	l.mu.Lock()
	out := append([]domain.Answer(nil), l.answers[sessionID]...)
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
