package app_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/clock"
	"quiz-session-engine/internal/domain"
)

var epoch = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func newFakeClock() (*clockwork.FakeClock, *clock.SessionClock) {
	fc := clockwork.NewFakeClockAt(epoch)
	return fc, clock.New(fc)
}

// waitFor polls cond in real time; timer goroutines deliver asynchronously.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// advanceUntil moves the fake clock forward in steps until cond holds.
func advanceUntil(t *testing.T, fc *clockwork.FakeClock, step time.Duration, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		fc.Advance(step)
		for j := 0; j < 10; j++ {
			if cond() {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}
	t.Fatalf("clock never produced %s", what)
}

func nextUpdate(t *testing.T, ch <-chan domain.SessionUpdate, match func(domain.SessionUpdate) bool) domain.SessionUpdate {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				t.Fatalf("update channel closed")
			}
			if match(u) {
				return u
			}
		case <-timeout:
			t.Fatalf("no matching update")
		}
	}
}

type recordingListener struct {
	mu        sync.Mutex
	answers   []domain.Answer
	completed []domain.SessionResult
}

func (l *recordingListener) AnswerRecorded(_ *app.Session, a domain.Answer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answers = append(l.answers, a)
}

func (l *recordingListener) SessionCompleted(_ *app.Session, r domain.SessionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, r)
}

func (l *recordingListener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.answers), len(l.completed)
}

func question(id string, correct string) domain.Question {
	return domain.Question{
		ID:     id,
		Prompt: "Pick " + correct,
		Options: []domain.Option{
			{ID: "a", Text: "A"},
			{ID: "b", Text: "B"},
			{ID: "c", Text: "C"},
		},
		CorrectOptionID:  correct,
		TimeLimitSeconds: 10,
	}
}

func quizOf(n int) domain.Quiz {
	quiz := domain.Quiz{ID: "quiz-1", EventID: "event-1", Title: "General knowledge"}
	ids := []string{"q1", "q2", "q3", "q4", "q5"}
	for i := 0; i < n; i++ {
		q := question(ids[i], "b")
		q.Position = i + 1
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz
}
