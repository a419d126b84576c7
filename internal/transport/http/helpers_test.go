package http

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/clock"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"
)

var epoch = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*app.QuizService, *memory.SessionStore) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(epoch)
	notifier := memory.NewNotifier()
	sessions := memory.NewSessionStore()
	content := memory.NewContentRepository(memory.NewStaticContentLoader(
		[]domain.Event{
			{ID: "event-1", Title: "Friday quiz", QuizID: "quiz-1", StartTime: epoch.Add(time.Hour)},
			{ID: "event-closed", QuizID: "quiz-1", EndTime: epoch.Add(-time.Minute)},
		},
		[]domain.Quiz{sampleQuiz()},
	), time.Minute)
	service := app.NewQuizService(
		sessions,
		content,
		memory.NewAnswerLog(),
		app.NewLeaderboardSync(memory.NewLeaderboardStore(), notifier, fc, 0),
		app.WithClock(clock.New(fc)),
		app.WithSubscriber(notifier),
		app.WithProfiles(memory.NewProfileStore()),
	)
	return service, sessions
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:      "quiz-1",
		EventID: "event-1",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4"},
					{ID: "o3", Text: "5"},
				},
				CorrectOptionID:  "o2",
				TimeLimitSeconds: 20,
			},
		},
	}
}
