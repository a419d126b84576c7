package app_test

import (
	"errors"
	"testing"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

func TestAggregate(t *testing.T) {
	cases := []struct {
		name    string
		correct int
		total   int
		score   int
		reward  int
		perfect bool
	}{
		{name: "three of four", correct: 3, total: 4, score: 75, reward: 80},
		{name: "one of three", correct: 1, total: 3, score: 33, reward: 60},
		{name: "two of three", correct: 2, total: 3, score: 67, reward: 70},
		{name: "none", correct: 0, total: 5, score: 0, reward: 50},
		{name: "all", correct: 5, total: 5, score: 100, reward: 100, perfect: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			answers := make([]domain.Answer, tc.total)
			for i := 0; i < tc.correct; i++ {
				answers[i].Correct = true
			}
			result, err := app.Aggregate(answers, tc.total)
			if err != nil {
				t.Fatalf("aggregate: %v", err)
			}
			if result.Score != tc.score || result.RewardPoints != tc.reward || result.CorrectCount != tc.correct {
				t.Fatalf("unexpected result %+v", result)
			}
			hasBadge := len(result.Badges) == 1 && result.Badges[0] == domain.BadgePerfectScore
			if hasBadge != tc.perfect {
				t.Fatalf("badge mismatch: %v", result.Badges)
			}
		})
	}
}

func TestAggregateEmptyQuiz(t *testing.T) {
	if _, err := app.Aggregate(nil, 0); !errors.Is(err, domain.ErrEmptyQuiz) {
		t.Fatalf("expected ErrEmptyQuiz, got %v", err)
	}
}
