package app

import (
	"math"

	"quiz-session-engine/internal/domain"
)

const (
	completionBonus  = 50
	pointsPerCorrect = 10
)

// Aggregate derives a session result from the answer log alone.
func Aggregate(answers []domain.Answer, total int) (domain.SessionResult, error) {
	if total <= 0 {
		return domain.SessionResult{}, domain.ErrEmptyQuiz
	}
	correct := 0
	for _, a := range answers {
		if a.Correct {
			correct++
		}
	}
	result := domain.SessionResult{
		CorrectCount: correct,
		TotalCount:   total,
		Score:        Percentage(correct, total),
		RewardPoints: RewardPoints(correct),
		Badges:       []string{},
	}
	if correct == total {
		result.Badges = append(result.Badges, domain.BadgePerfectScore)
	}
	return result, nil
}

// Percentage returns round(100 * correct / total), half away from zero.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

// RewardPoints is a flat completion bonus plus a per-correct-answer bonus.
func RewardPoints(correct int) int {
	return pointsPerCorrect*correct + completionBonus
}
