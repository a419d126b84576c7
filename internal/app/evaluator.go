package app

import "quiz-session-engine/internal/domain"

// Evaluate judges a submission against the question's answer key.
// A nil optionID is a timeout and is never correct. timeSpentSeconds is trusted as given;
// deadline enforcement belongs to the caller.
func Evaluate(question domain.Question, optionID *string, timeSpentSeconds int) domain.Answer {
	answer := domain.Answer{
		QuestionID:       question.ID,
		TimeSpentSeconds: timeSpentSeconds,
	}
	if optionID != nil {
		selected := *optionID
		answer.OptionID = &selected
		answer.Correct = selected == question.CorrectOptionID
	}
	return answer
}
