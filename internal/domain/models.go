package domain

import (
	"fmt"
	"time"
)

// Event is a scheduled quiz occurrence.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	QuizID    string    `json:"quizId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime,omitempty"` // zero means open-ended
}

// Closed reports whether the event ended before now.
func (e Event) Closed(now time.Time) bool {
	return !e.EndTime.IsZero() && now.After(e.EndTime)
}

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID               string   `json:"id"`
	Position         int      `json:"position"`
	Prompt           string   `json:"prompt"`
	Options          []Option `json:"options"`
	CorrectOptionID  string   `json:"correctOptionId,omitempty"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// HasOption reports whether optionID is one of the question's options.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// Public strips the answer key before the question is shown to a participant.
func (q Question) Public() Question {
	q.CorrectOptionID = ""
	q.Options = append([]Option(nil), q.Options...)
	return q
}

// TimeLimit returns the per-question deadline as a duration.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Validate checks the question invariants.
func (q Question) Validate() error {
	if len(q.Options) == 0 {
		return fmt.Errorf("%w: question %s has no options", ErrInvalidContent, q.ID)
	}
	if q.TimeLimitSeconds <= 0 {
		return fmt.Errorf("%w: question %s has no time limit", ErrInvalidContent, q.ID)
	}
	seen := make(map[string]struct{}, len(q.Options))
	matches := 0
	for _, opt := range q.Options {
		if _, dup := seen[opt.ID]; dup {
			return fmt.Errorf("%w: question %s repeats option %s", ErrInvalidContent, q.ID, opt.ID)
		}
		seen[opt.ID] = struct{}{}
		if opt.ID == q.CorrectOptionID {
			matches++
		}
	}
	if matches != 1 {
		return fmt.Errorf("%w: question %s must have exactly one correct option", ErrInvalidContent, q.ID)
	}
	return nil
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	EventID   string     `json:"eventId"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Snapshot returns a deep copy so later content edits cannot leak into a running session.
func (q Quiz) Snapshot() []Question {
	out := make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]Option(nil), question.Options...)
		out[i] = question
	}
	return out
}

// Answer is one resolved question in a session's answer log.
// A nil OptionID means the question timed out without an answer.
type Answer struct {
	Index            int     `json:"index"`
	QuestionID       string  `json:"questionId"`
	OptionID         *string `json:"optionId"`
	Correct          bool    `json:"isCorrect"`
	TimeSpentSeconds int     `json:"timeSpentSeconds"`
}

// TimedOut reports whether the answer was recorded by the deadline.
func (a Answer) TimedOut() bool {
	return a.OptionID == nil
}

// BadgePerfectScore is granted when every question was answered correctly.
const BadgePerfectScore = "perfect-score"

// SessionResult is the final outcome of a completed session.
type SessionResult struct {
	SessionID     string   `json:"sessionId"`
	EventID       string   `json:"eventId"`
	ParticipantID string   `json:"participantId"`
	CorrectCount  int      `json:"correctCount"`
	TotalCount    int      `json:"totalCount"`
	Score         int      `json:"score"`
	RewardPoints  int      `json:"rewardPoints"`
	Badges        []string `json:"badges"`
}

// LeaderboardEntry is one participant's published result for an event.
type LeaderboardEntry struct {
	EventID       string    `json:"eventId"`
	ParticipantID string    `json:"participantId"`
	Score         int       `json:"score"`
	CorrectCount  int       `json:"correctCount"`
	TotalCount    int       `json:"totalCount"`
	LastUpdated   time.Time `json:"lastUpdated"`
	Version       int64     `json:"version"`
}

// LeaderboardNotification signals subscribers that an event's ranking changed.
// Receivers re-fetch the leaderboard instead of trusting the payload.
type LeaderboardNotification struct {
	EventID       string    `json:"eventId"`
	ParticipantID string    `json:"participantId"`
	Score         int       `json:"score"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Profile accumulates a participant's rewards across sessions.
type Profile struct {
	ParticipantID string   `json:"participantId"`
	XP            int      `json:"xp"`
	Badges        []string `json:"badges"`
}

// SessionState is the lifecycle state of a quiz session.
type SessionState string

const (
	StateIdle           SessionState = "idle"
	StateCountingDown   SessionState = "counting_down"
	StateQuestionActive SessionState = "question_active"
	StateSubmitted      SessionState = "submitted"
	StateTimedOut       SessionState = "timed_out"
	StateCompleted      SessionState = "completed"
	StateFailed         SessionState = "failed"
	StateAbandoned      SessionState = "abandoned"
)

// Terminal reports whether the state has no outgoing transitions.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAbandoned
}

// TickState is what the presentation layer renders for timers.
type TickState struct {
	Phase            SessionState `json:"phase"`
	QuestionIndex    int          `json:"questionIndex"`
	QuestionCount    int          `json:"questionCount"`
	SecondsRemaining int          `json:"secondsRemaining"`
}

// SessionUpdate is pushed to session watchers on every transition and tick.
type SessionUpdate struct {
	SessionID string         `json:"sessionId"`
	Tick      TickState      `json:"tick"`
	Question  *Question      `json:"question,omitempty"`
	Answer    *Answer        `json:"answer,omitempty"`
	Result    *SessionResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}
