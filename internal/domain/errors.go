package domain

import "errors"

var (
	// ErrEmptyQuiz is returned when a quiz has no questions and cannot be played.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrContentNotFound indicates the event or quiz content could not be loaded.
	ErrContentNotFound = errors.New("content not found")
	// ErrInvalidContent indicates a question violates its invariants.
	ErrInvalidContent = errors.New("invalid quiz content")
	// ErrEventClosed is returned when a session is started after the event ended.
	ErrEventClosed = errors.New("event has ended")
	// ErrLateSubmission is returned when the question was already resolved by its deadline.
	ErrLateSubmission = errors.New("submission arrived after the question deadline")
	// ErrSessionNotActive is returned when a session does not accept answers.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionNotComplete is returned when a result is requested too early.
	ErrSessionNotComplete = errors.New("session is not complete")
	// ErrQuestionNotFound indicates a submitted question ID is not the active question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrPersistenceWrite wraps failed durable writes; the session keeps going.
	ErrPersistenceWrite = errors.New("persistence write failed")
	// ErrConflict is returned when an optimistic leaderboard write lost a race.
	ErrConflict = errors.New("leaderboard write conflict")
)
