package http

import (
	"errors"
	"net/http"

	"quiz-session-engine/internal/domain"
)

// errorCodes maps domain failures to a stable client code and HTTP status.
var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{domain.ErrContentNotFound, "content_not_found", http.StatusNotFound},
	{domain.ErrEmptyQuiz, "empty_quiz", http.StatusUnprocessableEntity},
	{domain.ErrInvalidContent, "invalid_content", http.StatusUnprocessableEntity},
	{domain.ErrEventClosed, "event_closed", http.StatusGone},
	{domain.ErrLateSubmission, "late_submission", http.StatusConflict},
	{domain.ErrSessionNotActive, "session_not_active", http.StatusConflict},
	{domain.ErrSessionNotComplete, "session_not_complete", http.StatusConflict},
	{domain.ErrQuestionNotFound, "question_not_found", http.StatusBadRequest},
	{domain.ErrOptionNotFound, "option_not_found", http.StatusBadRequest},
	{domain.ErrConflict, "conflict", http.StatusConflict},
	{domain.ErrPersistenceWrite, "persistence_write", http.StatusServiceUnavailable},
}

func classify(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return "internal", http.StatusInternalServerError
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorPayload(err error) errorPayload {
	code, _ := classify(err)
	return errorPayload{Code: code, Message: err.Error()}
}
