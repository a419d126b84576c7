package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
}

type statePayload struct {
	Tick     domain.TickState `json:"tick"`
	Question *domain.Question `json:"question,omitempty"`
}

type leaderboardPayload struct {
	EventID string                    `json:"eventId"`
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// ServeWS upgrades HTTP requests to websockets and plays one session per connection.
// Closing the connection abandons an unfinished session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	participantID := r.URL.Query().Get("participantId")
	if eventID == "" || participantID == "" {
		http.Error(w, "missing eventId or participantId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	sessionID, err := h.service.BeginSession(ctx, eventID, participantID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: newErrorPayload(err)})
		return
	}
	defer h.service.Abandon(context.Background(), sessionID)

	updates, cancelUpdates, err := h.service.Watch(ctx, sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: newErrorPayload(err)})
		return
	}
	defer cancelUpdates()

	changes, cancelChanges, err := h.service.SubscribeLeaderboard(ctx, eventID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: newErrorPayload(err)})
		return
	}
	defer cancelChanges()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("session_id", sessionID).Msg("ws write error")
				return
			}
		}
	}()

	// single producer for server-initiated messages so send is closed exactly once
	go func() {
		defer close(pumpDone)
		emit := func(msg outboundMessage[any]) bool {
			select {
			case send <- msg:
				return true
			case <-closeSignals:
				return false
			}
		}
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if !emit(updateMessage(update)) {
					return
				}
			case _, ok := <-changes:
				if !ok {
					changes = nil
					continue
				}
				entries, err := h.service.GetLeaderboard(ctx, eventID)
				if err != nil {
					log.Warn().Err(err).Str("event_id", eventID).Msg("leaderboard refresh failed")
					continue
				}
				if !emit(outboundMessage[any]{Type: "leaderboardChanged", Payload: leaderboardPayload{EventID: eventID, Entries: entries}}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-pumpDone:
		}
	}
	reply(outboundMessage[any]{Type: "session", Payload: sessionPayload{SessionID: sessionID}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "skip":
			if err := h.service.SkipCountdown(ctx, sessionID); err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: newErrorPayload(err)})
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid answer payload"}})
				continue
			}
			if _, err := h.service.SubmitAnswer(ctx, sessionID, payload.QuestionID, payload.OptionID); err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: newErrorPayload(err)})
			}
		default:
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-pumpDone
	close(send)
	<-writerDone
}

// updateMessage picks the most specific message type for a session update.
func updateMessage(u domain.SessionUpdate) outboundMessage[any] {
	switch {
	case u.Error != "":
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "session_error", Message: u.Error}}
	case u.Result != nil:
		return outboundMessage[any]{Type: "result", Payload: u.Result}
	case u.Answer != nil:
		return outboundMessage[any]{Type: "answer", Payload: u.Answer}
	default:
		return outboundMessage[any]{Type: "state", Payload: statePayload{Tick: u.Tick, Question: u.Question}}
	}
}
