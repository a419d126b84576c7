package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"quiz-session-engine/internal/app"
)

// RESTHandler exposes the session use cases as JSON endpoints.
type RESTHandler struct {
	service *app.QuizService
}

func NewRESTHandler(service *app.QuizService) *RESTHandler {
	return &RESTHandler{service: service}
}

// NewRouter mounts the REST routes, the websocket endpoint and the health check.
func NewRouter(service *app.QuizService) *mux.Router {
	rest := NewRESTHandler(service)
	ws := NewWSHandler(service)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws.ServeWS)

	r.HandleFunc("/events/{eventId}/sessions", rest.beginSession).Methods(http.MethodPost)
	r.HandleFunc("/events/{eventId}/leaderboard", rest.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/skip", rest.skip).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/answers", rest.submit).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/tick", rest.tick).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/result", rest.result).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", rest.abandon).Methods(http.MethodDelete)
	r.HandleFunc("/participants/{id}/profile", rest.profile).Methods(http.MethodGet)
	return r
}

type beginRequest struct {
	ParticipantID string `json:"participantId"`
}

type submitRequest struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

func (h *RESTHandler) beginSession(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParticipantID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "participantId is required"})
		return
	}
	id, err := h.service.BeginSession(r.Context(), mux.Vars(r)["eventId"], req.ParticipantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload{SessionID: id})
}

func (h *RESTHandler) skip(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SkipCountdown(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RESTHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OptionID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "optionId is required"})
		return
	}
	answer, err := h.service.SubmitAnswer(r.Context(), mux.Vars(r)["id"], req.QuestionID, req.OptionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *RESTHandler) tick(w http.ResponseWriter, r *http.Request) {
	tick, err := h.service.Tick(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tick)
}

func (h *RESTHandler) result(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetResult(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RESTHandler) abandon(w http.ResponseWriter, r *http.Request) {
	h.service.Abandon(r.Context(), mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *RESTHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["eventId"]
	entries, err := h.service.GetLeaderboard(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardPayload{EventID: eventID, Entries: entries})
}

func (h *RESTHandler) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func writeError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorPayload{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("response write failed")
	}
}
