package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketSessionFlow(t *testing.T) {
	service, sessions := newTestService(t)
	server := httptest.NewServer(NewRouter(service))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?eventId=event-1&participantId=p1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	session := readUntil(t, conn, "session")
	if session["sessionId"] == nil {
		t.Fatalf("expected session id, got %v", session)
	}

	if err := conn.WriteJSON(map[string]any{"type": "skip"}); err != nil {
		t.Fatalf("write skip: %v", err)
	}
	state := readUntil(t, conn, "state", func(p map[string]any) bool { return p["question"] != nil })
	question := state["question"].(map[string]any)
	if question["id"] != "q1" {
		t.Fatalf("expected q1, got %v", question)
	}
	if _, leaked := question["correctOptionId"]; leaked {
		t.Fatalf("answer key sent to client: %v", question)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionId": "q1", "optionId": "o2"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	recorded := readUntil(t, conn, "answer")
	if recorded["isCorrect"] != true {
		t.Fatalf("expected correct answer, got %v", recorded)
	}
	// result and leaderboard change arrive on independent streams
	seen := readAll(t, conn, "result", "leaderboardChanged")
	if seen["result"]["score"] != float64(100) {
		t.Fatalf("expected score 100, got %v", seen["result"])
	}
	if entries, _ := seen["leaderboardChanged"]["entries"].([]any); len(entries) != 1 {
		t.Fatalf("expected one leaderboard entry, got %v", seen["leaderboardChanged"])
	}

	// completed sessions survive disconnects
	conn.Close()
	time.Sleep(20 * time.Millisecond)
	if sessions.Len() != 1 {
		t.Fatalf("completed session must not be abandoned on disconnect")
	}
}

func TestWebSocketErrors(t *testing.T) {
	service, sessions := newTestService(t)
	server := httptest.NewServer(NewRouter(service))
	defer server.Close()

	base := "ws" + server.URL[len("http"):] + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(base+"?eventId=event-closed&participantId=p1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	payload := readUntil(t, conn, "error")
	if payload["code"] != "event_closed" {
		t.Fatalf("expected event_closed, got %v", payload)
	}
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(base+"?eventId=event-1&participantId=p2", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readUntil(t, conn, "session")
	_ = conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"optionId": "o2"}})
	payload = readUntil(t, conn, "error")
	if payload["code"] != "session_not_active" {
		t.Fatalf("expected session_not_active during countdown, got %v", payload)
	}

	// unfinished sessions are abandoned on disconnect
	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for sessions.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not abandoned after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string, match ...func(map[string]any) bool) map[string]any {
	t.Helper()
	for i := 0; i < 50; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", typ, err)
		}
		if msg.Type != typ {
			continue
		}
		if len(match) > 0 && !match[0](msg.Payload) {
			continue
		}
		return msg.Payload
	}
	t.Fatalf("no %s message", typ)
	return nil
}

func readAll(t *testing.T, conn *websocket.Conn, types ...string) map[string]map[string]any {
	t.Helper()
	seen := make(map[string]map[string]any, len(types))
	for i := 0; i < 50 && len(seen) < len(types); i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %v: %v", types, err)
		}
		for _, typ := range types {
			if msg.Type == typ {
				if _, dup := seen[typ]; !dup {
					seen[typ] = msg.Payload
				}
			}
		}
	}
	if len(seen) < len(types) {
		t.Fatalf("expected %v, saw %v", types, seen)
	}
	return seen
}
