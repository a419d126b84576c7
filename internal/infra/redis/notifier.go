package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"quiz-session-engine/internal/domain"
)

// Notifier publishes leaderboard changes on quiz:lb:changes:{eventID}.
type Notifier struct {
	client *redis.Client
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Publish(ctx context.Context, note domain.LeaderboardNotification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channel(note.EventID), payload).Err()
}

// Subscribe listens on the event's channel until cancel is called.
func (n *Notifier) Subscribe(ctx context.Context, eventID string) (<-chan domain.LeaderboardNotification, func(), error) {
	sub := n.client.Subscribe(ctx, channel(eventID))
	// wait for confirmation so no publish after return is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe leaderboard %s: %w", eventID, err)
	}

	out := make(chan domain.LeaderboardNotification, 8)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var note domain.LeaderboardNotification
			if err := json.Unmarshal([]byte(msg.Payload), &note); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("bad leaderboard notification")
				continue
			}
			select {
			case out <- note:
			default:
				// slow consumer; the next signal triggers a fresh read anyway
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

func channel(eventID string) string {
	return "quiz:lb:changes:" + eventID
}
