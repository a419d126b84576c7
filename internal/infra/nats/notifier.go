package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"quiz-session-engine/internal/domain"
)

// SubjectPrefix namespaces leaderboard change subjects: quiz.leaderboard.{eventID}.
const SubjectPrefix = "quiz.leaderboard."

// Notifier publishes and receives leaderboard changes over core NATS.
type Notifier struct {
	nc *nats.Conn
}

// Connect dials NATS with reconnect handlers that log through zerolog.
func Connect(url string) (*Notifier, error) {
	opts := []nats.Option{
		nats.Name("quiz-session-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Notifier{nc: nc}, nil
}

func (n *Notifier) Publish(_ context.Context, note domain.LeaderboardNotification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return n.nc.Publish(Subject(note.EventID), payload)
}

// Subscribe delivers changes for eventID until cancel is called.
func (n *Notifier) Subscribe(_ context.Context, eventID string) (<-chan domain.LeaderboardNotification, func(), error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := n.nc.ChanSubscribe(Subject(eventID), msgs)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", Subject(eventID), err)
	}
	if err := n.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flush subscription: %w", err)
	}

	out := make(chan domain.LeaderboardNotification, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg := <-msgs:
				note, err := Decode(msg.Data)
				if err != nil {
					log.Warn().Err(err).Str("subject", msg.Subject).Msg("bad leaderboard notification")
					continue
				}
				select {
				case out <- note:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(done)
		})
	}
	return out, cancel, nil
}

func (n *Notifier) Close() {
	n.nc.Close()
}

// Subject returns the subject carrying changes for eventID.
func Subject(eventID string) string {
	return SubjectPrefix + eventID
}

// Decode parses a notification payload.
func Decode(data []byte) (domain.LeaderboardNotification, error) {
	var note domain.LeaderboardNotification
	if err := json.Unmarshal(data, &note); err != nil {
		return domain.LeaderboardNotification{}, fmt.Errorf("decode notification: %w", err)
	}
	if note.EventID == "" {
		return domain.LeaderboardNotification{}, fmt.Errorf("decode notification: missing eventId")
	}
	return note, nil
}
