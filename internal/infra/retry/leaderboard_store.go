package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

// LeaderboardStore retries transient store failures. Version conflicts are
// returned immediately so LeaderboardSync can re-read and decide.
type LeaderboardStore struct {
	next   app.LeaderboardStore
	policy Policy
}

func NewLeaderboardStore(next app.LeaderboardStore, policy Policy) *LeaderboardStore {
	return &LeaderboardStore{next: next, policy: policy}
}

func (s *LeaderboardStore) Get(ctx context.Context, eventID, participantID string) (domain.LeaderboardEntry, bool, error) {
	var (
		entry domain.LeaderboardEntry
		found bool
	)
	err := s.do(ctx, "get", eventID, participantID, func() error {
		var err error
		entry, found, err = s.next.Get(ctx, eventID, participantID)
		return err
	})
	return entry, found, err
}

func (s *LeaderboardStore) CompareAndSwap(ctx context.Context, entry domain.LeaderboardEntry, expectedVersion int64) error {
	return s.do(ctx, "compare-and-swap", entry.EventID, entry.ParticipantID, func() error {
		return s.next.CompareAndSwap(ctx, entry, expectedVersion)
	})
}

func (s *LeaderboardStore) List(ctx context.Context, eventID string) ([]domain.LeaderboardEntry, error) {
	var entries []domain.LeaderboardEntry
	err := s.do(ctx, "list", eventID, "", func() error {
		var err error
		entries, err = s.next.List(ctx, eventID)
		return err
	})
	return entries, err
}

func (s *LeaderboardStore) do(ctx context.Context, op, eventID, participantID string, fn func() error) error {
	attempt := func() error {
		err := fn()
		if errors.Is(err, domain.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("op", op).
			Str("event_id", eventID).
			Str("participant_id", participantID).
			Dur("retry_in", wait).
			Msg("leaderboard store failed, retrying")
	}

	err := backoff.RetryNotify(attempt, s.policy.backOff(ctx), notify)
	if err == nil || errors.Is(err, domain.ErrConflict) {
		return err
	}
	return fmt.Errorf("%w: leaderboard %s %s: %v", domain.ErrPersistenceWrite, op, eventID, err)
}
