package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"quiz-session-engine/internal/domain"
)

// LeaderboardStore persists one versioned entry per (event, participant).
type LeaderboardStore interface {
	Get(ctx context.Context, eventID, participantID string) (domain.LeaderboardEntry, bool, error)
	// CompareAndSwap stores entry only if the stored version still equals expectedVersion
	// (0 when absent). A mismatch returns domain.ErrConflict.
	CompareAndSwap(ctx context.Context, entry domain.LeaderboardEntry, expectedVersion int64) error
	List(ctx context.Context, eventID string) ([]domain.LeaderboardEntry, error)
}

// Notifier publishes leaderboard change signals (at-least-once, unordered across events).
type Notifier interface {
	Publish(ctx context.Context, note domain.LeaderboardNotification) error
}

// Subscriber delivers leaderboard change signals for one event.
// The caller must invoke the returned cancel function to avoid leaks.
type Subscriber interface {
	Subscribe(ctx context.Context, eventID string) (<-chan domain.LeaderboardNotification, func(), error)
}

// DefaultLeaderboardLimit caps how many ranked entries a read returns.
const DefaultLeaderboardLimit = 100

// LeaderboardSync is the only writer of leaderboard state.
type LeaderboardSync struct {
	store    LeaderboardStore
	notifier Notifier
	clock    clockwork.Clock
	limit    int
}

func NewLeaderboardSync(store LeaderboardStore, notifier Notifier, clock clockwork.Clock, limit int) *LeaderboardSync {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	return &LeaderboardSync{store: store, notifier: notifier, clock: clock, limit: limit}
}

// Upsert replaces the entry for (eventID, participantID) with the latest values.
// Last write wins; a lost optimistic race is retried once against the freshest read.
func (l *LeaderboardSync) Upsert(ctx context.Context, eventID, participantID string, score, correct, total int) (domain.LeaderboardEntry, error) {
	var (
		entry domain.LeaderboardEntry
		err   error
	)
	for attempt := 0; attempt < 2; attempt++ {
		entry, err = l.tryUpsert(ctx, eventID, participantID, score, correct, total)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
		log.Debug().
			Str("event_id", eventID).
			Str("participant_id", participantID).
			Int("attempt", attempt+1).
			Msg("leaderboard write conflict")
	}
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}

	if l.notifier != nil {
		note := domain.LeaderboardNotification{
			EventID:       entry.EventID,
			ParticipantID: entry.ParticipantID,
			Score:         entry.Score,
			LastUpdated:   entry.LastUpdated,
		}
		if err := l.notifier.Publish(ctx, note); err != nil {
			log.Warn().Err(err).Str("event_id", eventID).Msg("leaderboard notification failed")
		}
	}
	return entry, nil
}

func (l *LeaderboardSync) tryUpsert(ctx context.Context, eventID, participantID string, score, correct, total int) (domain.LeaderboardEntry, error) {
	current, found, err := l.store.Get(ctx, eventID, participantID)
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}

	now := l.clock.Now().UTC().Round(0)
	var expected int64
	if found {
		expected = current.Version
		// keep lastUpdated strictly increasing per key even if clocks stall
		if !now.After(current.LastUpdated) {
			now = current.LastUpdated.Add(time.Microsecond)
		}
	}

	entry := domain.LeaderboardEntry{
		EventID:       eventID,
		ParticipantID: participantID,
		Score:         score,
		CorrectCount:  correct,
		TotalCount:    total,
		LastUpdated:   now,
		Version:       expected + 1,
	}
	if err := l.store.CompareAndSwap(ctx, entry, expected); err != nil {
		return domain.LeaderboardEntry{}, err
	}
	return entry, nil
}

// Leaderboard recomputes the ranking from current store state on every call.
func (l *LeaderboardSync) Leaderboard(ctx context.Context, eventID string) ([]domain.LeaderboardEntry, error) {
	entries, err := l.store.List(ctx, eventID)
	if err != nil {
		return nil, err
	}
	Rank(entries)
	if len(entries) > l.limit {
		entries = entries[:l.limit]
	}
	return entries, nil
}

// Rank orders entries by score descending; ties go to whoever finished first.
func Rank(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].LastUpdated.Equal(entries[j].LastUpdated) {
			return entries[i].LastUpdated.Before(entries[j].LastUpdated)
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
}
