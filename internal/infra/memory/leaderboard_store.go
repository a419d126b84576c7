package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/domain"
)

type entryKey struct {
	eventID       string
	participantID string
}

// LeaderboardStore is a versioned in-memory leaderboard.
type LeaderboardStore struct {
	mu      sync.RWMutex
	entries map[entryKey]domain.LeaderboardEntry
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{entries: make(map[entryKey]domain.LeaderboardEntry)}
}

func (s *LeaderboardStore) Get(_ context.Context, eventID, participantID string) (domain.LeaderboardEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[entryKey{eventID, participantID}]
	return entry, ok, nil
}

func (s *LeaderboardStore) CompareAndSwap(_ context.Context, entry domain.LeaderboardEntry, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryKey{entry.EventID, entry.ParticipantID}
	var current int64
	if existing, ok := s.entries[key]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return domain.ErrConflict
	}
	s.entries[key] = entry
	return nil
}

func (s *LeaderboardStore) List(_ context.Context, eventID string) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LeaderboardEntry, 0)
	for key, entry := range s.entries {
		if key.eventID == eventID {
			out = append(out, entry)
		}
	}
	return out, nil
}
