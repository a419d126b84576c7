package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/domain"
)

// ProfileStore accumulates XP and badges per participant.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*domain.Profile)}
}

func (s *ProfileStore) ApplyReward(_ context.Context, participantID string, xp int, badges []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[participantID]
	if !ok {
		p = &domain.Profile{ParticipantID: participantID, Badges: []string{}}
		s.profiles[participantID] = p
	}
	p.XP += xp
	added := make([]string, 0, len(badges))
	for _, badge := range badges {
		if !contains(p.Badges, badge) {
			p.Badges = append(p.Badges, badge)
			added = append(added, badge)
		}
	}
	return added, nil
}

func (s *ProfileStore) GetProfile(_ context.Context, participantID string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[participantID]
	if !ok {
		return domain.Profile{ParticipantID: participantID, Badges: []string{}}, nil
	}
	out := *p
	out.Badges = append([]string{}, p.Badges...)
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
