package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-session-engine/internal/domain"
)

// ProfileStore keeps participant XP and badges in the profiles table.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) ApplyReward(ctx context.Context, participantID string, xp int, badges []string) ([]string, error) {
	var added []string
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO profiles (participant_id) VALUES ($1) ON CONFLICT DO NOTHING`, participantID,
		); err != nil {
			return err
		}
		var held []string
		if err := tx.QueryRow(ctx,
			`SELECT badges FROM profiles WHERE participant_id=$1 FOR UPDATE`, participantID,
		).Scan(&held); err != nil {
			return err
		}
		added = newBadges(held, badges)
		_, err := tx.Exec(ctx,
			`UPDATE profiles SET xp = xp + $2, badges = badges || $3::text[] WHERE participant_id=$1`,
			participantID, xp, added,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("apply reward: %w", err)
	}
	return added, nil
}

func (s *ProfileStore) GetProfile(ctx context.Context, participantID string) (domain.Profile, error) {
	profile := domain.Profile{ParticipantID: participantID}
	err := s.pool.QueryRow(ctx,
		`SELECT xp, badges FROM profiles WHERE participant_id=$1`, participantID,
	).Scan(&profile.XP, &profile.Badges)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{ParticipantID: participantID, Badges: []string{}}, nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if profile.Badges == nil {
		profile.Badges = []string{}
	}
	return profile, nil
}

func newBadges(held, earned []string) []string {
	seen := make(map[string]struct{}, len(held))
	for _, b := range held {
		seen[b] = struct{}{}
	}
	out := []string{}
	for _, b := range earned {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}
