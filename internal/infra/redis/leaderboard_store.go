package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-session-engine/internal/domain"
)

// LeaderboardStore keeps one hash per entry plus a member set per event:
//
//	HSET quiz:lb:entry:{eventID}:{participantID} score correct total updated version
//	SADD quiz:lb:members:{eventID} {participantID}
//
// CompareAndSwap uses WATCH on the entry hash for optimistic concurrency.
type LeaderboardStore struct {
	client *redis.Client
}

func NewLeaderboardStore(client *redis.Client) *LeaderboardStore {
	return &LeaderboardStore{client: client}
}

func (s *LeaderboardStore) Get(ctx context.Context, eventID, participantID string) (domain.LeaderboardEntry, bool, error) {
	fields, err := s.client.HGetAll(ctx, entryKey(eventID, participantID)).Result()
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("read leaderboard entry: %w", err)
	}
	if len(fields) == 0 {
		return domain.LeaderboardEntry{}, false, nil
	}
	entry, err := decodeEntry(eventID, participantID, fields)
	if err != nil {
		return domain.LeaderboardEntry{}, false, err
	}
	return entry, true, nil
}

func (s *LeaderboardStore) CompareAndSwap(ctx context.Context, entry domain.LeaderboardEntry, expectedVersion int64) error {
	key := entryKey(entry.EventID, entry.ParticipantID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != expectedVersion {
			return domain.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"score", entry.Score,
				"correct", entry.CorrectCount,
				"total", entry.TotalCount,
				"updated", entry.LastUpdated.UnixNano(),
				"version", entry.Version,
			)
			pipe.SAdd(ctx, membersKey(entry.EventID), entry.ParticipantID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrConflict
	}
	return err
}

func (s *LeaderboardStore) List(ctx context.Context, eventID string) ([]domain.LeaderboardEntry, error) {
	members, err := s.client.SMembers(ctx, membersKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list leaderboard members: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, participantID := range members {
		cmds[i] = pipe.HGetAll(ctx, entryKey(eventID, participantID))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("read leaderboard entries: %w", err)
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(members))
	for i, participantID := range members {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		entry, err := decodeEntry(eventID, participantID, fields)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeEntry(eventID, participantID string, fields map[string]string) (domain.LeaderboardEntry, error) {
	ints := make(map[string]int64, 5)
	for _, name := range []string{"score", "correct", "total", "updated", "version"} {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return domain.LeaderboardEntry{}, fmt.Errorf("decode leaderboard field %s: %w", name, err)
		}
		ints[name] = v
	}
	return domain.LeaderboardEntry{
		EventID:       eventID,
		ParticipantID: participantID,
		Score:         int(ints["score"]),
		CorrectCount:  int(ints["correct"]),
		TotalCount:    int(ints["total"]),
		LastUpdated:   time.Unix(0, ints["updated"]).UTC(),
		Version:       ints["version"],
	}, nil
}

func entryKey(eventID, participantID string) string {
	return "quiz:lb:entry:" + eventID + ":" + participantID
}

func membersKey(eventID string) string {
	return "quiz:lb:members:" + eventID
}
