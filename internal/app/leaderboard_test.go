package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"
)

func TestUpsertReplacesEntry(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(epoch)
	notifier := memory.NewNotifier()
	notes, cancel, _ := notifier.Subscribe(ctx, "e1")
	defer cancel()
	lb := app.NewLeaderboardSync(memory.NewLeaderboardStore(), notifier, fc, 0)

	first, err := lb.Upsert(ctx, "e1", "p1", 40, 2, 5)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := lb.Upsert(ctx, "e1", "p1", 80, 4, 5)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !second.LastUpdated.After(first.LastUpdated) {
		t.Fatalf("lastUpdated did not advance: %v then %v", first.LastUpdated, second.LastUpdated)
	}

	entries, _ := lb.Leaderboard(ctx, "e1")
	if len(entries) != 1 || entries[0].Score != 80 || entries[0].Version != 2 {
		t.Fatalf("expected single replaced entry, got %+v", entries)
	}

	for i := 0; i < 2; i++ {
		select {
		case note := <-notes:
			if note.EventID != "e1" || note.ParticipantID != "p1" {
				t.Fatalf("unexpected notification %+v", note)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing notification %d", i+1)
		}
	}
}

func TestLeaderboardRanking(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(epoch)
	lb := app.NewLeaderboardSync(memory.NewLeaderboardStore(), nil, fc, 0)

	for _, e := range []struct {
		participant string
		score       int
	}{{"p1", 40}, {"p2", 90}, {"p3", 90}, {"p4", 10}} {
		if _, err := lb.Upsert(ctx, "e1", e.participant, e.score, 0, 10); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		fc.Advance(time.Second)
	}

	entries, err := lb.Leaderboard(ctx, "e1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := []string{"p2", "p3", "p1", "p4"}
	for i, id := range want {
		if entries[i].ParticipantID != id {
			t.Fatalf("position %d: want %s, got %+v", i, id, entries)
		}
	}
}

func TestLeaderboardLimit(t *testing.T) {
	ctx := context.Background()
	lb := app.NewLeaderboardSync(memory.NewLeaderboardStore(), nil, clockwork.NewFakeClockAt(epoch), 2)
	for _, p := range []string{"p1", "p2", "p3"} {
		_, _ = lb.Upsert(ctx, "e1", p, 50, 5, 10)
	}
	entries, _ := lb.Leaderboard(ctx, "e1")
	if len(entries) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(entries))
	}
}

func TestUpsertRetriesConflictOnce(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{LeaderboardStore: memory.NewLeaderboardStore(), conflicts: 1}
	lb := app.NewLeaderboardSync(store, nil, clockwork.NewFakeClockAt(epoch), 0)

	if _, err := lb.Upsert(ctx, "e1", "p1", 70, 7, 10); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}

	store.conflicts = 2
	if _, err := lb.Upsert(ctx, "e1", "p1", 80, 8, 10); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict after two losses, got %v", err)
	}
}

func TestConcurrentUpsertsOnSameKey(t *testing.T) {
	ctx := context.Background()
	lb := app.NewLeaderboardSync(memory.NewLeaderboardStore(), nil, clockwork.NewFakeClockAt(epoch), 0)

	for i := 0; i < 50; i++ {
		participant := fmt.Sprintf("p%d", i)
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for w, score := range []int{90, 30} {
			wg.Add(1)
			go func(w, score int) {
				defer wg.Done()
				_, errs[w] = lb.Upsert(ctx, "e1", participant, score, score/10, 10)
			}(w, score)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				t.Fatalf("%s: upsert: %v", participant, err)
			}
		}
	}

	entries, err := lb.Leaderboard(ctx, "e1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 50 {
		t.Fatalf("expected one entry per participant, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Version != 2 {
			t.Fatalf("%s: both writes must apply in sequence, got version %d", e.ParticipantID, e.Version)
		}
		if e.CorrectCount != e.Score/10 || e.TotalCount != 10 || (e.Score != 90 && e.Score != 30) {
			t.Fatalf("%s: entry mixes writers: %+v", e.ParticipantID, e)
		}
	}
}

type conflictingStore struct {
	*memory.LeaderboardStore
	conflicts int
}

func (s *conflictingStore) CompareAndSwap(ctx context.Context, entry domain.LeaderboardEntry, expected int64) error {
	if s.conflicts > 0 {
		s.conflicts--
		return domain.ErrConflict
	}
	return s.LeaderboardStore.CompareAndSwap(ctx, entry, expected)
}
