package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
)

func TestLeaderboardStoreCompareAndSwap(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewLeaderboardStore(newClient(mr))
	updated := time.Date(2024, 11, 22, 10, 0, 0, 123000, time.UTC)
	entry := domain.LeaderboardEntry{
		EventID: "e1", ParticipantID: "p1",
		Score: 75, CorrectCount: 3, TotalCount: 4,
		LastUpdated: updated, Version: 1,
	}

	if _, found, _ := store.Get(ctx, "e1", "p1"); found {
		t.Fatalf("expected empty store")
	}
	if err := store.CompareAndSwap(ctx, entry, 0); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := store.CompareAndSwap(ctx, entry, 0); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, found, err := store.Get(ctx, "e1", "p1")
	if err != nil || !found {
		t.Fatalf("get: %v %v", found, err)
	}
	if got.Score != 75 || got.Version != 1 || !got.LastUpdated.Equal(updated) {
		t.Fatalf("unexpected entry %+v", got)
	}

	second := entry
	second.ParticipantID = "p2"
	_ = store.CompareAndSwap(ctx, second, 0)
	list, err := store.List(ctx, "e1")
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d (%v)", len(list), err)
	}
}

func TestLeaderboardStoreEventIDWithColon(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewLeaderboardStore(newClient(mr))
	// entry key of ("e", "x") must not land on the member set of "e:x"
	for _, e := range []domain.LeaderboardEntry{
		{EventID: "e", ParticipantID: "x", Score: 10, Version: 1},
		{EventID: "e:x", ParticipantID: "p1", Score: 20, Version: 1},
	} {
		if err := store.CompareAndSwap(ctx, e, 0); err != nil {
			t.Fatalf("write %s/%s: %v", e.EventID, e.ParticipantID, err)
		}
	}
	for _, eventID := range []string{"e", "e:x"} {
		list, err := store.List(ctx, eventID)
		if err != nil || len(list) != 1 {
			t.Fatalf("%s: expected 1 entry, got %+v (%v)", eventID, list, err)
		}
	}
}

func TestConcurrentUpsertsOnSameKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	lb := app.NewLeaderboardSync(NewLeaderboardStore(newClient(mr)), nil, nil, 0)

	for i := 0; i < 20; i++ {
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
	if len(entries) != 20 {
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

func TestNotifierRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	n := NewNotifier(newClient(mr))
	ch, cancel, err := n.Subscribe(ctx, "e1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := n.Publish(ctx, domain.LeaderboardNotification{EventID: "e1", ParticipantID: "p1", Score: 90}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case note := <-ch:
		if note.ParticipantID != "p1" || note.Score != 90 {
			t.Fatalf("unexpected notification %+v", note)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notification not delivered")
	}
}
