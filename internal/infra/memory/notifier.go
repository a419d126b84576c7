package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/domain"
)

// Notifier fans leaderboard changes out to in-process subscribers.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan domain.LeaderboardNotification
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[int]chan domain.LeaderboardNotification)}
}

func (n *Notifier) Publish(_ context.Context, note domain.LeaderboardNotification) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs[note.EventID] {
		select {
		case ch <- note:
		default:
			// drop oldest; subscribers re-read the leaderboard anyway
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- note:
			default:
			}
		}
	}
	return nil
}

// Subscribe registers for eventID. The caller must invoke the returned cancel function.
func (n *Notifier) Subscribe(_ context.Context, eventID string) (<-chan domain.LeaderboardNotification, func(), error) {
	ch := make(chan domain.LeaderboardNotification, 8)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	if n.subs[eventID] == nil {
		n.subs[eventID] = make(map[int]chan domain.LeaderboardNotification)
	}
	n.subs[eventID][id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[eventID], id)
			if len(n.subs[eventID]) == 0 {
				delete(n.subs, eventID)
			}
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
