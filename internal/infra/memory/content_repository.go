package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"quiz-session-engine/internal/domain"
)

// ContentLoader fetches event and quiz content from a backing store (e.g., Postgres).
type ContentLoader interface {
	LoadEvent(ctx context.Context, eventID string) (domain.Event, error)
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ContentRepository caches content with TTL to avoid repeated DB hits.
type ContentRepository struct {
	loader ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu      sync.RWMutex
	events  map[string]cached[domain.Event]
	quizzes map[string]cached[domain.Quiz]
}

type cached[T any] struct {
	value     T
	expiresAt time.Time
}

func NewContentRepository(loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		events:  make(map[string]cached[domain.Event]),
		quizzes: make(map[string]cached[domain.Quiz]),
	}
}

func (r *ContentRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	return load(r, r.events, "event:"+eventID, eventID, func() (domain.Event, error) {
		return r.loader.LoadEvent(ctx, eventID)
	})
}

// GetQuiz returns a deep copy so callers cannot mutate cached content.
func (r *ContentRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := load(r, r.quizzes, "quiz:"+quizID, quizID, func() (domain.Quiz, error) {
		return r.loader.LoadQuiz(ctx, quizID)
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = quiz.Snapshot()
	return quiz, nil
}

func load[T any](r *ContentRepository, cache map[string]cached[T], key, id string, fetch func() (T, error)) (T, error) {
	var zero T
	now := r.clock()

	r.mu.RLock()
	if entry, ok := cache[id]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.value, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := cache[id]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.value, nil
		}
		r.mu.RUnlock()

		value, err := fetch()
		if err != nil {
			return zero, err
		}

		r.mu.Lock()
		cache[id] = cached[T]{value: value, expiresAt: now.Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticContentLoader is a simple loader backed by in-memory maps (useful for tests/demos).
type StaticContentLoader struct {
	events  map[string]domain.Event
	quizzes map[string]domain.Quiz
}

func NewStaticContentLoader(events []domain.Event, quizzes []domain.Quiz) *StaticContentLoader {
	l := &StaticContentLoader{
		events:  make(map[string]domain.Event, len(events)),
		quizzes: make(map[string]domain.Quiz, len(quizzes)),
	}
	for _, e := range events {
		l.events[e.ID] = e
	}
	for _, q := range quizzes {
		l.quizzes[q.ID] = q
	}
	return l
}

func (l *StaticContentLoader) LoadEvent(_ context.Context, eventID string) (domain.Event, error) {
	if event, ok := l.events[eventID]; ok {
		return event, nil
	}
	return domain.Event{}, domain.ErrContentNotFound
}

func (l *StaticContentLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrContentNotFound
}
