package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"quiz-session-engine/internal/domain"
)

// ContentLoader fetches event and quiz content from a backing store (e.g., Postgres).
type ContentLoader interface {
	LoadEvent(ctx context.Context, eventID string) (domain.Event, error)
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ContentRepository caches content as JSON in Redis and falls back to a loader on cache miss.
// Events are stored as:  SET quiz:event:{eventID} {json}
// Quizzes are stored as: SET quiz:content:{quizID} {json}
type ContentRepository struct {
	client *redis.Client
	loader ContentLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewContentRepository(client *redis.Client, loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ContentRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	var event domain.Event
	err := r.cached(ctx, "quiz:event:"+eventID, &event, func() (any, error) {
		return r.loader.LoadEvent(ctx, eventID)
	})
	return event, err
}

func (r *ContentRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := r.cached(ctx, "quiz:content:"+quizID, &quiz, func() (any, error) {
		return r.loader.LoadQuiz(ctx, quizID)
	})
	return quiz, err
}

// cached decodes key into dst, loading and storing it on a miss.
func (r *ContentRepository) cached(ctx context.Context, key string, dst any, load func() (any, error)) error {
	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		return json.Unmarshal(raw, dst)
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := r.client.Get(ctx, key).Bytes()
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("content cache read failed")
		}

		value, err := load()
		if err != nil {
			return nil, err
		}
		raw, err = json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("content cache write failed")
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(result.([]byte), dst)
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
