package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"quiz-session-engine/internal/clock"
	"quiz-session-engine/internal/domain"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// ContentRepository supplies immutable event and quiz content (from cache/backing store).
type ContentRepository interface {
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AnswerLog is the durable answer log. Retries belong to the implementation.
type AnswerLog interface {
	AppendAnswer(ctx context.Context, sessionID string, answer domain.Answer) error
}

// ProfileStore accumulates participant rewards.
type ProfileStore interface {
	// ApplyReward adds xp and any badges not yet held, returning the badges that were new.
	ApplyReward(ctx context.Context, participantID string, xp int, badges []string) ([]string, error)
	GetProfile(ctx context.Context, participantID string) (domain.Profile, error)
}

// QuizService contains the quiz session use cases exposed to the presentation layer.
type QuizService struct {
	sessions    SessionRepository
	content     ContentRepository
	answers     AnswerLog
	leaderboard *LeaderboardSync
	profiles    ProfileStore
	subscriber  Subscriber
	clock       *clock.SessionClock
	newID       func() string
	retention   time.Duration
	timeout     time.Duration

	inflight sync.WaitGroup
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithProfiles enables reward application on completion.
func WithProfiles(p ProfileStore) Option {
	return func(s *QuizService) { s.profiles = p }
}

// WithSubscriber enables leaderboard change subscriptions.
func WithSubscriber(sub Subscriber) Option {
	return func(s *QuizService) { s.subscriber = sub }
}

// WithClock replaces the real clock, mainly for tests.
func WithClock(c *clock.SessionClock) Option {
	return func(s *QuizService) { s.clock = c }
}

// WithIDGenerator replaces uuid session ids, mainly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *QuizService) { s.newID = fn }
}

// WithRetention keeps terminal sessions readable for d before releasing them.
// Zero keeps them until abandoned explicitly.
func WithRetention(d time.Duration) Option {
	return func(s *QuizService) { s.retention = d }
}

// WithWriteTimeout bounds each asynchronous durable write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *QuizService) { s.timeout = d }
}

func NewQuizService(sessions SessionRepository, content ContentRepository, answers AnswerLog, leaderboard *LeaderboardSync, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:    sessions,
		content:     content,
		answers:     answers,
		leaderboard: leaderboard,
		clock:       clock.New(nil),
		newID:       func() string { return uuid.NewString() },
		timeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BeginSession snapshots the event's quiz and starts the countdown for a participant.
func (s *QuizService) BeginSession(ctx context.Context, eventID, participantID string) (string, error) {
	event, err := s.content.GetEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	if event.Closed(s.clock.Now()) {
		return "", domain.ErrEventClosed
	}
	quiz, err := s.content.GetQuiz(ctx, event.QuizID)
	if err != nil {
		return "", err
	}

	session := NewSession(SessionParams{
		ID:            s.newID(),
		EventID:       event.ID,
		QuizID:        quiz.ID,
		ParticipantID: participantID,
		StartAt:       event.StartTime,
		Quiz:          quiz,
	}, s.clock, s)
	if err := session.Begin(); err != nil {
		return "", err
	}
	s.sessions.Put(session)

	log.Info().
		Str("session_id", session.ID()).
		Str("event_id", eventID).
		Str("participant_id", participantID).
		Int("questions", len(quiz.Questions)).
		Msg("session started")
	return session.ID(), nil
}

// SkipCountdown starts the first question immediately.
func (s *QuizService) SkipCountdown(_ context.Context, sessionID string) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	return session.SkipCountdown()
}

// SubmitAnswer records the participant's answer for the active question.
func (s *QuizService) SubmitAnswer(_ context.Context, sessionID, questionID, optionID string) (domain.Answer, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.Answer{}, err
	}
	return session.Submit(questionID, optionID)
}

// Tick reports the phase and seconds remaining for rendering timers.
func (s *QuizService) Tick(_ context.Context, sessionID string) (domain.TickState, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.TickState{}, err
	}
	return session.Tick(), nil
}

// GetResult returns the result of a completed session.
func (s *QuizService) GetResult(_ context.Context, sessionID string) (domain.SessionResult, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return domain.SessionResult{}, err
	}
	return session.Result()
}

// GetLeaderboard returns the event's ranking, recomputed from the store on each call.
func (s *QuizService) GetLeaderboard(ctx context.Context, eventID string) ([]domain.LeaderboardEntry, error) {
	return s.leaderboard.Leaderboard(ctx, eventID)
}

// GetProfile returns a participant's accumulated rewards.
func (s *QuizService) GetProfile(ctx context.Context, participantID string) (domain.Profile, error) {
	if s.profiles == nil {
		return domain.Profile{ParticipantID: participantID, Badges: []string{}}, nil
	}
	return s.profiles.GetProfile(ctx, participantID)
}

// Watch streams session updates. The caller must invoke the returned cancel function.
func (s *QuizService) Watch(_ context.Context, sessionID string) (<-chan domain.SessionUpdate, func(), error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Watch()
	return ch, cancel, nil
}

// SubscribeLeaderboard returns change signals for an event's leaderboard.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) SubscribeLeaderboard(ctx context.Context, eventID string) (<-chan domain.LeaderboardNotification, func(), error) {
	if s.subscriber == nil {
		ch := make(chan domain.LeaderboardNotification)
		return ch, func() {}, nil
	}
	return s.subscriber.Subscribe(ctx, eventID)
}

// Abandon drops an unfinished session and cancels its timers.
func (s *QuizService) Abandon(_ context.Context, sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	if session.State() == domain.StateCompleted {
		return
	}
	session.Abandon()
	s.sessions.Delete(sessionID)
	session.Close()
	log.Info().Str("session_id", sessionID).Msg("session abandoned")
}

// Drain waits for in-flight durable writes to finish.
func (s *QuizService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AnswerRecorded persists the answer without blocking the session.
func (s *QuizService) AnswerRecorded(session *Session, answer domain.Answer) {
	s.async(func(ctx context.Context) {
		if err := s.answers.AppendAnswer(ctx, session.ID(), answer); err != nil {
			err = fmt.Errorf("%w: answer %s: %v", domain.ErrPersistenceWrite, answer.QuestionID, err)
			log.Error().Err(err).Str("session_id", session.ID()).Msg("answer not persisted")
			session.ReportError(err)
		}
	})
}

// SessionCompleted publishes the result and applies rewards.
func (s *QuizService) SessionCompleted(session *Session, result domain.SessionResult) {
	s.async(func(ctx context.Context) {
		if _, err := s.leaderboard.Upsert(ctx, result.EventID, result.ParticipantID, result.Score, result.CorrectCount, result.TotalCount); err != nil {
			if !errors.Is(err, domain.ErrPersistenceWrite) && !errors.Is(err, domain.ErrConflict) {
				err = fmt.Errorf("%w: leaderboard: %v", domain.ErrPersistenceWrite, err)
			}
			log.Error().Err(err).Str("session_id", session.ID()).Msg("leaderboard upsert failed")
			session.ReportError(err)
		}

		if s.profiles != nil {
			added, err := s.profiles.ApplyReward(ctx, result.ParticipantID, result.RewardPoints, result.Badges)
			if err != nil {
				err = fmt.Errorf("%w: reward: %v", domain.ErrPersistenceWrite, err)
				log.Error().Err(err).Str("session_id", session.ID()).Msg("reward not applied")
				session.ReportError(err)
			} else if len(added) > 0 {
				log.Info().
					Str("participant_id", result.ParticipantID).
					Strs("badges", added).
					Msg("badges earned")
			}
		}

		if s.retention > 0 {
			id := session.ID()
			s.clock.AfterFunc(s.retention, func() {
				s.sessions.Delete(id)
				session.Close()
			})
		}
	})
}

func (s *QuizService) async(fn func(ctx context.Context)) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *QuizService) session(sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}
