package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"quiz-session-engine/internal/clock"
	"quiz-session-engine/internal/domain"
)

// SessionListener receives the side effects of session transitions.
// Calls happen outside the session lock and must not block.
type SessionListener interface {
	AnswerRecorded(s *Session, answer domain.Answer)
	SessionCompleted(s *Session, result domain.SessionResult)
}

// SessionParams describes the session being created.
type SessionParams struct {
	ID            string
	EventID       string
	QuizID        string
	ParticipantID string
	// StartAt is the countdown target; zero starts immediately.
	StartAt time.Time
	Quiz    domain.Quiz
}

// Session is one participant's attempt at a quiz. It exclusively owns its state;
// timers only feed it events through handleTick.
type Session struct {
	id            string
	eventID       string
	quizID        string
	participantID string
	startAt       time.Time
	questions     []domain.Question
	clock         *clock.SessionClock
	listener      SessionListener

	mu          sync.Mutex
	state       domain.SessionState
	index       int
	answers     []domain.Answer
	result      *domain.SessionResult
	failure     error
	timer       *clock.Timer
	gen         uint64
	startedAt   time.Time
	deadline    time.Time
	finishedAt  time.Time
	subscribers map[chan domain.SessionUpdate]struct{}
}

// effects are collected under the lock and delivered to the listener after it is released.
type effects struct {
	answers []domain.Answer
	result  *domain.SessionResult
}

func NewSession(params SessionParams, clk *clock.SessionClock, listener SessionListener) *Session {
	if clk == nil {
		clk = clock.New(nil)
	}
	return &Session{
		id:            params.ID,
		eventID:       params.EventID,
		quizID:        params.QuizID,
		participantID: params.ParticipantID,
		startAt:       params.StartAt,
		questions:     params.Quiz.Snapshot(),
		clock:         clk,
		listener:      listener,
		state:         domain.StateIdle,
		subscribers:   make(map[chan domain.SessionUpdate]struct{}),
	}
}

func (s *Session) ID() string            { return s.id }
func (s *Session) EventID() string       { return s.eventID }
func (s *Session) QuizID() string        { return s.quizID }
func (s *Session) ParticipantID() string { return s.participantID }

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Answers returns a copy of the answer log.
func (s *Session) Answers() []domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Answer(nil), s.answers...)
}

// FinishedAt is when the session reached a terminal state (zero while running).
func (s *Session) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

// Begin moves Idle -> CountingDown. Empty or malformed quizzes fail the session.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateIdle {
		return domain.ErrSessionNotActive
	}
	if len(s.questions) == 0 {
		s.failLocked(domain.ErrEmptyQuiz)
		return domain.ErrEmptyQuiz
	}
	for _, q := range s.questions {
		if err := q.Validate(); err != nil {
			s.failLocked(err)
			return err
		}
	}

	s.state = domain.StateCountingDown
	s.deadline = s.startAt
	if s.deadline.IsZero() {
		s.deadline = s.clock.Now()
	}
	s.startTimerLocked(s.clock.StartCountdown(s.deadline))
	s.broadcastLocked(s.updateLocked())
	return nil
}

// SkipCountdown starts the first question without waiting for the countdown.
func (s *Session) SkipCountdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateCountingDown {
		return domain.ErrSessionNotActive
	}
	s.activateLocked(0)
	return nil
}

// Submit answers the active question. questionID is optional; when given it must
// name the active question, and naming an already resolved one is a late submission.
func (s *Session) Submit(questionID, optionID string) (domain.Answer, error) {
	s.mu.Lock()

	if s.state != domain.StateQuestionActive {
		s.mu.Unlock()
		return domain.Answer{}, domain.ErrSessionNotActive
	}

	current := s.questions[s.index]
	if questionID != "" && questionID != current.ID {
		err := domain.ErrQuestionNotFound
		if s.resolvedLocked(questionID) {
			err = domain.ErrLateSubmission
		}
		s.mu.Unlock()
		return domain.Answer{}, err
	}

	now := s.clock.Now()
	if !now.Before(s.deadline) {
		// the deadline is authoritative even if its timer has not been observed yet
		fx := s.timeoutLocked()
		s.mu.Unlock()
		s.flush(fx)
		return domain.Answer{}, domain.ErrLateSubmission
	}

	if !current.HasOption(optionID) {
		s.mu.Unlock()
		return domain.Answer{}, domain.ErrOptionNotFound
	}

	spent := int(now.Sub(s.startedAt) / time.Second)
	if spent < 0 {
		spent = 0
	}
	if spent > current.TimeLimitSeconds {
		spent = current.TimeLimitSeconds
	}

	fx := s.recordLocked(Evaluate(current, &optionID, spent), domain.StateSubmitted)
	s.mu.Unlock()
	s.flush(fx)
	return fx.answers[0], nil
}

// Complete runs the completion transition. It is idempotent: once completed the
// cached result is returned without recomputation.
func (s *Session) Complete() (domain.SessionResult, error) {
	s.mu.Lock()
	var fx effects
	result, err := s.completeLocked(&fx)
	s.mu.Unlock()
	s.flush(fx)
	return result, err
}

// Result returns the cached result of a completed session.
func (s *Session) Result() (domain.SessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.result != nil:
		return copyResult(*s.result), nil
	case s.state == domain.StateFailed:
		return domain.SessionResult{}, s.failure
	case s.state == domain.StateAbandoned:
		return domain.SessionResult{}, domain.ErrSessionNotActive
	default:
		return domain.SessionResult{}, domain.ErrSessionNotComplete
	}
}

// Tick reports the phase and seconds left on the running timer.
func (s *Session) Tick() domain.TickState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickLocked(s.remainingLocked())
}

// Abandon cancels the session's timers. Abandoned sessions never complete.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return
	}
	s.cancelTimerLocked()
	s.state = domain.StateAbandoned
	s.finishedAt = s.clock.Now()
	s.broadcastLocked(s.updateLocked())
}

// ReportError forwards a recoverable failure to watchers.
func (s *Session) ReportError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	update := s.updateLocked()
	update.Error = err.Error()
	s.broadcastLocked(update)
}

// Watch returns a channel of session updates starting with the current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Watch() (<-chan domain.SessionUpdate, func()) {
	ch := make(chan domain.SessionUpdate, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.updateLocked()
	if s.state == domain.StateQuestionActive {
		q := s.questions[s.index].Public()
		initial.Question = &q
	}
	if s.result != nil {
		r := copyResult(*s.result)
		initial.Result = &r
	}
	ch <- initial
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close detaches all watchers and stops timers; used when the session is released.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Session) handleTick(gen uint64, tick clock.Tick) {
	s.mu.Lock()
	if gen != s.gen || s.state.Terminal() {
		s.mu.Unlock()
		return
	}

	var fx effects
	if !tick.Expired {
		s.broadcastLocked(s.updateWithLocked(tick.SecondsRemaining))
	} else {
		switch s.state {
		case domain.StateCountingDown:
			s.activateLocked(0)
		case domain.StateQuestionActive:
			fx = s.timeoutLocked()
		}
	}
	s.mu.Unlock()
	s.flush(fx)
}

func (s *Session) activateLocked(i int) {
	q := s.questions[i]
	s.index = i
	s.state = domain.StateQuestionActive
	s.startedAt = s.clock.Now()
	s.deadline = s.startedAt.Add(q.TimeLimit())
	s.startTimerLocked(s.clock.StartCountdown(s.deadline))

	update := s.updateLocked()
	public := q.Public()
	update.Question = &public
	s.broadcastLocked(update)
}

func (s *Session) timeoutLocked() effects {
	q := s.questions[s.index]
	log.Debug().
		Str("session_id", s.id).
		Str("question_id", q.ID).
		Msg("question deadline reached")
	return s.recordLocked(Evaluate(q, nil, q.TimeLimitSeconds), domain.StateTimedOut)
}

// recordLocked appends the answer for the active question exactly once and advances.
func (s *Session) recordLocked(answer domain.Answer, state domain.SessionState) effects {
	var fx effects
	s.cancelTimerLocked()
	answer.Index = len(s.answers)
	s.answers = append(s.answers, answer)
	s.state = state
	fx.answers = append(fx.answers, answer)

	update := s.updateLocked()
	recorded := answer
	update.Answer = &recorded
	s.broadcastLocked(update)

	if len(s.answers) < len(s.questions) {
		s.activateLocked(len(s.answers))
		return fx
	}
	if _, err := s.completeLocked(&fx); err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("session completion failed")
	}
	return fx
}

func (s *Session) completeLocked(fx *effects) (domain.SessionResult, error) {
	if s.result != nil {
		return copyResult(*s.result), nil
	}
	switch s.state {
	case domain.StateFailed:
		return domain.SessionResult{}, s.failure
	case domain.StateAbandoned, domain.StateIdle:
		return domain.SessionResult{}, domain.ErrSessionNotActive
	}
	if len(s.answers) != len(s.questions) {
		return domain.SessionResult{}, domain.ErrSessionNotComplete
	}

	result, err := Aggregate(s.answers, len(s.questions))
	if err != nil {
		s.failLocked(err)
		return domain.SessionResult{}, err
	}
	result.SessionID = s.id
	result.EventID = s.eventID
	result.ParticipantID = s.participantID

	s.cancelTimerLocked()
	s.state = domain.StateCompleted
	s.finishedAt = s.clock.Now()
	s.result = &result
	fx.result = &result

	update := s.updateLocked()
	r := copyResult(result)
	update.Result = &r
	s.broadcastLocked(update)

	log.Info().
		Str("session_id", s.id).
		Str("event_id", s.eventID).
		Str("participant_id", s.participantID).
		Int("score", result.Score).
		Msg("session completed")
	return copyResult(result), nil
}

func (s *Session) failLocked(err error) {
	s.cancelTimerLocked()
	s.state = domain.StateFailed
	s.failure = err
	s.finishedAt = s.clock.Now()
	update := s.updateLocked()
	update.Error = err.Error()
	s.broadcastLocked(update)
	log.Warn().Err(err).Str("session_id", s.id).Msg("session failed")
}

func (s *Session) resolvedLocked(questionID string) bool {
	for _, a := range s.answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

func (s *Session) startTimerLocked(t *clock.Timer) {
	s.cancelTimerLocked()
	s.timer = t
	gen := s.gen
	go func() {
		for tick := range t.C() {
			if t.Cancelled() {
				continue
			}
			s.handleTick(gen, tick)
		}
	}()
}

// cancelTimerLocked stops the running timer; bumping gen discards anything it already emitted.
func (s *Session) cancelTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Cancel()
		s.timer = nil
	}
}

func (s *Session) remainingLocked() int {
	switch s.state {
	case domain.StateCountingDown, domain.StateQuestionActive:
		return clock.Remaining(s.deadline.Sub(s.clock.Now()))
	}
	return 0
}

func (s *Session) tickLocked(secs int) domain.TickState {
	return domain.TickState{
		Phase:            s.state,
		QuestionIndex:    s.index,
		QuestionCount:    len(s.questions),
		SecondsRemaining: secs,
	}
}

func (s *Session) updateLocked() domain.SessionUpdate {
	return s.updateWithLocked(s.remainingLocked())
}

func (s *Session) updateWithLocked(secs int) domain.SessionUpdate {
	return domain.SessionUpdate{SessionID: s.id, Tick: s.tickLocked(secs)}
}

func (s *Session) broadcastLocked(update domain.SessionUpdate) {
	for ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			// slow watcher: drop its oldest pending update
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

func (s *Session) flush(fx effects) {
	if s.listener == nil {
		return
	}
	for _, a := range fx.answers {
		s.listener.AnswerRecorded(s, a)
	}
	if fx.result != nil {
		s.listener.SessionCompleted(s, copyResult(*fx.result))
	}
}

func copyResult(r domain.SessionResult) domain.SessionResult {
	r.Badges = append([]string{}, r.Badges...)
	return r
}
