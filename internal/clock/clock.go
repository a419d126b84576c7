// Package clock produces second-granularity countdown streams for quiz sessions.
// It owns no quiz data; consumers decide what an expiry means.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Tick is one observation of a running countdown. The last value delivered on a
// timer that was not cancelled is always {SecondsRemaining: 0, Expired: true},
// preceded by a {SecondsRemaining: 0} tick.
type Tick struct {
	SecondsRemaining int
	Expired          bool
}

// SessionClock starts countdowns against an injectable clock.
// In production use clockwork.NewRealClock(), in tests a FakeClock.
type SessionClock struct {
	clock clockwork.Clock
}

func New(c clockwork.Clock) *SessionClock {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &SessionClock{clock: c}
}

// Now exposes the underlying clock reading.
func (c *SessionClock) Now() time.Time {
	return c.clock.Now()
}

// AfterFunc runs f in its own goroutine once d has elapsed.
func (c *SessionClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	return c.clock.AfterFunc(d, f)
}

// StartCountdown ticks down to target. A target in the past yields 0 then Expired immediately.
func (c *SessionClock) StartCountdown(target time.Time) *Timer {
	t := newTimer(target)
	go c.run(t)
	return t
}

// StartDeadline ticks down a duration measured from now.
func (c *SessionClock) StartDeadline(d time.Duration) *Timer {
	return c.StartCountdown(c.clock.Now().Add(d))
}

// Timer is a running countdown. Ticks are delivered on C until expiry or Cancel,
// after which the channel is closed.
type Timer struct {
	target time.Time
	ch     chan Tick
	done   chan struct{}
	once   sync.Once
}

func newTimer(target time.Time) *Timer {
	return &Timer{
		target: target,
		ch:     make(chan Tick),
		done:   make(chan struct{}),
	}
}

// C returns the tick stream.
func (t *Timer) C() <-chan Tick {
	return t.ch
}

// Target is the instant at which the timer expires.
func (t *Timer) Target() time.Time {
	return t.target
}

// Cancel stops the timer. Safe to call repeatedly and after expiry.
func (t *Timer) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether Cancel was called.
func (t *Timer) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (c *SessionClock) run(t *Timer) {
	defer close(t.ch)
	for {
		remaining := t.target.Sub(c.clock.Now())
		secs := Remaining(remaining)
		if !t.send(Tick{SecondsRemaining: secs}) {
			return
		}
		if secs == 0 {
			t.send(Tick{Expired: true})
			return
		}

		// sleep until the displayed second changes
		wait := remaining - time.Duration(secs-1)*time.Second
		timer := c.clock.NewTimer(wait)
		select {
		case <-timer.Chan():
		case <-t.done:
			timer.Stop()
			return
		}
	}
}

func (t *Timer) send(tick Tick) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.ch <- tick:
		return true
	case <-t.done:
		return false
	}
}

// Remaining converts a duration into whole seconds left, rounding up and never negative.
func Remaining(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
