package clock_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"quiz-session-engine/internal/clock"
)

func TestDeadlineTicksDownToExpiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := clock.New(fc).StartDeadline(3 * time.Second)
	defer timer.Cancel()

	expectTick(t, timer, clock.Tick{SecondsRemaining: 3})
	for _, want := range []int{2, 1, 0} {
		advance(t, fc, time.Second)
		expectTick(t, timer, clock.Tick{SecondsRemaining: want})
	}
	expectTick(t, timer, clock.Tick{Expired: true})
	expectClosed(t, timer)
}

func TestCountdownInThePastExpiresImmediately(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := clock.New(fc).StartCountdown(fc.Now().Add(-time.Hour))

	expectTick(t, timer, clock.Tick{SecondsRemaining: 0})
	expectTick(t, timer, clock.Tick{Expired: true})
	expectClosed(t, timer)
}

func TestCountdownRoundsPartialSecondsUp(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := clock.New(fc).StartCountdown(fc.Now().Add(1500 * time.Millisecond))
	defer timer.Cancel()

	expectTick(t, timer, clock.Tick{SecondsRemaining: 2})
	advance(t, fc, 500*time.Millisecond)
	expectTick(t, timer, clock.Tick{SecondsRemaining: 1})
	advance(t, fc, time.Second)
	expectTick(t, timer, clock.Tick{SecondsRemaining: 0})
	expectTick(t, timer, clock.Tick{Expired: true})
}

func TestCancelStopsDeliveryAndIsIdempotent(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := clock.New(fc).StartDeadline(5 * time.Second)

	expectTick(t, timer, clock.Tick{SecondsRemaining: 5})
	timer.Cancel()
	timer.Cancel()
	fc.Advance(10 * time.Second)

	expectClosed(t, timer)
	if !timer.Cancelled() {
		t.Fatalf("expected timer to report cancellation")
	}
}

func TestCancelAfterExpiryIsNoop(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := clock.New(fc).StartDeadline(0)

	expectTick(t, timer, clock.Tick{SecondsRemaining: 0})
	expectTick(t, timer, clock.Tick{Expired: true})
	expectClosed(t, timer)
	timer.Cancel()
	timer.Cancel()
}

func TestRemainingNeverNegative(t *testing.T) {
	cases := map[time.Duration]int{
		-time.Second:            0,
		0:                       0,
		time.Millisecond:        1,
		time.Second:             1,
		time.Second + 1:         2,
		10 * time.Second:        10,
		9*time.Second + 999*1e6: 10,
	}
	for d, want := range cases {
		if got := clock.Remaining(d); got != want {
			t.Fatalf("Remaining(%v) = %d, want %d", d, got, want)
		}
	}
}

func expectTick(t *testing.T, timer *clock.Timer, want clock.Tick) {
	t.Helper()
	select {
	case got, ok := <-timer.C():
		if !ok {
			t.Fatalf("timer closed, expected %+v", want)
		}
		if got != want {
			t.Fatalf("expected tick %+v, got %+v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tick %+v", want)
	}
}

func expectClosed(t *testing.T, timer *clock.Timer) {
	t.Helper()
	select {
	case tick, ok := <-timer.C():
		if ok {
			t.Fatalf("expected closed timer, got %+v", tick)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timer channel not closed")
	}
}

func advance(t *testing.T, fc *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("timer never armed: %v", err)
	}
	fc.Advance(d)
}
