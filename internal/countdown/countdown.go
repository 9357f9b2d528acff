// Package countdown keeps the local per-turn clock.
//
// The server only tells the client how long a turn lasts (on an event) or how
// long is left (on a snapshot); the client counts down on its own so the display
// never depends on network round-trips.
package countdown

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer counts whole seconds down to zero. It is not safe for concurrent use:
// the owner calls Tick whenever C fires, on the same goroutine that calls Reset.
type Timer struct {
	clock     clockwork.Clock
	ticker    clockwork.Ticker
	remaining int
}

// New returns a stopped timer at zero. A nil clock means the real clock.
func New(clock clockwork.Clock) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{clock: clock}
}

// Reset overwrites the remaining seconds and restarts the tick phase, so the
// next decrement happens one full second from now. Negative values clamp to 0.
func (t *Timer) Reset(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	t.stopTicker()
	t.remaining = seconds
	if seconds > 0 {
		t.ticker = t.clock.NewTicker(time.Second)
	}
}

// C fires once per second while the timer is running. It returns nil when the
// timer is halted, which blocks forever in a select.
func (t *Timer) C() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}
	return t.ticker.Chan()
}

// Tick applies one elapsed second and returns the new remaining value. The
// timer halts itself on reaching zero.
func (t *Timer) Tick() int {
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining == 0 {
		t.stopTicker()
	}
	return t.remaining
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int {
	return t.remaining
}

// Running reports whether the timer is still counting.
func (t *Timer) Running() bool {
	return t.ticker != nil
}

// Stop halts ticking and keeps the current value.
func (t *Timer) Stop() {
	t.stopTicker()
}

func (t *Timer) stopTicker() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}
