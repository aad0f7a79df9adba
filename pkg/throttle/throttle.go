// Package throttle rate-limits work that is triggered far more often than it
// needs to run, such as per-frame comparisons against the live aircraft.
package throttle

import (
	"sync"
	"time"
)

// Throttle lets at most one caller through per interval. The first call
// always passes.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	firstRun bool
}

// New creates a throttle with the given window.
func New(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		firstRun: true,
	}
}

// Allow reports whether the window starting at the previous accepted call
// has elapsed by now, and if so starts a new window.
func (t *Throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.firstRun && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	t.firstRun = false
	return true
}

// Interval returns the configured window.
func (t *Throttle) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetInterval changes the window; the current window keeps its start time.
func (t *Throttle) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
}

// Reset makes the next call pass regardless of timing.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.firstRun = true
	t.last = time.Time{}
}
