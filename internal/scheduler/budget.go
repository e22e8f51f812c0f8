package scheduler

import (
	"sync"
	"time"
)

// TimedBudget is a Budget for a long-running process: each window lasts for
// a fixed duration measured on a Clock, after which onExpire is called.
type TimedBudget struct {
	clock  Clock
	window time.Duration

	mu    sync.Mutex
	timer Timer
	gen   uint64
}

// NewTimedBudget returns a budget granting windows of the given length. A
// nil clock uses the system clock.
func NewTimedBudget(clock Clock, window time.Duration) *TimedBudget {
	if clock == nil {
		clock = SystemClock()
	}
	return &TimedBudget{clock: clock, window: window}
}

// Begin starts a window. It refuses while another window is open or when
// the window length is not positive.
func (b *TimedBudget) Begin(onExpire func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil || b.window <= 0 {
		return false
	}
	b.gen++
	gen := b.gen
	b.timer = b.clock.AfterFunc(b.window, func() {
		b.mu.Lock()
		if b.gen != gen || b.timer == nil {
			b.mu.Unlock()
			return
		}
		b.timer = nil
		b.mu.Unlock()
		if onExpire != nil {
			onExpire()
		}
	})
	return true
}

// End closes the current window, if any.
func (b *TimedBudget) End() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
}

// Active reports whether a window is open.
func (b *TimedBudget) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timer != nil
}

var _ Budget = (*TimedBudget)(nil)
