package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamchapman/jottly/internal/location"
)

type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in order on the calling
// goroutine. Timers scheduled by callbacks fire too if they fall due.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *manualTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

type fakeProvider struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (p *fakeProvider) StartUpdates() { p.mu.Lock(); p.starts++; p.mu.Unlock() }
func (p *fakeProvider) StopUpdates()  { p.mu.Lock(); p.stops++; p.mu.Unlock() }

func (p *fakeProvider) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops
}

type fakeBudget struct {
	mu       sync.Mutex
	begins   int
	ends     int
	onExpire func()
}

func (b *fakeBudget) Begin(onExpire func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.begins++
	b.onExpire = onExpire
	return true
}

func (b *fakeBudget) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ends++
}

func (b *fakeBudget) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begins, b.ends
}

func (b *fakeBudget) expire() {
	b.mu.Lock()
	f := b.onExpire
	b.mu.Unlock()
	f()
}

type fakeLifecycle struct {
	background   func()
	foreground   func()
	unsubscribed int
}

func (l *fakeLifecycle) Subscribe(onBackground, onForeground func()) func() {
	l.background = onBackground
	l.foreground = onForeground
	return func() { l.unsubscribed++ }
}

type recordingDelegate struct {
	mu       sync.Mutex
	updates  [][]location.Fix
	failures []error
	statuses []AuthorizationStatus
	onUpdate func()
}

func (d *recordingDelegate) DidUpdateLocations(fixes []location.Fix) {
	d.mu.Lock()
	d.updates = append(d.updates, fixes)
	hook := d.onUpdate
	d.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (d *recordingDelegate) DidFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

func (d *recordingDelegate) DidChangeAuthorization(status AuthorizationStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, status)
}

func (d *recordingDelegate) updateCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.updates)
}

type harness struct {
	clock     *manualClock
	provider  *fakeProvider
	budget    *fakeBudget
	lifecycle *fakeLifecycle
	delegate  *recordingDelegate
	sched     *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     &manualClock{},
		provider:  &fakeProvider{},
		budget:    &fakeBudget{},
		lifecycle: &fakeLifecycle{},
		delegate:  &recordingDelegate{},
	}
	h.sched = New(h.delegate, Options{
		Provider:  h.provider,
		Budget:    h.budget,
		Lifecycle: h.lifecycle,
		Clock:     h.clock,
	})
	t.Cleanup(h.sched.Stop)
	return h
}

func fix(accuracy float64) location.Fix {
	return location.Fix{Latitude: 51.5, Longitude: -0.12, HorizontalAccuracy: accuracy}
}

func TestStartClampsParameters(t *testing.T) {
	h := newHarness(t)

	h.sched.Start(time.Second, 0.001, -5*time.Second)

	assert.Equal(t, 2*time.Second, h.sched.Interval())
	assert.Equal(t, 5.0, h.sched.Threshold())
	assert.Equal(t, NoTimeout, h.sched.Timeout())
	assert.True(t, h.sched.IsRunning())
	assert.Equal(t, ActivePolling, h.sched.State())
}

func TestStartClampsLongIntervalToMaximum(t *testing.T) {
	h := newHarness(t)

	h.sched.Start(time.Hour, 50, 0)

	assert.Equal(t, 170*time.Second, h.sched.Interval())
	assert.Equal(t, 50.0, h.sched.Threshold())
}

func TestAccurateFixDeliveredOnce(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 20, 0)

	h.sched.HandleFixes([]location.Fix{fix(15)})
	h.sched.HandleFixes([]location.Fix{fix(15)})
	h.clock.Advance(9 * time.Second)

	require.Equal(t, 1, h.delegate.updateCount())
	assert.Equal(t, []location.Fix{fix(15)}, h.delegate.updates[0])
	assert.Equal(t, Escalated, h.sched.State())

	starts, stops := h.provider.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	begins, _ := h.budget.counts()
	assert.Equal(t, 1, begins)
}

func TestTimeoutDeliversBufferedFixes(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 1, 5*time.Second)

	h.sched.HandleFixes([]location.Fix{fix(50)})
	assert.Equal(t, Waiting, h.sched.State())

	h.clock.Advance(4 * time.Second)
	assert.Equal(t, 0, h.delegate.updateCount())

	h.clock.Advance(time.Second)
	require.Equal(t, 1, h.delegate.updateCount())
	assert.Equal(t, []location.Fix{fix(50)}, h.delegate.updates[0])
	assert.Equal(t, Escalated, h.sched.State())

	// The wait timer was cancelled with the timeout.
	h.clock.Advance(4 * time.Second)
	assert.Equal(t, 1, h.delegate.updateCount())
}

func TestTimeoutWithoutFixesDeliversEmptyBatch(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 1, 5*time.Second)

	h.clock.Advance(5 * time.Second)

	require.Equal(t, 1, h.delegate.updateCount())
	assert.Empty(t, h.delegate.updates[0])
}

func TestWaitTimerRechecksUntilAccurate(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 20, 0)

	h.sched.HandleFixes([]location.Fix{fix(80)})
	h.clock.Advance(3 * time.Second)
	assert.Equal(t, Waiting, h.sched.State())
	assert.Equal(t, 0, h.delegate.updateCount())

	h.sched.HandleFixes([]location.Fix{fix(60), fix(10)})
	require.Equal(t, 1, h.delegate.updateCount())
	assert.Len(t, h.delegate.updates[0], 2)

	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 1, h.delegate.updateCount())
}

func TestInaccurateFixesArmSingleWaitTimer(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 20, 0)

	for range 5 {
		h.sched.HandleFixes([]location.Fix{fix(90)})
	}

	pending := 0
	h.clock.mu.Lock()
	for _, tm := range h.clock.timers {
		if !tm.stopped && !tm.fired {
			pending++
		}
	}
	h.clock.mu.Unlock()
	assert.Equal(t, 1, pending)
}

func TestRepollRestartsUpdatesAndReleasesBudget(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 20, 0)
	h.sched.HandleFixes([]location.Fix{fix(5)})

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, ActivePolling, h.sched.State())
	starts, _ := h.provider.counts()
	assert.Equal(t, 2, starts)

	h.clock.Advance(time.Second)
	begins, ends := h.budget.counts()
	assert.Equal(t, 1, begins)
	assert.Equal(t, 1, ends)
}

func TestRestartGraceRenewsBudgetWhenUpdatesStopped(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 20, 0)
	h.sched.HandleFixes([]location.Fix{fix(5)})

	h.clock.Advance(10 * time.Second)
	h.sched.HandleFixes([]location.Fix{fix(5)})
	require.Equal(t, 2, h.delegate.updateCount())

	h.clock.Advance(time.Second)
	begins, ends := h.budget.counts()
	assert.Equal(t, 2, begins)
	assert.Equal(t, 1, ends)
	assert.Equal(t, Escalated, h.sched.State())
}

func TestTimeoutRearmedOnEachPoll(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 1, 5*time.Second)

	h.clock.Advance(5 * time.Second)
	require.Equal(t, 1, h.delegate.updateCount())

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, ActivePolling, h.sched.State())

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 2, h.delegate.updateCount())
}

func TestBudgetExpiryResumesPolling(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(60*time.Second, 20, 0)
	h.sched.HandleFixes([]location.Fix{fix(5)})

	h.budget.expire()

	assert.Equal(t, ActivePolling, h.sched.State())
	starts, _ := h.provider.counts()
	assert.Equal(t, 2, starts)

	// The re-poll timer was replaced by the expiry.
	h.clock.Advance(60 * time.Second)
	starts, _ = h.provider.counts()
	assert.Equal(t, 2, starts)
}

func TestStopIsIdempotentAndSilencesTimers(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 1, 5*time.Second)
	h.sched.HandleFixes([]location.Fix{fix(50)})

	h.sched.Stop()
	h.sched.Stop()

	assert.Equal(t, Idle, h.sched.State())
	assert.False(t, h.sched.IsRunning())
	assert.Equal(t, 1, h.lifecycle.unsubscribed)
	_, stops := h.provider.counts()
	assert.Equal(t, 1, stops)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 0, h.delegate.updateCount())

	h.sched.HandleFixes([]location.Fix{fix(1)})
	assert.Equal(t, 0, h.delegate.updateCount())
}

func TestStopEndsBudget(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 20, 0)
	h.sched.HandleFixes([]location.Fix{fix(5)})

	h.sched.Stop()

	begins, ends := h.budget.counts()
	assert.Equal(t, 1, begins)
	assert.Equal(t, 1, ends)
}

func TestRestartIsImplicitStop(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 1, 5*time.Second)
	h.sched.Start(20*time.Second, 30, 0)

	// The first cycle's timeout must not fire.
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, 0, h.delegate.updateCount())
	assert.Equal(t, 20*time.Second, h.sched.Interval())
	assert.Equal(t, 1, h.lifecycle.unsubscribed)
}

func TestEmptyBatchIgnored(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 20, 0)

	h.sched.HandleFixes(nil)

	assert.Equal(t, ActivePolling, h.sched.State())
	assert.Equal(t, 0, h.delegate.updateCount())
}

func TestLifecycleTransitionsManageBudget(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 20, 0)

	h.lifecycle.background()
	begins, ends := h.budget.counts()
	assert.Equal(t, 1, begins)
	assert.Equal(t, 0, ends)

	h.lifecycle.foreground()
	begins, ends = h.budget.counts()
	assert.Equal(t, 1, begins)
	assert.Equal(t, 1, ends)
}

func TestErrorsAndAuthorizationRelayed(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(10*time.Second, 20, 0)
	boom := errors.New("boom")

	h.sched.HandleError(boom)
	h.sched.HandleAuthorizationChange(AuthorizationDenied)

	assert.Equal(t, []error{boom}, h.delegate.failures)
	assert.Equal(t, []AuthorizationStatus{AuthorizationDenied}, h.delegate.statuses)
	assert.Equal(t, ActivePolling, h.sched.State())
}

func TestDelegateMayStopScheduler(t *testing.T) {
	h := newHarness(t)
	h.delegate.onUpdate = h.sched.Stop
	h.sched.Start(10*time.Second, 20, 0)

	h.sched.HandleFixes([]location.Fix{fix(5)})

	assert.Equal(t, Idle, h.sched.State())
	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.delegate.updateCount())
}

func TestTimedBudgetWindow(t *testing.T) {
	clock := &manualClock{}
	b := NewTimedBudget(clock, 30*time.Second)
	expired := 0

	require.True(t, b.Begin(func() { expired++ }))
	assert.False(t, b.Begin(nil))
	assert.True(t, b.Active())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, expired)
	assert.False(t, b.Active())

	require.True(t, b.Begin(func() { expired++ }))
	b.End()
	clock.Advance(time.Minute)
	assert.Equal(t, 1, expired)
}
