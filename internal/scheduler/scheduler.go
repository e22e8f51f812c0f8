package scheduler

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hamchapman/jottly/internal/location"
)

// Options carries the collaborators of a Scheduler. Provider is required;
// a nil Budget or Lifecycle disables that concern.
type Options struct {
	Provider  Provider
	Budget    Budget
	Lifecycle Lifecycle
	Clock     Clock
	Logger    *slog.Logger
	Limits    Limits
}

// Scheduler obtains a fix that meets an accuracy threshold within a time
// budget, alternating between active polling and a timed re-poll window.
type Scheduler struct {
	delegate  Delegate
	provider  Provider
	budget    Budget
	lifecycle Lifecycle
	clock     Clock
	logger    *slog.Logger
	limits    Limits

	mu           sync.Mutex
	state        State
	running      bool
	updating     bool
	budgetActive bool
	budgetGen    uint64
	interval     time.Duration
	threshold    float64
	timeout      time.Duration
	lastFixes    []location.Fix
	unsubscribe  func()

	wait      timerSlot
	repoll    timerSlot
	deadline  timerSlot
	restart   timerSlot
	timerSeed uint64
}

type timerSlot struct {
	timer Timer
	gen   uint64
}

// New builds an idle scheduler reporting to delegate.
func New(delegate Delegate, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		delegate:  delegate,
		provider:  opts.Provider,
		budget:    opts.Budget,
		lifecycle: opts.Lifecycle,
		clock:     opts.Clock,
		logger:    opts.Logger,
		limits:    opts.Limits.withDefaults(),
	}
}

// Start begins an escalation cycle. The interval is clamped to the configured
// bounds, the threshold is raised to the accuracy floor and a timeout <= 0
// means NoTimeout. A running scheduler is stopped first.
func (s *Scheduler) Start(pollInterval time.Duration, accuracyThreshold float64, timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.stopLocked()
	}

	s.interval = s.limits.clampInterval(pollInterval)
	s.threshold = math.Max(s.limits.AccuracyFloor, accuracyThreshold)
	s.timeout = max(timeout, NoTimeout)
	s.running = true
	s.lastFixes = nil

	s.logger.Info("scheduler started",
		"interval", s.interval,
		"threshold", s.threshold,
		"timeout", s.timeout,
	)

	s.subscribeLocked()
	s.startUpdatesLocked()
}

// Stop cancels every timer, ends the background budget and returns to Idle.
// It is safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// State reports the current position in the cycle.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the effective re-poll interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Threshold returns the effective accuracy threshold.
func (s *Scheduler) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// Timeout returns the effective timeout; NoTimeout when disabled.
func (s *Scheduler) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

func (s *Scheduler) stopLocked() {
	wasRunning := s.running
	s.running = false

	s.cancelTimer(&s.wait)
	s.cancelTimer(&s.repoll)
	s.cancelTimer(&s.deadline)
	s.cancelTimer(&s.restart)
	s.stopUpdatesLocked()
	s.endBudgetLocked()
	s.unsubscribeLocked()
	s.state = Idle

	if wasRunning {
		s.logger.Info("scheduler stopped")
	}
}

func (s *Scheduler) startUpdatesLocked() {
	s.updating = true
	s.state = ActivePolling
	if s.provider != nil {
		s.provider.StartUpdates()
	}
	if s.timeout > NoTimeout && s.deadline.timer == nil {
		s.armTimer(&s.deadline, s.timeout, s.onDeadline)
	}
}

func (s *Scheduler) stopUpdatesLocked() {
	if !s.updating {
		return
	}
	s.updating = false
	if s.provider != nil {
		s.provider.StopUpdates()
	}
}

func (s *Scheduler) beginBudgetLocked() {
	if s.budget == nil || s.budgetActive {
		return
	}
	s.budgetGen++
	gen := s.budgetGen
	s.budgetActive = s.budget.Begin(func() { s.onBudgetExpired(gen) })
	if s.budgetActive {
		s.logger.Debug("background budget started")
	}
}

func (s *Scheduler) endBudgetLocked() {
	if s.budget == nil || !s.budgetActive {
		return
	}
	s.budget.End()
	s.budgetActive = false
	s.logger.Debug("background budget ended")
}

func (s *Scheduler) subscribeLocked() {
	s.unsubscribeLocked()
	if s.lifecycle == nil {
		return
	}
	s.unsubscribe = s.lifecycle.Subscribe(s.onEnterBackground, s.onBecomeActive)
}

func (s *Scheduler) unsubscribeLocked() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// armTimer replaces the timer in slot. When it fires, handler runs with the
// lock held, but only if the slot still holds the same generation; the
// function it returns, if any, runs after the lock is released.
func (s *Scheduler) armTimer(slot *timerSlot, d time.Duration, handler func() func()) {
	s.cancelTimer(slot)
	s.timerSeed++
	gen := s.timerSeed
	slot.gen = gen
	slot.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if slot.timer == nil || slot.gen != gen {
			s.mu.Unlock()
			return
		}
		slot.timer = nil
		after := handler()
		s.mu.Unlock()
		if after != nil {
			after()
		}
	})
}

func (s *Scheduler) cancelTimer(slot *timerSlot) {
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	slot.gen = 0
}
