package scheduler

import (
	"github.com/hamchapman/jottly/internal/location"
)

// HandleFixes feeds a batch of fixes from the provider. Batches that arrive
// while active updates are off are dropped.
func (s *Scheduler) HandleFixes(fixes []location.Fix) {
	s.mu.Lock()
	if !s.updating || len(fixes) == 0 {
		s.mu.Unlock()
		return
	}
	s.lastFixes = location.Clone(fixes)

	last, _ := location.Last(fixes)
	if last.HorizontalAccuracy <= s.threshold {
		delivered := s.achieveLocked()
		s.mu.Unlock()
		s.deliver(delivered)
		return
	}

	if s.wait.timer == nil {
		s.armTimer(&s.wait, s.limits.WaitDelay, s.onWait)
		s.state = Waiting
	}
	s.mu.Unlock()
}

// HandleError relays a provider failure to the delegate.
func (s *Scheduler) HandleError(err error) {
	s.logger.Warn("location provider failed", "error", err)
	if s.delegate != nil {
		s.delegate.DidFail(err)
	}
}

// HandleAuthorizationChange relays a permission change to the delegate.
func (s *Scheduler) HandleAuthorizationChange(status AuthorizationStatus) {
	s.logger.Info("location authorization changed", "status", status)
	if s.delegate != nil {
		s.delegate.DidChangeAuthorization(status)
	}
}

// achieveLocked moves the cycle to Escalated and returns the fixes to hand to
// the delegate once the lock is released.
func (s *Scheduler) achieveLocked() []location.Fix {
	s.cancelTimer(&s.wait)
	s.cancelTimer(&s.deadline)
	s.stopUpdatesLocked()
	s.beginBudgetLocked()
	s.armTimer(&s.repoll, s.interval, s.onRepoll)
	s.state = Escalated

	s.logger.Debug("location accuracy achieved", "fixes", len(s.lastFixes), "next_poll", s.interval)
	return location.Clone(s.lastFixes)
}

func (s *Scheduler) deliver(fixes []location.Fix) {
	if s.delegate != nil {
		s.delegate.DidUpdateLocations(fixes)
	}
}

func (s *Scheduler) onWait() func() {
	if !s.running || !s.updating {
		return nil
	}
	last, ok := location.Last(s.lastFixes)
	if ok && last.HorizontalAccuracy <= s.threshold {
		delivered := s.achieveLocked()
		return func() { s.deliver(delivered) }
	}
	s.armTimer(&s.wait, s.limits.WaitDelay, s.onWait)
	s.state = Waiting
	return nil
}

func (s *Scheduler) onDeadline() func() {
	if !s.running || !s.updating {
		return nil
	}
	s.logger.Info("location timeout reached", "timeout", s.timeout, "fixes", len(s.lastFixes))
	delivered := s.achieveLocked()
	return func() { s.deliver(delivered) }
}

func (s *Scheduler) onRepoll() func() {
	if !s.running {
		return nil
	}
	s.resumeLocked()
	return nil
}

// resumeLocked turns active updates back on and schedules the grace check
// that releases or renews the background budget.
func (s *Scheduler) resumeLocked() {
	s.cancelTimer(&s.repoll)
	if !s.updating {
		s.startUpdatesLocked()
	}
	s.armTimer(&s.restart, s.limits.RestartDelay, s.onRestartGrace)
}

func (s *Scheduler) onRestartGrace() func() {
	if !s.running {
		return nil
	}
	s.endBudgetLocked()
	if !s.updating {
		s.beginBudgetLocked()
	}
	return nil
}

func (s *Scheduler) onBudgetExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.budgetActive || gen != s.budgetGen {
		return
	}
	s.budgetActive = false
	if !s.running {
		return
	}
	s.logger.Debug("background budget expired")
	s.resumeLocked()
}

func (s *Scheduler) onEnterBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.endBudgetLocked()
	s.beginBudgetLocked()
}

func (s *Scheduler) onBecomeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endBudgetLocked()
}
