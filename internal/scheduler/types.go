package scheduler

import (
	"fmt"
	"time"

	"github.com/hamchapman/jottly/internal/location"
)

// State is the position of the scheduler in its escalation cycle.
type State int

const (
	// Idle means the scheduler is stopped.
	Idle State = iota
	// ActivePolling means active location updates are running.
	ActivePolling
	// Waiting means a fix arrived but was not accurate enough; a short wait
	// timer gives the provider a chance to improve it.
	Waiting
	// Escalated means a result was delivered; active updates are off, the
	// background budget is held and the re-poll timer is running.
	Escalated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ActivePolling:
		return "active_polling"
	case Waiting:
		return "waiting"
	case Escalated:
		return "escalated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AuthorizationStatus mirrors the location permission reported by the
// provider. The scheduler only relays it.
type AuthorizationStatus int

const (
	AuthorizationNotDetermined AuthorizationStatus = iota
	AuthorizationRestricted
	AuthorizationDenied
	AuthorizationAlways
	AuthorizationWhenInUse
)

func (a AuthorizationStatus) String() string {
	switch a {
	case AuthorizationNotDetermined:
		return "not_determined"
	case AuthorizationRestricted:
		return "restricted"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationAlways:
		return "always"
	case AuthorizationWhenInUse:
		return "when_in_use"
	default:
		return fmt.Sprintf("authorization(%d)", int(a))
	}
}

// NoTimeout disables the forced-completion timer.
const NoTimeout time.Duration = 0

// Delegate receives the scheduler's results and relayed provider events.
// Calls are made without the scheduler lock held, so a delegate may call
// Start or Stop.
type Delegate interface {
	DidUpdateLocations(fixes []location.Fix)
	DidFail(err error)
	DidChangeAuthorization(status AuthorizationStatus)
}

// Provider switches active, high-frequency location updates on and off.
// Fixes are delivered through Scheduler.HandleFixes. Provider methods are
// called with the scheduler lock held and must not call back synchronously.
type Provider interface {
	StartUpdates()
	StopUpdates()
}

// Budget grants a bounded window of continued execution. Begin reports
// whether a window was granted; onExpire fires if the window runs out before
// End is called.
type Budget interface {
	Begin(onExpire func()) bool
	End()
}

// Lifecycle delivers foreground/background transitions. Subscribe returns a
// function that removes the subscription.
type Lifecycle interface {
	Subscribe(onBackground, onForeground func()) (unsubscribe func())
}

// Limits bound the caller-supplied parameters of Start.
type Limits struct {
	MinInterval   time.Duration
	MaxInterval   time.Duration
	AccuracyFloor float64
	WaitDelay     time.Duration
	RestartDelay  time.Duration
}

// DefaultLimits returns the bounds used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MinInterval:   2 * time.Second,
		MaxInterval:   170 * time.Second,
		AccuracyFloor: 5,
		WaitDelay:     3 * time.Second,
		RestartDelay:  time.Second,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MinInterval <= 0 {
		l.MinInterval = def.MinInterval
	}
	if l.MaxInterval < l.MinInterval {
		l.MaxInterval = max(def.MaxInterval, l.MinInterval)
	}
	if l.AccuracyFloor <= 0 {
		l.AccuracyFloor = def.AccuracyFloor
	}
	if l.WaitDelay <= 0 {
		l.WaitDelay = def.WaitDelay
	}
	if l.RestartDelay <= 0 {
		l.RestartDelay = def.RestartDelay
	}
	return l
}

func (l Limits) clampInterval(d time.Duration) time.Duration {
	switch {
	case d < l.MinInterval:
		return l.MinInterval
	case d > l.MaxInterval:
		return l.MaxInterval
	default:
		return d
	}
}
