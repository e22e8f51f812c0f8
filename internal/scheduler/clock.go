package scheduler

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules one-shot callbacks. Callbacks run on their own goroutine.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock returns a Clock backed by time.AfterFunc.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
