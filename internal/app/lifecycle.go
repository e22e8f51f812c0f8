package app

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hamchapman/jottly/internal/scheduler"
)

var _ scheduler.Lifecycle = (*SignalLifecycle)(nil)

// SignalLifecycle maps SIGUSR1 to entering the background and SIGUSR2 to
// becoming active again, so an external supervisor can drive the scheduler's
// background budget.
type SignalLifecycle struct {
	signals chan os.Signal
	done    chan struct{}

	mu     sync.Mutex
	subs   map[int]subscription
	nextID int
	once   sync.Once
}

type subscription struct {
	onBackground func()
	onForeground func()
}

// NewSignalLifecycle starts listening for SIGUSR1 and SIGUSR2.
func NewSignalLifecycle() *SignalLifecycle {
	l := &SignalLifecycle{
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
		subs:    make(map[int]subscription),
	}
	signal.Notify(l.signals, syscall.SIGUSR1, syscall.SIGUSR2)
	go l.loop()
	return l
}

func (l *SignalLifecycle) Subscribe(onBackground, onForeground func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.subs[id] = subscription{onBackground: onBackground, onForeground: onForeground}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// Close stops listening for signals.
func (l *SignalLifecycle) Close() {
	l.once.Do(func() {
		signal.Stop(l.signals)
		close(l.done)
	})
}

func (l *SignalLifecycle) loop() {
	for {
		select {
		case <-l.done:
			return
		case sig := <-l.signals:
			l.dispatch(sig == syscall.SIGUSR1)
		}
	}
}

func (l *SignalLifecycle) dispatch(background bool) {
	l.mu.Lock()
	callbacks := make([]func(), 0, len(l.subs))
	for _, s := range l.subs {
		cb := s.onForeground
		if background {
			cb = s.onBackground
		}
		if cb != nil {
			callbacks = append(callbacks, cb)
		}
	}
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}
