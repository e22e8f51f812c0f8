package app

import (
	"syscall"
	"testing"
	"time"
)

func TestSignalLifecycleDispatch(t *testing.T) {
	l := NewSignalLifecycle()
	defer l.Close()

	var background, foreground int
	unsubscribe := l.Subscribe(func() { background++ }, func() { foreground++ })

	l.dispatch(true)
	l.dispatch(false)
	l.dispatch(false)
	if background != 1 || foreground != 2 {
		t.Fatalf("background=%d foreground=%d, want 1 and 2", background, foreground)
	}

	unsubscribe()
	l.dispatch(true)
	if background != 1 {
		t.Fatalf("background = %d after unsubscribe, want 1", background)
	}
}

func TestSignalLifecycleSignal(t *testing.T) {
	l := NewSignalLifecycle()
	defer l.Close()

	got := make(chan string, 2)
	defer l.Subscribe(func() { got <- "background" }, func() { got <- "foreground" })()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case v := <-got:
		if v != "background" {
			t.Fatalf("callback = %q, want background", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SIGUSR1 dispatch")
	}
}
