// Package replay drives the agent from a recorded JSON-lines file instead of
// device sensors. Each line is a fix, a step count or a passive event:
//
//	{"type":"fix","fix":{"latitude":51.5,"longitude":-0.12,"horizontal_accuracy":12}}
//	{"type":"steps","steps":4200}
//	{"type":"significant_change","fix":{"latitude":51.6,"longitude":-0.1}}
//	{"type":"visit","departed":true}
//
// A Source implements scheduler.Provider: while updates are on, it emits the
// recorded fixes one at a time on its own goroutine. It also implements the
// updater's StepSource, returning the recorded step counts in order.
//
// Significant changes and visits arrive whether or not active updates are
// on. MonitorPassive delivers them, in file order, to a PassiveHandler.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hamchapman/jottly/internal/location"
)

// Record is one line of a replay file.
type Record struct {
	Type  string        `json:"type"`
	Fix   *location.Fix `json:"fix,omitempty"`
	Steps *int64        `json:"steps,omitempty"`
	// Departed is set on visit records.
	Departed *bool `json:"departed,omitempty"`
}

// Record types.
const (
	TypeFix               = "fix"
	TypeSteps             = "steps"
	TypeSignificantChange = "significant_change"
	TypeVisit             = "visit"
)

// PassiveHandler receives passive location events. updater.Manager
// implements it.
type PassiveHandler interface {
	HandleSignificantChange(ctx context.Context, fix location.Fix)
	HandleVisit(ctx context.Context, departed bool)
}

// ErrNoSteps is returned by StepsToday when the file has no step records.
var ErrNoSteps = errors.New("replay: no step records")

// Load reads the records in path. Blank lines and lines starting with # are
// skipped.
func Load(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		switch rec.Type {
		case TypeFix, TypeSignificantChange:
			if rec.Fix == nil {
				return nil, fmt.Errorf("replay line %d: %s record without fix", line, rec.Type)
			}
		case TypeSteps:
			if rec.Steps == nil {
				return nil, fmt.Errorf("replay line %d: steps record without steps", line)
			}
		case TypeVisit:
			if rec.Departed == nil {
				return nil, fmt.Errorf("replay line %d: visit record without departed", line)
			}
		default:
			return nil, fmt.Errorf("replay line %d: unknown record type %q", line, rec.Type)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay: %w", err)
	}
	return records, nil
}

// Options configure a Source.
type Options struct {
	// Interval is the delay between emitted fixes. Defaults to one second.
	Interval time.Duration
	// Loop restarts from the first fix after the last one.
	Loop   bool
	Logger *slog.Logger
}

// Source replays recorded fixes and step counts.
type Source struct {
	fixes    []location.Fix
	steps    []int64
	passive  []Record
	interval time.Duration
	loop     bool
	logger   *slog.Logger

	mu        sync.Mutex
	handler   func([]location.Fix)
	stop      chan struct{}
	nextFix   int
	nextSteps int
	wg        sync.WaitGroup
}

// NewSource builds a Source from records.
func NewSource(records []Record, opts Options) *Source {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	s := &Source{interval: opts.Interval, loop: opts.Loop, logger: opts.Logger}
	for _, rec := range records {
		switch rec.Type {
		case TypeFix:
			s.fixes = append(s.fixes, *rec.Fix)
		case TypeSteps:
			s.steps = append(s.steps, *rec.Steps)
		case TypeSignificantChange, TypeVisit:
			s.passive = append(s.passive, rec)
		}
	}
	return s
}

// Bind sets the function that receives emitted fixes, typically
// scheduler.Scheduler.HandleFixes.
func (s *Source) Bind(handler func([]location.Fix)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// StartUpdates begins emitting fixes. It returns immediately.
func (s *Source) StartUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	s.wg.Add(1)
	go s.emit(stop)
}

// StopUpdates stops emitting fixes. It does not wait for the emitter.
func (s *Source) StopUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}

// MonitorPassive delivers the passive events to h, one per interval, until
// ctx is done or the events run out. With Loop set it starts over after the
// last event. It returns immediately; Wait covers the goroutine.
func (s *Source) MonitorPassive(ctx context.Context, h PassiveHandler) {
	if len(s.passive) == 0 || h == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			if i == len(s.passive) {
				if !s.loop {
					s.logger.Debug("passive replay exhausted")
					return
				}
				i = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			rec := s.passive[i]
			switch rec.Type {
			case TypeSignificantChange:
				fix := *rec.Fix
				if fix.Timestamp.IsZero() {
					fix.Timestamp = time.Now()
				}
				h.HandleSignificantChange(ctx, fix)
			case TypeVisit:
				h.HandleVisit(ctx, *rec.Departed)
			}
		}
	}()
}

// Wait blocks until the emitter goroutines have exited.
func (s *Source) Wait() {
	s.wg.Wait()
}

func (s *Source) emit(stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		fix, handler, ok := s.next()
		if !ok {
			s.logger.Debug("replay exhausted")
			return
		}
		if handler != nil {
			handler([]location.Fix{fix})
		}
	}
}

func (s *Source) next() (location.Fix, func([]location.Fix), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.fixes) == 0 {
		return location.Fix{}, nil, false
	}
	if s.nextFix >= len(s.fixes) {
		if !s.loop {
			return location.Fix{}, nil, false
		}
		s.nextFix = 0
	}
	fix := s.fixes[s.nextFix]
	s.nextFix++
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}
	return fix, s.handler, true
}

// Name identifies the source in logs and state.
func (s *Source) Name() string {
	return "replay"
}

// StepsToday returns the next recorded step count, repeating the last one
// once the records run out.
func (s *Source) StepsToday(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.steps) == 0 {
		return 0, ErrNoSteps
	}
	idx := min(s.nextSteps, len(s.steps)-1)
	if s.nextSteps < len(s.steps) {
		s.nextSteps++
	}
	return s.steps[idx], nil
}
