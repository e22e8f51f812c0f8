package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/hamchapman/jottly/internal/location"
)

// Snapshot represents the latest agent activity.
type Snapshot struct {
	LastFix location.Fix
	HasFix  bool

	Steps       int64
	StepsDay    time.Time
	StepsSource string
	HasSteps    bool

	LastUploadKind      string
	Uploads             int
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive upload failures
}

// IsOffline returns true when the ingest endpoint has failed repeatedly.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// RecordFix stores the most recent accepted location.
func (s *Store) RecordFix(fix location.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastFix = fix
	s.snapshot.HasFix = true
	s.snapshot.LastUpdated = time.Now()
}

// RecordSteps stores an accepted step count and the day it belongs to.
func (s *Store) RecordSteps(steps int64, day time.Time, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Steps = steps
	s.snapshot.StepsDay = day
	s.snapshot.StepsSource = source
	s.snapshot.HasSteps = true
	s.snapshot.LastUpdated = time.Now()
}

// RecordUpload records the outcome of an upload. When err is non-nil the
// failure is counted and kept for visibility; success clears it.
func (s *Store) RecordUpload(kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastUploadKind = kind
	s.snapshot.LastUpdated = time.Now()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}
	s.snapshot.Uploads++
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}
