package updater

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hamchapman/jottly/internal/kv"
	"github.com/hamchapman/jottly/internal/location"
	"github.com/hamchapman/jottly/internal/scheduler"
	"github.com/hamchapman/jottly/internal/state"
	"github.com/hamchapman/jottly/internal/upload"
)

const (
	keyPreviousLatitude  = "jottly.previous.latitude"
	keyPreviousLongitude = "jottly.previous.longitude"
	keyPreviousSteps     = "jottly.previous.steps"
	keyPreviousStepsDay  = "jottly.previous.steps_day"

	// significantDistance is the movement, in meters, that counts as travel.
	significantDistance = 100.0
	// maxStationaryUpdates is how many updates without travel are tolerated
	// before the scheduler is stopped.
	maxStationaryUpdates = 4
)

// Scheduler is the part of scheduler.Scheduler the manager drives.
type Scheduler interface {
	Start(pollInterval time.Duration, accuracyThreshold float64, timeout time.Duration)
	Stop()
	IsRunning() bool
}

var _ Scheduler = (*scheduler.Scheduler)(nil)

// StepSource reports the number of steps taken since local midnight.
type StepSource interface {
	Name() string
	StepsToday(ctx context.Context) (int64, error)
}

// Defaults are the scheduler parameters used by passive triggers.
type Defaults struct {
	PollInterval      time.Duration
	AccuracyThreshold float64
	Timeout           time.Duration
}

// Options carries the manager's collaborators. Uploader and Store are
// required.
type Options struct {
	Uploader upload.Uploader
	Store    kv.Store
	State    *state.Store
	Sources  []StepSource
	Logger   *slog.Logger
	Defaults Defaults
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// Manager decides what to upload. It receives fixes from the scheduler,
// keeps the previous location and stops the scheduler when the device is
// stationary, and applies the monotonic-max policy to step counts.
type Manager struct {
	ctx      context.Context
	uploader upload.Uploader
	store    kv.Store
	state    *state.Store
	sources  []StepSource
	logger   *slog.Logger
	defaults Defaults
	now      func() time.Time

	mu         sync.Mutex
	sched      Scheduler
	previous   *location.Fix
	stationary int

	stepsMu sync.Mutex
}

var _ scheduler.Delegate = (*Manager)(nil)

// New builds a manager. ctx bounds the store and upload calls made from
// scheduler callbacks.
func New(ctx context.Context, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.State == nil {
		opts.State = &state.Store{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		ctx:      ctx,
		uploader: opts.Uploader,
		store:    opts.Store,
		state:    opts.State,
		sources:  opts.Sources,
		logger:   opts.Logger,
		defaults: opts.Defaults,
		now:      opts.Now,
	}
}

// Attach sets the scheduler the manager starts and stops.
func (m *Manager) Attach(s Scheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sched = s
}

// State returns the store that records the manager's activity.
func (m *Manager) State() *state.Store {
	return m.state
}

// StationaryCount reports consecutive updates without significant travel.
func (m *Manager) StationaryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stationary
}

// DidUpdateLocations handles a scheduler result.
func (m *Manager) DidUpdateLocations(fixes []location.Fix) {
	last, ok := location.Last(fixes)
	if !ok {
		m.logger.Info("scheduler delivered no fixes")
		m.CollectSteps(m.ctx)
		return
	}

	m.mu.Lock()
	prev, hasPrev := m.previousLocked(m.ctx)
	stop := false
	if hasPrev {
		distance := location.DistanceMeters(prev, last)
		switch {
		case distance > significantDistance:
			m.stationary = 0
			m.logger.Info("significant distance travelled", "meters", distance)
		case m.stationary < maxStationaryUpdates:
			m.stationary++
			m.logger.Info("no significant distance travelled, continuing",
				"meters", distance,
				"count", m.stationary,
				"limit", maxStationaryUpdates,
			)
		default:
			m.stationary = 0
			stop = true
			m.logger.Info("no significant distance travelled, stopping", "meters", distance)
		}
	} else {
		m.logger.Info("no previous location stored")
	}
	m.setPreviousLocked(m.ctx, last)
	sched := m.sched
	m.mu.Unlock()

	if stop && sched != nil {
		sched.Stop()
	}

	m.state.RecordFix(last)
	m.uploadLocation(m.ctx, last)
	m.CollectSteps(m.ctx)
}

// DidFail logs a provider failure.
func (m *Manager) DidFail(err error) {
	m.logger.Error("scheduled location update failed", "error", err)
}

// DidChangeAuthorization logs a permission change.
func (m *Manager) DidChangeAuthorization(status scheduler.AuthorizationStatus) {
	m.logger.Info("location authorization changed", "status", status)
}

// HandleSignificantChange reacts to a coarse location change by starting the
// scheduler if it is idle and collecting steps.
func (m *Manager) HandleSignificantChange(ctx context.Context, fix location.Fix) {
	m.logger.Info("significant location change", "latitude", fix.Latitude, "longitude", fix.Longitude)
	m.ensureRunning()
	m.CollectSteps(ctx)
}

// HandleVisit reacts to a visit event. Departures start the scheduler;
// arrivals only collect steps.
func (m *Manager) HandleVisit(ctx context.Context, departed bool) {
	if departed {
		m.logger.Info("visit departed")
		m.ensureRunning()
	} else {
		m.logger.Info("visit arrived")
	}
	m.CollectSteps(ctx)
}

func (m *Manager) ensureRunning() {
	m.mu.Lock()
	sched := m.sched
	m.mu.Unlock()
	if sched == nil || sched.IsRunning() {
		return
	}
	sched.Start(m.defaults.PollInterval, m.defaults.AccuracyThreshold, m.defaults.Timeout)
}

func (m *Manager) previousLocked(ctx context.Context) (location.Fix, bool) {
	if m.previous != nil {
		return *m.previous, true
	}
	lat, okLat, err := kv.GetFloat(ctx, m.store, keyPreviousLatitude)
	if err != nil {
		m.logger.Warn("failed to load previous latitude", "error", err)
		return location.Fix{}, false
	}
	lon, okLon, err := kv.GetFloat(ctx, m.store, keyPreviousLongitude)
	if err != nil {
		m.logger.Warn("failed to load previous longitude", "error", err)
		return location.Fix{}, false
	}
	if !okLat || !okLon {
		return location.Fix{}, false
	}
	fix := location.Fix{Latitude: lat, Longitude: lon}
	m.previous = &fix
	return fix, true
}

func (m *Manager) setPreviousLocked(ctx context.Context, fix location.Fix) {
	m.previous = &fix
	m.logger.Debug("setting previous location", "latitude", fix.Latitude, "longitude", fix.Longitude)
	if err := kv.SetFloat(ctx, m.store, keyPreviousLatitude, fix.Latitude); err != nil {
		m.logger.Warn("failed to store previous latitude", "error", err)
	}
	if err := kv.SetFloat(ctx, m.store, keyPreviousLongitude, fix.Longitude); err != nil {
		m.logger.Warn("failed to store previous longitude", "error", err)
	}
}

// LocationPayload is the body of a "location" jot.
func LocationPayload(fix location.Fix) map[string]any {
	payload := map[string]any{
		"altitude":  fix.Altitude,
		"latitude":  fix.Latitude,
		"longitude": fix.Longitude,
		"speed":     fix.Speed,
		"timestamp": strconv.FormatInt(fix.Timestamp.Unix(), 10),
	}
	if fix.Floor != nil {
		payload["floor"] = *fix.Floor
	}
	return payload
}

func (m *Manager) uploadLocation(ctx context.Context, fix location.Fix) {
	m.send(ctx, "location", LocationPayload(fix))
}

func (m *Manager) send(ctx context.Context, kind string, payload map[string]any) {
	if m.uploader == nil {
		return
	}
	m.uploader.UpdateServer(ctx, kind, payload,
		func([]byte) {
			m.state.RecordUpload(kind, nil)
			m.logger.Info("success updating server", "type", kind)
		},
		func(err error) {
			m.state.RecordUpload(kind, err)
			m.logger.Error("error updating server", "type", kind, "error", err)
		},
	)
}
