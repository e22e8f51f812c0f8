package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/hamchapman/jottly/internal/state"
)

const (
	defaultStepsInterval = 15 * time.Minute
	maxBackoff           = time.Hour
)

// StepCollector queries step sources and uploads accepted counts.
type StepCollector interface {
	CollectSteps(ctx context.Context)
}

// StartStepPoller launches a background goroutine that collects steps at a
// fixed cadence, backing off while uploads keep failing. It logs when ingest
// goes offline and when it comes back. It returns immediately.
func StartStepPoller(ctx context.Context, collector StepCollector, status *state.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = defaultStepsInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	go func() {
		timer := time.NewTimer(0)
		defer timer.Stop()

		offline := status.Snapshot().IsOffline()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			collector.CollectSteps(ctx)

			snap := status.Snapshot()
			switch now := snap.IsOffline(); {
			case now && !offline:
				logger.Warn("ingest offline, backing off", "failures", snap.ConsecutiveFailures)
			case !now && offline:
				logger.Info("ingest back online")
			}
			offline = snap.IsOffline()
			timer.Reset(calculateBackoff(snap.ConsecutiveFailures, interval))
		}
	}()
}

// calculateBackoff doubles the interval per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, interval time.Duration) time.Duration {
	if failures <= 0 {
		return interval
	}
	backoff := interval
	for range failures {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}
