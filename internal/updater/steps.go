package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/hamchapman/jottly/internal/kv"
)

// CollectSteps queries every step source and offers each result to the
// monotonic-max policy. Source failures are logged and skipped.
func (m *Manager) CollectSteps(ctx context.Context) {
	for _, src := range m.sources {
		steps, err := src.StepsToday(ctx)
		if err != nil {
			m.logger.Warn("error fetching steps", "source", src.Name(), "error", err)
			continue
		}
		if _, err := m.UpdateStepsIfAppropriate(ctx, steps, src.Name()); err != nil {
			m.logger.Error("failed to apply steps", "source", src.Name(), "error", err)
		}
	}
}

// UpdateStepsIfAppropriate accepts steps when there is no stored value, when
// the stored value belongs to an earlier day, or when it is higher than the
// stored value for today. A stored day later than today is never replaced.
// Accepted values are persisted and uploaded as a "steps" jot.
func (m *Manager) UpdateStepsIfAppropriate(ctx context.Context, steps int64, source string) (bool, error) {
	today := midnight(m.now())

	m.stepsMu.Lock()
	accept, err := m.decideSteps(ctx, steps, source, today)
	if err == nil && accept {
		err = m.persistSteps(ctx, steps, today)
	}
	m.stepsMu.Unlock()

	if err != nil || !accept {
		return false, err
	}
	m.state.RecordSteps(steps, today, source)
	m.send(ctx, "steps", map[string]any{"steps": steps})
	return true, nil
}

func (m *Manager) decideSteps(ctx context.Context, steps int64, source string, today time.Time) (bool, error) {
	prev, hasPrev, err := kv.GetInt(ctx, m.store, keyPreviousSteps)
	if err != nil {
		return false, fmt.Errorf("load previous steps: %w", err)
	}
	if !hasPrev {
		m.logger.Info("got steps with no previous value", "source", source, "steps", steps)
		return true, nil
	}

	day, hasDay, err := kv.GetTime(ctx, m.store, keyPreviousStepsDay)
	if err != nil {
		return false, fmt.Errorf("load previous steps day: %w", err)
	}
	if hasDay {
		switch {
		case today.Before(day):
			m.logger.Warn("stored steps belong to a later day, ignoring",
				"source", source, "steps", steps, "stored_day", day)
			return false, nil
		case today.After(day):
			m.logger.Info("got steps for a new day", "source", source, "steps", steps, "previous", prev)
			return true, nil
		}
	}

	if steps <= prev {
		m.logger.Info("got steps but had previous higher value",
			"source", source, "steps", steps, "previous", prev)
		return false, nil
	}
	m.logger.Info("got steps and had previous lower value",
		"source", source, "steps", steps, "previous", prev)
	return true, nil
}

func (m *Manager) persistSteps(ctx context.Context, steps int64, day time.Time) error {
	if err := kv.SetInt(ctx, m.store, keyPreviousSteps, steps); err != nil {
		return fmt.Errorf("store steps: %w", err)
	}
	if err := kv.SetTime(ctx, m.store, keyPreviousStepsDay, day); err != nil {
		return fmt.Errorf("store steps day: %w", err)
	}
	return nil
}

// midnight returns the start of t's day in t's location.
func midnight(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
