// Package scheduler drives measurement cycles at a self-pacing interval.
package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"netmon/internal/model"
)

// ProbeFunc acquires one ProbeSet. It must return an error rather than a
// partial result when any sub-probe fails.
type ProbeFunc func(ctx context.Context) (model.ProbeSet, error)

// Event is emitted once per settled cycle.
type Event struct {
	Cycle int
	// Set is nil when the cycle failed.
	Set *model.ProbeSet
	Err error
}

// Scheduler runs cycles one after another. The next cycle is armed only
// after the previous one settled and its handler returned, so cycles never
// overlap and a slow probe stretches the cadence instead of queueing work.
type Scheduler struct {
	Interval time.Duration
	Probe    ProbeFunc
	Now      func() time.Time
	Logger   *slog.Logger
	// NewID names cycles; defaults to random UUIDs.
	NewID func() string
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, handle func(Event)) error {
	if s.Probe == nil {
		return errors.New("scheduler: probe is required")
	}
	if s.Interval <= 0 {
		return errors.New("scheduler: interval must be > 0")
	}
	logger := s.logger()

	timer := time.NewTimer(s.Interval)
	defer timer.Stop()

	cycle := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		cycle++
		ev := s.RunOnce(ctx, cycle)
		if ev.Err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("cycle failed", "cycle", cycle, "error", ev.Err)
		} else {
			logger.Debug("cycle complete", "cycle", cycle, "cycle_id", ev.Set.ID,
				"duration_ms", ev.Set.Duration().Milliseconds(), "peers", len(ev.Set.Peers))
		}
		if handle != nil {
			handle(ev)
		}

		timer.Reset(s.Interval)
	}
}

// RunOnce executes a single cycle and stamps it.
func (s *Scheduler) RunOnce(ctx context.Context, cycle int) Event {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	newID := s.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}

	started := now()
	set, err := s.Probe(ctx)
	finished := now()
	if err != nil {
		return Event{Cycle: cycle, Err: err}
	}

	set.ID = newID()
	set.StartedAt = started
	set.FinishedAt = finished
	return Event{Cycle: cycle, Set: &set}
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
