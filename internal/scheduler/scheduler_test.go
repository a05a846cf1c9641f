package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"netmon/internal/model"
)

func TestRun_FailedCycleDoesNotStopScheduling(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := &Scheduler{
		Interval: 5 * time.Millisecond,
		Probe: func(ctx context.Context) (model.ProbeSet, error) {
			if calls.Add(1)%2 == 1 {
				return model.ProbeSet{}, errors.New("ping: timeout")
			}
			return model.ProbeSet{PingLatenciesMs: []int{1}}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []Event
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			n := len(events)
			mu.Unlock()
			if n == 4 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
	for i, ev := range events {
		require.Equal(t, i+1, ev.Cycle)
		if i%2 == 0 {
			require.Error(t, ev.Err)
			require.Nil(t, ev.Set)
		} else {
			require.NoError(t, ev.Err)
			require.NotNil(t, ev.Set)
			require.NotEmpty(t, ev.Set.ID)
		}
	}
}

func TestRun_CyclesNeverOverlap(t *testing.T) {
	t.Parallel()

	var inFlight, maxInFlight, cycles atomic.Int32
	var lastSettled atomic.Int64
	var violations atomic.Int32

	s := &Scheduler{
		Interval: time.Millisecond,
		Probe: func(ctx context.Context) (model.ProbeSet, error) {
			if started := time.Now().UnixNano(); started < lastSettled.Load() {
				violations.Add(1)
			}
			n := inFlight.Add(1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return model.ProbeSet{}, nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx, func(ev Event) {
		cycles.Add(1)
		lastSettled.Store(time.Now().UnixNano())
	})

	require.Equal(t, int32(1), maxInFlight.Load())
	require.Zero(t, violations.Load())
	require.Greater(t, cycles.Load(), int32(2))
}

func TestRun_SlowProbeStretchesCadence(t *testing.T) {
	t.Parallel()

	var cycles atomic.Int32
	s := &Scheduler{
		Interval: 10 * time.Millisecond,
		Probe: func(ctx context.Context) (model.ProbeSet, error) {
			time.Sleep(40 * time.Millisecond)
			return model.ProbeSet{}, nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx, func(ev Event) { cycles.Add(1) })

	// Each cycle costs at least interval+probe time (50ms).
	require.LessOrEqual(t, cycles.Load(), int32(4))
}

func TestRunOnce_StampsBracket(t *testing.T) {
	t.Parallel()

	base := time.Unix(1000, 0)
	ticks := []time.Time{base, base.Add(120 * time.Millisecond)}
	i := 0
	s := &Scheduler{
		Interval: time.Second,
		Now: func() time.Time {
			t := ticks[i]
			i++
			return t
		},
		NewID: func() string { return "cycle-1" },
		Probe: func(ctx context.Context) (model.ProbeSet, error) {
			return model.ProbeSet{PingLatenciesMs: []int{12, 15, 9}}, nil
		},
	}

	ev := s.RunOnce(context.Background(), 1)
	require.NoError(t, ev.Err)
	require.Equal(t, "cycle-1", ev.Set.ID)
	require.Equal(t, base, ev.Set.StartedAt)
	require.Equal(t, 120*time.Millisecond, ev.Set.Duration())
}

func TestRun_RequiresProbe(t *testing.T) {
	t.Parallel()

	err := (&Scheduler{Interval: time.Second}).Run(context.Background(), nil)
	require.Error(t, err)
}
