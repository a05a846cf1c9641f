// Package resolve turns hardware identifiers into vendor names at a bounded
// rate, one identifier at a time.
package resolve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrUnresolved is returned by resolvers that found no name.
var ErrUnresolved = errors.New("identifier unresolved")

// Resolver maps a hardware identifier to a human readable name. An empty
// name is treated the same as an error.
type Resolver interface {
	Resolve(ctx context.Context, hardwareID string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, hardwareID string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, hardwareID string) (string, error) {
	return f(ctx, hardwareID)
}

// Status is the resolution state of one identifier.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusResolved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is a point-in-time view of one identifier.
type Entry struct {
	HardwareID string `json:"hardware_id"`
	Status     Status `json:"-"`
	State      string `json:"status"`
	Name       string `json:"name,omitempty"`
	InFlight   bool   `json:"in_flight,omitempty"`
}

type entry struct {
	status   Status
	name     string
	inFlight bool
}

// Outcome reports what one drain tick did.
type Outcome struct {
	HardwareID string
	Name       string
	Err        error
	Duration   time.Duration
}

// Queue is a FIFO of pending identifiers plus the cache of finished ones.
// Every identifier has exactly one entry across queue, in-flight and cache.
type Queue struct {
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger

	// RetryFailed lets Offer re-queue identifiers that previously failed.
	// Off by default: a failure is final until Retry is called explicitly.
	RetryFailed bool
	// OnOutcome observes every finished resolution.
	OnOutcome func(Outcome)

	drainMu sync.Mutex

	mu      sync.Mutex
	fifo    []string
	entries map[string]*entry
}

// NewQueue builds a queue. timeout bounds each resolver call.
func NewQueue(resolver Resolver, timeout time.Duration, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Queue{
		resolver: resolver,
		timeout:  timeout,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Offer enqueues id unless it is already pending, in flight, resolved or
// failed. It reports whether id was enqueued.
func (q *Queue) Offer(id string) bool {
	if id == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[id]; ok {
		if e.status != StatusFailed || !q.RetryFailed {
			return false
		}
	}
	q.enqueueLocked(id)
	return true
}

// Retry re-queues an identifier whose resolution failed.
func (q *Queue) Retry(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.status != StatusFailed {
		return false
	}
	q.enqueueLocked(id)
	return true
}

func (q *Queue) enqueueLocked(id string) {
	q.entries[id] = &entry{status: StatusPending}
	q.fifo = append(q.fifo, id)
}

// DrainTick resolves at most one pending identifier, oldest first. It
// reports whether an identifier was attempted.
func (q *Queue) DrainTick(ctx context.Context) bool {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	id, ok := q.pop()
	if !ok {
		return false
	}

	callCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	name, err := q.resolver.Resolve(callCtx, id)
	if err == nil && name == "" {
		err = ErrUnresolved
	}
	out := Outcome{HardwareID: id, Name: name, Err: err, Duration: time.Since(start)}

	q.mu.Lock()
	if e, ok := q.entries[id]; ok {
		e.inFlight = false
		if err != nil {
			e.status = StatusFailed
			e.name = ""
		} else {
			e.status = StatusResolved
			e.name = name
		}
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn("resolution failed", "hardware_id", id, "error", err)
	} else {
		q.logger.Debug("resolved", "hardware_id", id, "name", name)
	}
	if q.OnOutcome != nil {
		q.OnOutcome(out)
	}
	return true
}

func (q *Queue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.fifo) > 0 {
		id := q.fifo[0]
		q.fifo[0] = ""
		q.fifo = q.fifo[1:]
		if e, ok := q.entries[id]; ok && e.status == StatusPending && !e.inFlight {
			e.inFlight = true
			return id, true
		}
	}
	return "", false
}

// Run drains one identifier per interval until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("resolve: interval must be > 0")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			q.DrainTick(ctx)
		}
	}
}

// Lookup returns the resolved name for id.
func (q *Queue) Lookup(id string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.status != StatusResolved {
		return "", false
	}
	return e.name, true
}

// Status reports the state of id.
func (q *Queue) Status(id string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[id]; ok {
		return e.status
	}
	return StatusUnknown
}

// Known reports whether id has any entry.
func (q *Queue) Known(id string) bool {
	return q.Status(id) != StatusUnknown
}

// Pending is the number of identifiers waiting in the FIFO.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// Snapshot returns every known identifier in no particular order.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.entries))
	for id, e := range q.entries {
		out = append(out, Entry{
			HardwareID: id,
			Status:     e.status,
			State:      e.status.String(),
			Name:       e.name,
			InFlight:   e.inFlight,
		})
	}
	return out
}
