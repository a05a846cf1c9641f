// Package monitor owns the long-running agent: it drives probe cycles into
// history, feeds newly seen hardware ids to the resolver queue, runs the
// latency ledger over its transport, and exposes read-only snapshots.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"netmon/internal/config"
	"netmon/internal/history"
	"netmon/internal/ledger"
	"netmon/internal/logging"
	"netmon/internal/metrics"
	"netmon/internal/model"
	"netmon/internal/resolve"
	"netmon/internal/scheduler"
)

// Transport is the ledger connection plus its lifecycle loop.
type Transport interface {
	ledger.Transport
	Run(ctx context.Context) error
	Connected() bool
}

// Deps are the collaborators a Monitor drives. Probe and Resolver are
// required; a nil Persister keeps history in memory and a nil Transport
// disables the ledger.
type Deps struct {
	Probe     scheduler.ProbeFunc
	Persister history.Persister
	Resolver  resolve.Resolver
	Transport Transport
	Metrics   *metrics.Collectors
	Logger    *slog.Logger
	Now       func() time.Time
}

// Monitor is safe for concurrent use by the HTTP surface while Run is active.
type Monitor struct {
	cfg       config.Config
	logger    *slog.Logger
	metrics   *metrics.Collectors
	sched     *scheduler.Scheduler
	history   *history.Store
	queue     *resolve.Queue
	ledger    *ledger.Ledger
	transport Transport

	mu        sync.RWMutex
	cycles    int
	failed    int
	lastErr   error
	lastErrAt time.Time
}

// New wires the components. It loads prior history through d.Persister.
func New(cfg config.Config, d Deps) (*Monitor, error) {
	if d.Probe == nil {
		return nil, errors.New("monitor: probe is required")
	}
	if d.Resolver == nil {
		return nil, errors.New("monitor: resolver is required")
	}
	logger := logging.OrDiscard(d.Logger)
	if d.Metrics == nil {
		d.Metrics = metrics.NewCollectors()
	}

	hist, err := history.Open(d.Persister)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:       cfg,
		logger:    logger,
		metrics:   d.Metrics,
		history:   hist,
		transport: d.Transport,
	}
	m.sched = &scheduler.Scheduler{
		Interval: cfg.Monitor.CycleInterval(),
		Probe:    d.Probe,
		Now:      d.Now,
		Logger:   logger.With("component", "scheduler"),
	}

	m.queue = resolve.NewQueue(d.Resolver, cfg.Resolver.Timeout(), logger.With("component", "resolver"))
	m.queue.RetryFailed = cfg.Resolver.RetryFailed
	m.queue.OnOutcome = m.observeResolution

	m.ledger = ledger.New(d.Now, logger.With("component", "ledger"))
	m.ledger.OnHandle = m.observeLedger

	// Ids seen before a restart still need names.
	if latest, ok := hist.Latest(); ok {
		m.offer(latest)
	}
	return m, nil
}

// Run blocks until ctx is cancelled or a component fails to start.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.sched.Run(ctx, m.handleCycle)
	})
	g.Go(func() error {
		return m.queue.Run(ctx, m.cfg.Resolver.Interval())
	})
	if m.transport != nil {
		g.Go(func() error {
			return m.transport.Run(ctx)
		})
		g.Go(func() error {
			return m.ledger.Run(ctx, m.transport, m.cfg.Ledger.Interval())
		})
	}

	m.logger.Info("monitor started",
		"cycle_interval", m.cfg.Monitor.CycleInterval(),
		"ledger", m.transport != nil,
		"history", m.history.Len())
	err := g.Wait()
	if flushErr := m.history.Flush(); flushErr != nil {
		m.logger.Warn("history flush failed", logging.AttachError(flushErr)...)
	}
	return err
}

// RunCycle runs a single cycle outside the schedule and records it.
func (m *Monitor) RunCycle(ctx context.Context) scheduler.Event {
	m.mu.RLock()
	next := m.cycles + 1
	m.mu.RUnlock()

	ev := m.sched.RunOnce(ctx, next)
	m.handleCycle(ev)
	return ev
}

func (m *Monitor) handleCycle(ev scheduler.Event) {
	if ev.Err != nil {
		m.mu.Lock()
		m.cycles = ev.Cycle
		m.failed++
		m.lastErr = ev.Err
		m.lastErrAt = time.Now()
		m.mu.Unlock()
		m.metrics.ObserveFailedCycle()
		return
	}

	set := *ev.Set
	sentinel := m.cfg.Monitor.FailureLatencyMs

	m.mu.Lock()
	m.cycles = ev.Cycle
	m.mu.Unlock()

	if err := m.history.Append(set); err != nil {
		m.metrics.PersistenceFailures.Inc()
		m.logger.Warn("history persistence failed", "cycle_id", set.ID, "error", err)
	}
	m.metrics.ObserveCycle(set.MaxLatency(sentinel), len(set.Peers), set.Duration())

	if path := m.cfg.Monitor.MetricsPath; path != "" {
		if err := metrics.AppendCSV(path, []model.Sample{set.Sample(sentinel)}); err != nil {
			m.logger.Warn("append metrics failed", "path", path, "error", err)
		}
	}

	m.offer(set)
}

func (m *Monitor) offer(set model.ProbeSet) {
	known := m.queue.Known
	if m.queue.RetryFailed {
		known = func(id string) bool {
			s := m.queue.Status(id)
			return s != resolve.StatusUnknown && s != resolve.StatusFailed
		}
	}
	ids := history.NewHardwareIDs([]model.ProbeSet{set}, known)
	for _, id := range ids {
		if m.queue.Offer(id) {
			m.logger.Debug("hardware id queued", "hardware_id", id)
		}
	}
	m.metrics.ResolutionQueue.Set(float64(m.queue.Pending()))
}

func (m *Monitor) observeResolution(out resolve.Outcome) {
	outcome := "resolved"
	if out.Err != nil {
		outcome = "failed"
	}
	m.metrics.ObserveResolution(outcome, m.queue.Pending())
}

func (m *Monitor) observeLedger(msg ledger.Message, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ledger.ErrUnknownAck):
		result = "unknown_ack"
	case errors.Is(err, ledger.ErrDuplicateAck):
		result = "duplicate"
	case errors.Is(err, ledger.ErrUnrecognizedMessage):
		result = "unrecognized"
	}
	m.metrics.ObserveLedgerMessage(msg.Kind.String(), result)
	if err != nil {
		return
	}

	s := m.ledger.Series()
	var upAck, upDown, down int64
	if len(s.UpAckLatency) > 0 {
		upAck, upDown = s.UpAckLatency[0], s.UpDownLatency[0]
	}
	if len(s.DownLatency) > 0 {
		down = s.DownLatency[0]
	}
	m.metrics.SetLedgerLatency(upAck, upDown, down)
}

// History exposes the underlying store.
func (m *Monitor) History() *history.Store { return m.history }

// Queue exposes the resolution queue.
func (m *Monitor) Queue() *resolve.Queue { return m.queue }

// Ledger exposes the latency ledger.
func (m *Monitor) Ledger() *ledger.Ledger { return m.ledger }

// Metrics exposes the Prometheus collectors.
func (m *Monitor) Metrics() *metrics.Collectors { return m.metrics }
