package monitor

import (
	"io"
	"log/slog"

	"netmon/internal/config"
	"netmon/internal/execx"
	"netmon/internal/logging"
	"netmon/internal/metrics"
	"netmon/internal/probe"
	"netmon/internal/resolve"
	"netmon/internal/store"
	"netmon/internal/stunutil"
	"netmon/internal/wsconn"
)

// NewCollector builds the OS-backed probe fan-out described by cfg.
func NewCollector(cfg config.MonitorConfig, runner execx.Runner) *probe.Collector {
	return &probe.Collector{
		Pinger:    probe.NewPinger(runner),
		Discovery: probe.NewARP(runner),
		Public: &probe.STUN{Prober: &stunutil.Prober{
			Servers: cfg.STUNServers,
			Timeout: cfg.ProbeTimeout(),
		}},
		Target:  cfg.PingTarget,
		Count:   cfg.PingCount,
		Timeout: cfg.ProbeTimeout(),
	}
}

// Build wires a Monitor against the real network, the configured history
// backend and the vendor lookup service. The returned closer releases the
// history backend.
func Build(cfg config.Config, logger *slog.Logger) (*Monitor, io.Closer, error) {
	logger = logging.OrDiscard(logger)
	backend, err := store.Open(cfg.Monitor.HistoryBackend, cfg.Monitor.HistoryPath)
	if err != nil {
		return nil, nil, err
	}

	var transport Transport
	if cfg.Ledger.Endpoint != "" {
		transport = wsconn.New(cfg.Ledger.Endpoint, wsconn.Options{
			Origin:        cfg.Ledger.Origin,
			RetryDelay:    cfg.Ledger.RetryDelay(),
			RetryMaxDelay: cfg.Ledger.RetryMaxDelay(),
			Logger:        logger.With("component", "wsconn"),
		})
	}

	collector := NewCollector(cfg.Monitor, execx.NewOSRunner())
	m, err := New(cfg, Deps{
		Probe:     collector.Collect,
		Persister: backend,
		Resolver:  resolve.NewMacLookup(cfg.Resolver.URL, cfg.Resolver.RatePerSec),
		Transport: transport,
		Metrics:   metrics.NewCollectors(),
		Logger:    logger,
	})
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return m, backend, nil
}
