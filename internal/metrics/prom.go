package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are the agent's Prometheus instruments. They live on their own
// registry so tests and multiple agents in one process do not collide.
type Collectors struct {
	Registry *prometheus.Registry

	CyclesTotal         prometheus.Counter
	CyclesFailed        prometheus.Counter
	CycleDuration       prometheus.Histogram
	PingLatency         prometheus.Gauge
	Peers               prometheus.Gauge
	Resolutions         *prometheus.CounterVec
	ResolutionQueue     prometheus.Gauge
	LedgerMessages      *prometheus.CounterVec
	LedgerLatency       *prometheus.GaugeVec
	PersistenceFailures prometheus.Counter
}

func NewCollectors() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netmon_cycles_total",
			Help: "Total number of measurement cycles run",
		}),
		CyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netmon_cycles_failed_total",
			Help: "Measurement cycles discarded because a probe failed",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netmon_cycle_duration_seconds",
			Help:    "Wall-clock duration of a completed measurement cycle",
			Buckets: prometheus.DefBuckets,
		}),
		PingLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netmon_ping_latency_ms",
			Help: "Slowest reply of the latest cycle, or the failure sentinel",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netmon_peers",
			Help: "Peers seen on the local segment in the latest cycle",
		}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netmon_resolutions_total",
			Help: "Vendor lookups by outcome",
		}, []string{"outcome"}),
		ResolutionQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netmon_resolution_queue_depth",
			Help: "Hardware ids waiting for a vendor lookup",
		}),
		LedgerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netmon_ledger_messages_total",
			Help: "Inbound ledger messages by kind and result",
		}, []string{"kind", "result"}),
		LedgerLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "netmon_ledger_latency_ms",
			Help: "Most recent derived ledger latency by series",
		}, []string{"series"}),
		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netmon_persistence_failures_total",
			Help: "History writes that did not reach the backend",
		}),
	}
	c.Registry.MustRegister(
		c.CyclesTotal,
		c.CyclesFailed,
		c.CycleDuration,
		c.PingLatency,
		c.Peers,
		c.Resolutions,
		c.ResolutionQueue,
		c.LedgerMessages,
		c.LedgerLatency,
		c.PersistenceFailures,
	)
	return c
}

// ObserveCycle records one completed cycle.
func (c *Collectors) ObserveCycle(latencyMs int, peers int, d time.Duration) {
	c.CyclesTotal.Inc()
	c.CycleDuration.Observe(d.Seconds())
	c.PingLatency.Set(float64(latencyMs))
	c.Peers.Set(float64(peers))
}

// ObserveFailedCycle records a discarded cycle.
func (c *Collectors) ObserveFailedCycle() {
	c.CyclesTotal.Inc()
	c.CyclesFailed.Inc()
}

// ObserveResolution counts a lookup outcome ("resolved" or "failed").
func (c *Collectors) ObserveResolution(outcome string, queued int) {
	c.Resolutions.WithLabelValues(outcome).Inc()
	c.ResolutionQueue.Set(float64(queued))
}

// ObserveLedgerMessage counts one inbound ledger message.
func (c *Collectors) ObserveLedgerMessage(kind, result string) {
	c.LedgerMessages.WithLabelValues(kind, result).Inc()
}

// SetLedgerLatency publishes the newest value of each derived series.
func (c *Collectors) SetLedgerLatency(upAck, upDown, down int64) {
	c.LedgerLatency.WithLabelValues("up_ack").Set(float64(upAck))
	c.LedgerLatency.WithLabelValues("up_down").Set(float64(upDown))
	c.LedgerLatency.WithLabelValues("down").Set(float64(down))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}
