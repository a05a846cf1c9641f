package monitor

import (
	"time"

	"netmon/internal/history"
	"netmon/internal/ledger"
	"netmon/internal/model"
)

// Status summarises the agent for display.
type Status struct {
	Cycles         int       `json:"cycles"`
	FailedCycles   int       `json:"failed_cycles"`
	HistoryLen     int       `json:"history_len"`
	LastCycleID    string    `json:"last_cycle_id,omitempty"`
	LastFinishedAt time.Time `json:"last_finished_at,omitempty"`
	LastDurationMs int64     `json:"last_duration_ms"`
	LastLatencyMs  int       `json:"last_latency_ms"`
	// DeviceCount includes this host.
	DeviceCount     int       `json:"device_count"`
	LocalAddress    string    `json:"local_address,omitempty"`
	PublicAddress   string    `json:"public_address,omitempty"`
	NATType         string    `json:"nat_type,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	LastErrorAt     time.Time `json:"last_error_at,omitempty"`
	PendingLookups  int       `json:"pending_lookups"`
	LedgerEnabled   bool      `json:"ledger_enabled"`
	LedgerConnected bool      `json:"ledger_connected"`
}

// PeerView is a peer of the latest cycle with its vendor name, if known.
type PeerView struct {
	Address    string `json:"address"`
	HardwareID string `json:"hardware_id"`
	Kind       string `json:"kind"`
	Vendor     string `json:"vendor,omitempty"`
	// Status is the resolution state: pending, resolved, failed or unknown.
	Status string `json:"status"`
}

// LatencyView is the per-cycle latency series with its labels.
type LatencyView struct {
	Labels    []time.Time `json:"labels"`
	CycleIDs  []string    `json:"cycle_ids"`
	LatencyMs []int       `json:"latency_ms"`
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	st := Status{
		Cycles:       m.cycles,
		FailedCycles: m.failed,
		LastErrorAt:  m.lastErrAt,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	st.HistoryLen = m.history.Len()
	st.PendingLookups = m.queue.Pending()
	st.LedgerEnabled = m.transport != nil
	if m.transport != nil {
		st.LedgerConnected = m.transport.Connected()
	}
	st.DeviceCount = 1
	if set, ok := m.history.Latest(); ok {
		st.LastCycleID = set.ID
		st.LastFinishedAt = set.FinishedAt
		st.LastDurationMs = set.Duration().Milliseconds()
		st.LastLatencyMs = set.MaxLatency(m.cfg.Monitor.FailureLatencyMs)
		st.DeviceCount = len(set.Peers) + 1
		st.LocalAddress = set.LocalAddress
		st.PublicAddress = set.PublicAddress
		st.NATType = set.NATType
	}
	return st
}

// LatestProbeSet returns the most recent completed cycle.
func (m *Monitor) LatestProbeSet() (model.ProbeSet, bool) {
	return m.history.Latest()
}

// Cycles is the number of cycles attempted so far, failed ones included.
func (m *Monitor) Cycles() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycles
}

// LastError is the most recent cycle failure, if any.
func (m *Monitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// LatencySeries returns the slowest reply of every recorded cycle, oldest
// first.
func (m *Monitor) LatencySeries() LatencyView {
	sets := m.history.All()
	v := LatencyView{
		Labels:    make([]time.Time, len(sets)),
		CycleIDs:  make([]string, len(sets)),
		LatencyMs: history.LatencySeries(sets, m.cfg.Monitor.FailureLatencyMs),
	}
	for i, set := range sets {
		v.Labels[i] = set.FinishedAt
		v.CycleIDs[i] = set.ID
	}
	return v
}

// PeerList returns the peers of the latest cycle with resolved names.
func (m *Monitor) PeerList() []PeerView {
	set, ok := m.history.Latest()
	if !ok {
		return []PeerView{}
	}
	out := make([]PeerView, 0, len(set.Peers))
	for _, p := range set.Peers {
		v := PeerView{
			Address:    p.Address,
			HardwareID: p.HardwareID,
			Kind:       p.Kind,
			Status:     m.queue.Status(p.HardwareID).String(),
		}
		if name, ok := m.queue.Lookup(p.HardwareID); ok {
			v.Vendor = name
		}
		out = append(out, v)
	}
	return out
}

// LedgerSeries returns the three derived latency series.
func (m *Monitor) LedgerSeries() ledger.Series {
	return m.ledger.Series()
}

// ClearHistory empties the history. The in-memory log is cleared even when
// persisting the empty log fails.
func (m *Monitor) ClearHistory() error {
	if err := m.history.Clear(); err != nil {
		m.metrics.PersistenceFailures.Inc()
		return err
	}
	m.logger.Info("history cleared")
	return nil
}

// ClearLedger empties both ledgers.
func (m *Monitor) ClearLedger() {
	m.ledger.Clear()
	m.logger.Info("ledger cleared")
}
