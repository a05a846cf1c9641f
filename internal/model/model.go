package model

import (
	"strings"
	"time"
)

// DefaultFailureLatencyMs stands in for a cycle whose ping produced no reply.
const DefaultFailureLatencyMs = 999

// ProbeSet is the result of one completed measurement cycle.
type ProbeSet struct {
	ID              string    `yaml:"id" json:"id"`
	StartedAt       time.Time `yaml:"started_at" json:"started_at"`
	FinishedAt      time.Time `yaml:"finished_at" json:"finished_at"`
	PingLatenciesMs []int     `yaml:"ping_latencies_ms" json:"ping_latencies_ms"`
	LocalAddress    string    `yaml:"local_address" json:"local_address"`
	PublicAddress   string    `yaml:"public_address" json:"public_address"`
	NATType         string    `yaml:"nat_type,omitempty" json:"nat_type,omitempty"`
	Peers           []Peer    `yaml:"peers" json:"peers"`
}

// Peer is a device observed on the local segment.
type Peer struct {
	Address    string `yaml:"address" json:"address"`
	HardwareID string `yaml:"hardware_id" json:"hardware_id"`
	Kind       string `yaml:"kind" json:"kind"`
}

// Sample is a single per-cycle row appended to the metrics CSV.
type Sample struct {
	Timestamp     time.Time
	CycleID       string
	LatencyMs     int
	Replies       int
	DurationMs    int64
	PeerCount     int
	LocalAddress  string
	PublicAddress string
	NATType       string
}

// MaxLatency returns the slowest reply of the cycle, or sentinel when
// the cycle produced no replies.
func (p ProbeSet) MaxLatency(sentinel int) int {
	if len(p.PingLatenciesMs) == 0 {
		return sentinel
	}
	max := p.PingLatenciesMs[0]
	for _, v := range p.PingLatenciesMs[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Duration is the wall-clock time the whole fan-out took.
func (p ProbeSet) Duration() time.Duration {
	if p.FinishedAt.Before(p.StartedAt) {
		return 0
	}
	return p.FinishedAt.Sub(p.StartedAt)
}

// Sample flattens the set into a metrics row.
func (p ProbeSet) Sample(sentinel int) Sample {
	return Sample{
		Timestamp:     p.FinishedAt.UTC(),
		CycleID:       p.ID,
		LatencyMs:     p.MaxLatency(sentinel),
		Replies:       len(p.PingLatenciesMs),
		DurationMs:    p.Duration().Milliseconds(),
		PeerCount:     len(p.Peers),
		LocalAddress:  p.LocalAddress,
		PublicAddress: p.PublicAddress,
		NATType:       p.NATType,
	}
}

// Clone returns a deep copy so callers can't mutate stored slices.
func (p ProbeSet) Clone() ProbeSet {
	out := p
	if p.PingLatenciesMs != nil {
		out.PingLatenciesMs = append([]int(nil), p.PingLatenciesMs...)
	}
	if p.Peers != nil {
		out.Peers = append([]Peer(nil), p.Peers...)
	}
	return out
}

// NormalizeHardwareID canonicalizes MAC-like identifiers to upper-case,
// colon separated form ("aa-bb-cc" -> "AA:BB:CC"). Single digit octets as
// printed by BSD arp ("0:1b") are zero padded.
func NormalizeHardwareID(id string) string {
	id = strings.TrimSpace(id)
	parts := strings.Split(strings.ReplaceAll(id, "-", ":"), ":")
	for i, part := range parts {
		if len(part) == 1 {
			parts[i] = "0" + part
		}
	}
	return strings.ToUpper(strings.Join(parts, ":"))
}

// DedupePeers drops peers whose hardware ID was already seen, keeping the
// first occurrence and the original order.
func DedupePeers(peers []Peer) []Peer {
	if len(peers) == 0 {
		return peers
	}
	seen := make(map[string]struct{}, len(peers))
	out := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p.HardwareID == "" {
			continue
		}
		if _, ok := seen[p.HardwareID]; ok {
			continue
		}
		seen[p.HardwareID] = struct{}{}
		out = append(out, p)
	}
	return out
}
