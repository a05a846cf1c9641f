package metrics

import (
	"math"
	"sort"
	"time"

	"netmon/internal/model"
)

// Summary is a basic statistics snapshot.
type Summary struct {
	Count         int
	Failed        int
	From          time.Time
	To            time.Time
	AvgLatencyMs  float64
	P95LatencyMs  float64
	MinLatencyMs  float64
	MaxLatencyMs  float64
	AvgDurationMs float64
	AvgPeers      float64
}

// Summarize computes summary statistics for samples at or after since.
// Cycles without a reply count as failed and are left out of the latency
// figures, since their latency is only the sentinel.
func Summarize(items []model.Sample, since time.Time) Summary {
	filtered := make([]model.Sample, 0, len(items))
	for _, s := range items {
		if s.Timestamp.After(since) || s.Timestamp.Equal(since) {
			filtered = append(filtered, s)
		}
	}

	if len(filtered) == 0 {
		return Summary{Count: 0}
	}

	values := make([]float64, 0, len(filtered))
	var sumLatency, sumDuration, sumPeers float64
	minLatency := math.MaxFloat64
	maxLatency := 0.0
	failed := 0
	from := filtered[0].Timestamp
	to := filtered[0].Timestamp

	for _, s := range filtered {
		sumDuration += float64(s.DurationMs)
		sumPeers += float64(s.PeerCount)
		if s.Timestamp.Before(from) {
			from = s.Timestamp
		}
		if s.Timestamp.After(to) {
			to = s.Timestamp
		}
		if s.Replies == 0 {
			failed++
			continue
		}
		v := float64(s.LatencyMs)
		values = append(values, v)
		sumLatency += v
		if v < minLatency {
			minLatency = v
		}
		if v > maxLatency {
			maxLatency = v
		}
	}

	count := float64(len(filtered))
	out := Summary{
		Count:         len(filtered),
		Failed:        failed,
		From:          from,
		To:            to,
		AvgDurationMs: sumDuration / count,
		AvgPeers:      sumPeers / count,
	}
	if len(values) > 0 {
		sort.Float64s(values)
		out.AvgLatencyMs = sumLatency / float64(len(values))
		out.P95LatencyMs = percentile(values, 0.95)
		out.MinLatencyMs = minLatency
		out.MaxLatencyMs = maxLatency
	}
	return out
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
