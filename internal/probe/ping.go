package probe

import (
	"context"
	"errors"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"netmon/internal/execx"
)

var pingTimeRe = regexp.MustCompile(`(?i)time[=<]([0-9]+(?:\.[0-9]+)?)`)

// Pinger shells out to the system ping utility.
type Pinger struct {
	Runner execx.Runner
	// GOOS selects the count flag; defaults to runtime.GOOS.
	GOOS string
}

func NewPinger(runner execx.Runner) *Pinger {
	return &Pinger{Runner: runner, GOOS: runtime.GOOS}
}

// MeasureReachability returns one latency per reply. A run with no replies
// is an error.
func (p *Pinger) MeasureReachability(ctx context.Context, target string, count int) ([]int, error) {
	if target == "" {
		return nil, errors.New("ping target is required")
	}
	if count <= 0 {
		count = 1
	}
	flag := "-c"
	if p.GOOS == "windows" {
		flag = "-n"
	}
	out, err := p.Runner.Output(ctx, "ping", flag, strconv.Itoa(count), target)
	if err != nil {
		return nil, err
	}
	latencies := ParsePing(out)
	if len(latencies) == 0 {
		return nil, errors.New("no ping replies")
	}
	return latencies, nil
}

// ParsePing extracts the per-reply round trip in whole milliseconds from ping
// output. Both "time=12.3 ms" and "time<1ms" forms are accepted.
func ParsePing(out string) []int {
	var latencies []int
	for _, line := range strings.Split(out, "\n") {
		m := pingTimeRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		latencies = append(latencies, int(math.Round(v)))
	}
	return latencies
}
