package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"netmon/internal/model"
)

// ReadCSV loads samples from a CSV file.
func ReadCSV(path string) ([]model.Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(r io.Reader) ([]model.Sample, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == "timestamp" {
		start = 1
	}

	items := make([]model.Sample, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(header) {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp at line %d: %w", i+1, err)
		}
		latency, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, fmt.Errorf("invalid latency at line %d: %w", i+1, err)
		}
		replies, _ := strconv.Atoi(rec[3])
		duration, _ := strconv.ParseInt(rec[4], 10, 64)
		peers, _ := strconv.Atoi(rec[5])
		items = append(items, model.Sample{
			Timestamp:     ts,
			CycleID:       rec[1],
			LatencyMs:     latency,
			Replies:       replies,
			DurationMs:    duration,
			PeerCount:     peers,
			LocalAddress:  rec[6],
			PublicAddress: rec[7],
			NATType:       rec[8],
		})
	}

	return items, nil
}
