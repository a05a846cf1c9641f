package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"netmon/internal/model"
)

func TestAppendCSV_WritesHeaderOnce(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "metrics.csv")

	s1 := model.Sample{Timestamp: time.Unix(1, 0).UTC(), CycleID: "c1", LatencyMs: 12, Replies: 1}
	s2 := model.Sample{Timestamp: time.Unix(2, 0).UTC(), CycleID: "c2", LatencyMs: 999}

	if err := AppendCSV(path, []model.Sample{s1}); err != nil {
		t.Fatalf("AppendCSV #1: %v", err)
	}
	if err := AppendCSV(path, []model.Sample{s2}); err != nil {
		t.Fatalf("AppendCSV #2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d\n%s", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "timestamp,") {
		t.Fatalf("missing header: %q", lines[0])
	}
}

func TestReadCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "metrics.csv")
	in := []model.Sample{{
		Timestamp:     time.Unix(100, 5).UTC(),
		CycleID:       "c1",
		LatencyMs:     15,
		Replies:       3,
		DurationMs:    420,
		PeerCount:     2,
		LocalAddress:  "192.168.1.10",
		PublicAddress: "203.0.113.7",
		NATType:       "restricted-cone",
	}}
	if err := AppendCSV(path, in); err != nil {
		t.Fatalf("AppendCSV: %v", err)
	}
	out, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Fatalf("out=%+v", out)
	}
}

func TestReadCSV_RejectsShortRecord(t *testing.T) {
	t.Parallel()

	if _, err := readCSV(strings.NewReader("timestamp,cycle_id\n2024-01-01T00:00:00Z,c1\n")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWriteCSV_Header(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if strings.TrimSpace(buf.String()) != strings.Join(header, ",") {
		t.Fatalf("out=%q", buf.String())
	}
}
