package store

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"netmon/internal/model"
)

func sampleSets() []model.ProbeSet {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []model.ProbeSet{
		{
			ID:              "c1",
			StartedAt:       start,
			FinishedAt:      start.Add(300 * time.Millisecond),
			PingLatenciesMs: []int{12, 15, 9},
			LocalAddress:    "10.0.0.5",
			PublicAddress:   "203.0.113.7",
			NATType:         "cone_or_restricted",
			Peers:           []model.Peer{{Address: "10.0.0.2", HardwareID: "AA:BB", Kind: "ether"}},
		},
		{
			ID:              "c2",
			StartedAt:       start.Add(time.Second),
			FinishedAt:      start.Add(1200 * time.Millisecond),
			PingLatenciesMs: []int{20},
			LocalAddress:    "10.0.0.5",
			PublicAddress:   "203.0.113.7",
			Peers:           []model.Peer{},
		},
	}
}

func TestFileStore_MissingFile_ReturnsEmpty(t *testing.T) {
	t.Parallel()

	s := NewFileStore(filepath.Join(t.TempDir(), "history.yaml"))
	sets, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sets) != 0 {
		t.Fatalf("sets=%d", len(sets))
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "history.yaml")
	s := NewFileStore(path)
	in := sampleSets()
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameSets(t, in, out)

	// save(load()) is idempotent.
	if err := s.Save(out); err != nil {
		t.Fatalf("Save #2: %v", err)
	}
	again, err := s.Load()
	if err != nil {
		t.Fatalf("Load #2: %v", err)
	}
	assertSameSets(t, out, again)
}

func TestFileStore_SaveEmptyClears(t *testing.T) {
	t.Parallel()

	s := NewFileStore(filepath.Join(t.TempDir(), "history.yaml"))
	if err := s.Save(sampleSets()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(nil); err != nil {
		t.Fatalf("Save empty: %v", err)
	}
	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("sets=%d", len(out))
	}
}

func TestBoltStore_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	in := sampleSets()
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameSets(t, in, out)

	if err := s.Save(in[:1]); err != nil {
		t.Fatalf("Save shorter: %v", err)
	}
	out, err = s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 1 || out[0].ID != "c1" {
		t.Fatalf("sets=%+v", out)
	}
}

func TestBoltStore_OrderBeyondTenEntries(t *testing.T) {
	t.Parallel()

	s, err := OpenBolt(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer s.Close()

	var in []model.ProbeSet
	for i := 0; i < 300; i++ {
		in = append(in, model.ProbeSet{ID: string(rune('a' + i%26)), PingLatenciesMs: []int{i}})
	}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i := range out {
		if out[i].PingLatenciesMs[0] != i {
			t.Fatalf("order broken at %d: %v", i, out[i].PingLatenciesMs)
		}
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := Open("sqlite", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open(BackendYAML, ""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func assertSameSets(t *testing.T, want, got []model.ProbeSet) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("len want=%d got=%d", len(want), len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		if !w.StartedAt.Equal(g.StartedAt) || !w.FinishedAt.Equal(g.FinishedAt) {
			t.Fatalf("set %d times differ: %v/%v vs %v/%v", i, w.StartedAt, w.FinishedAt, g.StartedAt, g.FinishedAt)
		}
		w.StartedAt, w.FinishedAt = time.Time{}, time.Time{}
		g.StartedAt, g.FinishedAt = time.Time{}, time.Time{}
		if len(w.Peers) == 0 && len(g.Peers) == 0 {
			w.Peers, g.Peers = nil, nil
		}
		if !reflect.DeepEqual(w, g) {
			t.Fatalf("set %d differs:\nwant %+v\ngot  %+v", i, w, g)
		}
	}
}
