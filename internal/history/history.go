// Package history keeps the ordered log of completed probe cycles.
package history

import (
	"errors"
	"fmt"
	"sync"

	"netmon/internal/model"
)

// ErrPersistence wraps backend failures. The in-memory log stays
// authoritative when it is returned.
var ErrPersistence = errors.New("history persistence failed")

// Persister saves and loads the whole ordered collection.
type Persister interface {
	Save(sets []model.ProbeSet) error
	Load() ([]model.ProbeSet, error)
}

// Store is an append-only sequence of ProbeSets mirrored to a Persister
// after every mutation.
type Store struct {
	mu        sync.RWMutex
	sets      []model.ProbeSet
	persister Persister
	// dirty is set while the persisted copy lags the in-memory one.
	dirty bool
}

// Open loads prior history from p. A nil persister keeps history in memory only.
func Open(p Persister) (*Store, error) {
	s := &Store{persister: p}
	if p == nil {
		return s, nil
	}
	sets, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: load: %v", ErrPersistence, err)
	}
	s.sets = sets
	return s, nil
}

// Append records set and persists the full sequence. On a persistence error
// the set is still kept in memory and the next successful save catches up.
func (s *Store) Append(set model.ProbeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sets = append(s.sets, set.Clone())
	return s.saveLocked()
}

// Clear empties the history in one step.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sets = nil
	return s.saveLocked()
}

// Flush retries persistence if an earlier save failed.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(s.copyLocked()); err != nil {
		s.dirty = true
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.dirty = false
	return nil
}

// All returns a copy of the ordered history.
func (s *Store) All() []model.ProbeSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() []model.ProbeSet {
	out := make([]model.ProbeSet, len(s.sets))
	for i, set := range s.sets {
		out[i] = set.Clone()
	}
	return out
}

// Latest returns the most recent set.
func (s *Store) Latest() (model.ProbeSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.sets) == 0 {
		return model.ProbeSet{}, false
	}
	return s.sets[len(s.sets)-1].Clone(), true
}

// Len is the number of recorded cycles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets)
}

// LatencySeries returns, per set, the slowest ping reply; sets without
// replies map to sentinel.
func LatencySeries(sets []model.ProbeSet, sentinel int) []int {
	out := make([]int, len(sets))
	for i, set := range sets {
		out[i] = set.MaxLatency(sentinel)
	}
	return out
}

// NewHardwareIDs lists the peers of the most recent set that known does not
// recognise yet, in discovery order.
func NewHardwareIDs(sets []model.ProbeSet, known func(string) bool) []string {
	if len(sets) == 0 {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, peer := range sets[len(sets)-1].Peers {
		id := peer.HardwareID
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if known != nil && known(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
