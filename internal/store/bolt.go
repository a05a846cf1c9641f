package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"netmon/internal/model"
)

var probeSetsBucket = []byte("probe_sets")

// BoltStore persists the history in a bolt bucket keyed by big-endian
// sequence numbers, so cursor order is append order.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(probeSetsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create probe_sets bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load() ([]model.ProbeSet, error) {
	var sets []model.ProbeSet
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(probeSetsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var set model.ProbeSet
			if err := json.Unmarshal(v, &set); err != nil {
				return fmt.Errorf("decode probe set %d: %w", binary.BigEndian.Uint64(k), err)
			}
			sets = append(sets, set)
			return nil
		})
	})
	return sets, err
}

// Save swaps the bucket contents in a single transaction.
func (s *BoltStore) Save(sets []model.ProbeSet) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(probeSetsBucket) != nil {
			if err := tx.DeleteBucket(probeSetsBucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(probeSetsBucket)
		if err != nil {
			return err
		}
		for i, set := range sets {
			v, err := json.Marshal(set)
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(uint64(i)), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(i uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, i)
	return k
}
