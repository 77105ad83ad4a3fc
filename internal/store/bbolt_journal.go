package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// RunStore is the bbolt-backed run journal. All writes are upserts keyed by
// session id.
type RunStore struct {
	db *bolt.DB
	mu sync.Mutex
}

func OpenRunStore(path string) (*RunStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// List returns all journal entries, oldest start first.
func (s *RunStore) List() ([]*RunRecord, error) {
	out := make([]*RunRecord, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var record RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			copyRecord := record
			out = append(out, &copyRecord)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (s *RunStore) Get(sessionID string) (*RunRecord, bool, error) {
	var (
		out *RunRecord
		ok  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(sessionID))
		if len(raw) == 0 {
			return nil
		}
		var record RunRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		out = &record
		ok = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, ok, nil
}

// Latest returns the most recently started record, if any.
func (s *RunStore) Latest() (*RunRecord, bool, error) {
	records, err := s.List()
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[len(records)-1], true, nil
}

// Upsert writes the record, preserving the original StartedAt when an entry
// for the session already exists.
func (s *RunStore) Upsert(record *RunRecord) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record == nil || record.SessionID == "" {
		return nil, errors.New("run record requires session_id")
	}
	normalized := *record
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return errors.New("runs bucket missing")
		}
		key := []byte(normalized.SessionID)
		if raw := b.Get(key); len(raw) > 0 {
			var existing RunRecord
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if !existing.StartedAt.IsZero() {
				normalized.StartedAt = existing.StartedAt
			}
		}
		if normalized.StartedAt.IsZero() {
			normalized.StartedAt = time.Now().UTC()
		}
		raw, err := json.Marshal(&normalized)
		if err != nil {
			return err
		}
		return b.Put(key, raw)
	}); err != nil {
		return nil, err
	}
	copyRecord := normalized
	return &copyRecord, nil
}

// LatestRun opens the journal read-only just long enough to fetch the most
// recent record. Safe to call while a harness holds the write lock; lock
// contention surfaces as an error the caller can ignore.
func LatestRun(path string) (*RunRecord, bool, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, false, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:  500 * time.Millisecond,
		ReadOnly: true,
	})
	if err != nil {
		return nil, false, err
	}
	defer db.Close()

	var latest *RunRecord
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var record RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if latest == nil || record.StartedAt.After(latest.StartedAt) {
				copyRecord := record
				latest = &copyRecord
			}
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return latest, latest != nil, nil
}

func (s *RunStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return errors.New("runs bucket missing")
		}
		key := []byte(sessionID)
		if b.Get(key) == nil {
			return ErrRunNotFound
		}
		return b.Delete(key)
	})
}
