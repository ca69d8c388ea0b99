// Package store persists discovered endpoints across runs.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PentesterFlow/AuthScope/internal/probe"
)

var (
	bucketEndpoints = []byte("endpoints")
	bucketRuns      = []byte("runs")
)

// Store is a disk-backed endpoint store using BoltDB. Endpoints are keyed
// by "METHOD url" per target, so re-running against the same target updates
// in place instead of duplicating.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	closed bool
	dbPath string
}

// Record is one persisted endpoint with its discovery metadata.
type Record struct {
	Target    string         `json:"target"`
	Endpoint  probe.Endpoint `json:"endpoint"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
	TimesSeen int            `json:"times_seen"`
}

// RunRecord summarizes one pipeline run.
type RunRecord struct {
	Target         string    `json:"target"`
	StartedAt      time.Time `json:"started_at"`
	Duration       string    `json:"duration"`
	EndpointsFound int       `json:"endpoints_found"`
	LoginCaptured  bool      `json:"login_captured"`
}

// Open opens or creates the store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEndpoints); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketRuns); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// endpointKey builds the per-target unique key.
func endpointKey(target string, ep probe.Endpoint) []byte {
	return []byte(target + "|" + ep.Method + " " + ep.URL)
}

// SaveEndpoints upserts the run's endpoints. Known endpoints keep their
// FirstSeen and get their probe result and LastSeen refreshed.
func (s *Store) SaveEndpoints(target string, endpoints []probe.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	now := time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEndpoints)

		for _, ep := range endpoints {
			key := endpointKey(target, ep)

			rec := Record{
				Target:    target,
				Endpoint:  ep,
				FirstSeen: now,
				LastSeen:  now,
				TimesSeen: 1,
			}
			if raw := b.Get(key); raw != nil {
				var prev Record
				if err := json.Unmarshal(raw, &prev); err == nil {
					rec.FirstSeen = prev.FirstSeen
					rec.TimesSeen = prev.TimesSeen + 1
				}
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Endpoints returns every stored endpoint record for a target.
func (s *Store) Endpoints(target string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	prefix := []byte(target + "|")
	var records []Record

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEndpoints).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // skip corrupt records
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// KnownKeys returns the (method, url) keys already stored for a target,
// for seeding the dedup engine on resumed runs.
func (s *Store) KnownKeys(target string) ([]string, error) {
	records, err := s.Endpoints(target)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Endpoint.Method+" "+rec.Endpoint.URL)
	}
	return keys, nil
}

// SaveRun appends a run summary keyed by target and start time.
func (s *Store) SaveRun(run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		key := []byte(run.Target + "|" + run.StartedAt.UTC().Format(time.RFC3339Nano))
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// Runs returns every stored run summary for a target, oldest first.
func (s *Store) Runs(target string) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	prefix := []byte(target + "|")
	var runs []RunRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})
	return runs, err
}

// Clear removes all endpoint records for a target.
func (s *Store) Clear(target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	prefix := []byte(target + "|")
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEndpoints)
		c := b.Cursor()

		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats returns total record counts across all targets.
func (s *Store) Stats() (endpointCount, runCount int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketEndpoints); b != nil {
			endpointCount = b.Stats().KeyN
		}
		if b := tx.Bucket(bucketRuns); b != nil {
			runCount = b.Stats().KeyN
		}
		return nil
	})
	return
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errStoreClosed{}

type errStoreClosed struct{}

func (errStoreClosed) Error() string { return "endpoint store is closed" }
