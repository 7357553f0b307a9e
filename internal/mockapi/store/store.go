package store

import (
	"encoding/json"
	"sync"
	"time"
)

// Store is the single in-memory state block behind the collector API:
// lifetime counters plus every received batch, guarded by one mutex.
type Store struct {
	mu sync.Mutex

	startTime    time.Time
	totalBatches int
	totalMetrics int
	lastReceived time.Time // zero until the first batch arrives
	batches      []StoredBatch
}

// StoredBatch is one received metrics upload. Batch holds the request
// body verbatim so reads return exactly what the agent sent.
type StoredBatch struct {
	ReceivedAt time.Time
	Batch      json.RawMessage
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	StartTime     time.Time
	TotalBatches  int
	TotalMetrics  int
	LastReceived  time.Time // zero means no batch received yet
	StoredBatches int
}

func New() *Store {
	return &Store{startTime: time.Now()}
}

// StartTime is fixed at construction and survives resets.
func (s *Store) StartTime() time.Time {
	return s.startTime
}

// Append records one batch and updates every counter in a single
// critical section. Returns the timestamp stored with the batch.
func (s *Store) Append(batch json.RawMessage, metricCount int) time.Time {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalBatches++
	s.totalMetrics += metricCount
	s.lastReceived = now
	s.batches = append(s.batches, StoredBatch{ReceivedAt: now, Batch: batch})

	return now
}

func (s *Store) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		StartTime:     s.startTime,
		TotalBatches:  s.totalBatches,
		TotalMetrics:  s.totalMetrics,
		LastReceived:  s.lastReceived,
		StoredBatches: len(s.batches),
	}
}

// Latest returns the most recently received batch, if any.
func (s *Store) Latest() (StoredBatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.batches) == 0 {
		return StoredBatch{}, false
	}
	return s.batches[len(s.batches)-1], true
}

// All returns the received batches oldest first.
func (s *Store) All() []StoredBatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StoredBatch, len(s.batches))
	copy(out, s.batches)
	return out
}

// Reset drops all batches and zeroes the counters. The start time is
// left alone. Safe to call on an already empty store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalBatches = 0
	s.totalMetrics = 0
	s.lastReceived = time.Time{}
	s.batches = nil
}
