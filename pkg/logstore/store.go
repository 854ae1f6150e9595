// Package logstore keeps the durable record of detections until an uploader
// drains it.
package logstore

import (
	"sync"
	"time"
)

// Record is one detection. Records are never modified after Append.
type Record struct {
	Word       string    `json:"Word"`
	Confidence float32   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is an append-only log with bulk drain.
type Store interface {
	// Append adds r to the end of the log.
	Append(r Record) error
	// Drain returns every record in append order and clears the log.
	Drain() ([]Record, error)
	// Len returns the number of pending records.
	Len() (int, error)
}

// MemoryStore is an in-process Store. It does not survive restarts.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *MemoryStore) Drain() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.records
	s.records = nil
	return out, nil
}

func (s *MemoryStore) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

// Records returns a copy of the pending records without draining.
func (s *MemoryStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
