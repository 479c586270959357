package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the event store, used in
// tests and when no database path is configured
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make([]*Event, 0),
	}
}

// RecordEvent appends a restart event
func (s *MemoryStore) RecordEvent(e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.events = append(s.events, e)
	return nil
}

// RecentEvents returns up to limit events, newest first
func (s *MemoryStore) RecentEvents(limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.events[i])
	}
	return result, nil
}

// EventsByWorker returns up to limit events for one worker, newest first
func (s *MemoryStore) EventsByWorker(worker string, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(result) < limit; i-- {
		if s.events[i].Worker == worker {
			result = append(result, s.events[i])
		}
	}
	return result, nil
}

// CountByWorker returns the number of recorded restarts per worker
func (s *MemoryStore) CountByWorker() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range s.events {
		counts[e.Worker]++
	}
	return counts, nil
}

// PruneBefore deletes events older than cutoff and returns how many were removed
func (s *MemoryStore) PruneBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	removed := 0
	for _, e := range s.events {
		if e.At.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

// Vacuum is a no-op for the in-memory store
func (s *MemoryStore) Vacuum() error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}

// HealthCheck always succeeds for the in-memory store
func (s *MemoryStore) HealthCheck() error {
	return nil
}
