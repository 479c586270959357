package store

import "time"

// Event records one restart of a supervised worker. History is kept for
// observability only; the control loop never reads it back.
type Event struct {
	ID           string    `json:"id"`
	Worker       string    `json:"worker"`
	Reason       string    `json:"reason"`
	PID          int       `json:"pid"`
	RestartCount int       `json:"restart_count"`
	At           time.Time `json:"at"`
}

// Store defines the interface for restart-event persistence
// Both the in-memory and SQLite implementations satisfy it
type Store interface {
	// Event operations
	RecordEvent(e *Event) error
	RecentEvents(limit int) ([]*Event, error)
	EventsByWorker(worker string, limit int) ([]*Event, error)
	CountByWorker() (map[string]int, error)

	// Retention
	PruneBefore(cutoff time.Time) (int, error)
	Vacuum() error

	// Lifecycle
	Close() error
	HealthCheck() error
}
