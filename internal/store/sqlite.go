package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a SQLite-based implementation of the event store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL plus a busy timeout so the control loop and the API never trip over
	// each other; a single open connection serializes writes.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS restart_events (
		id TEXT PRIMARY KEY,
		worker TEXT NOT NULL,
		reason TEXT NOT NULL,
		pid INTEGER NOT NULL,
		restart_count INTEGER NOT NULL,
		at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_restart_events_worker ON restart_events(worker);
	CREATE INDEX IF NOT EXISTS idx_restart_events_at ON restart_events(at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordEvent inserts a restart event
func (s *SQLiteStore) RecordEvent(e *Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO restart_events (id, worker, reason, pid, restart_count, at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Worker, e.Reason, e.PID, e.RestartCount, e.At,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first
func (s *SQLiteStore) RecentEvents(limit int) ([]*Event, error) {
	rows, err := s.db.Query(
		`SELECT id, worker, reason, pid, restart_count, at FROM restart_events ORDER BY at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsByWorker returns up to limit events for one worker, newest first
func (s *SQLiteStore) EventsByWorker(worker string, limit int) ([]*Event, error) {
	rows, err := s.db.Query(
		`SELECT id, worker, reason, pid, restart_count, at FROM restart_events WHERE worker = ? ORDER BY at DESC, id LIMIT ?`,
		worker, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", worker, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	events := make([]*Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Worker, &e.Reason, &e.PID, &e.RestartCount, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CountByWorker returns the number of recorded restarts per worker
func (s *SQLiteStore) CountByWorker() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT worker, COUNT(*) FROM restart_events GROUP BY worker`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var worker string
		var count int
		if err := rows.Scan(&worker, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[worker] = count
	}
	return counts, rows.Err()
}

// PruneBefore deletes events older than cutoff and returns how many were removed
func (s *SQLiteStore) PruneBefore(cutoff time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM restart_events WHERE at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Vacuum reclaims space after pruning
func (s *SQLiteStore) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable
func (s *SQLiteStore) HealthCheck() error {
	return s.db.Ping()
}
