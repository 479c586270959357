package store

import (
	"path/filepath"
	"testing"
	"time"
)

// Both implementations must behave identically; every test runs against each.
func withStores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
		if err != nil {
			t.Fatalf("failed to open sqlite store: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
}

func TestRecordAndRecentEvents(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		base := time.Now().Add(-time.Hour).Truncate(time.Second)
		for i := 0; i < 5; i++ {
			err := s.RecordEvent(&Event{
				Worker:       "daily",
				Reason:       "stalled",
				PID:          1000 + i,
				RestartCount: i + 1,
				At:           base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("RecordEvent failed: %v", err)
			}
		}

		events, err := s.RecentEvents(3)
		if err != nil {
			t.Fatalf("RecentEvents failed: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		// Newest first.
		if events[0].PID != 1004 || events[2].PID != 1002 {
			t.Errorf("unexpected order: pids %d, %d, %d", events[0].PID, events[1].PID, events[2].PID)
		}
		if events[0].ID == "" {
			t.Error("expected generated event id")
		}
	})
}

func TestEventsByWorker(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		now := time.Now().Truncate(time.Second)
		s.RecordEvent(&Event{Worker: "daily", Reason: "stalled", At: now.Add(-2 * time.Minute)})
		s.RecordEvent(&Event{Worker: "indices", Reason: "error-signal", At: now.Add(-time.Minute)})
		s.RecordEvent(&Event{Worker: "daily", Reason: "missing-log", At: now})

		events, err := s.EventsByWorker("daily", 10)
		if err != nil {
			t.Fatalf("EventsByWorker failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events for daily, got %d", len(events))
		}
		if events[0].Reason != "missing-log" {
			t.Errorf("expected newest first, got %s", events[0].Reason)
		}
	})
}

func TestCountByWorker(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		s.RecordEvent(&Event{Worker: "daily", Reason: "stalled"})
		s.RecordEvent(&Event{Worker: "daily", Reason: "stalled"})
		s.RecordEvent(&Event{Worker: "indices", Reason: "error-signal"})

		counts, err := s.CountByWorker()
		if err != nil {
			t.Fatalf("CountByWorker failed: %v", err)
		}
		if counts["daily"] != 2 || counts["indices"] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}
	})
}

func TestPruneBefore(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		now := time.Now().Truncate(time.Second)
		s.RecordEvent(&Event{Worker: "daily", Reason: "stalled", At: now.Add(-48 * time.Hour)})
		s.RecordEvent(&Event{Worker: "daily", Reason: "stalled", At: now.Add(-36 * time.Hour)})
		s.RecordEvent(&Event{Worker: "daily", Reason: "stalled", At: now})

		pruned, err := s.PruneBefore(now.Add(-24 * time.Hour))
		if err != nil {
			t.Fatalf("PruneBefore failed: %v", err)
		}
		if pruned != 2 {
			t.Errorf("expected 2 pruned, got %d", pruned)
		}

		events, err := s.RecentEvents(10)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 {
			t.Errorf("expected 1 remaining event, got %d", len(events))
		}

		if err := s.Vacuum(); err != nil {
			t.Errorf("Vacuum failed: %v", err)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		if err := s.HealthCheck(); err != nil {
			t.Errorf("HealthCheck failed: %v", err)
		}
	})
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordEvent(&Event{Worker: "daily", Reason: "stalled", PID: 42, RestartCount: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	events, err := reopened.RecentEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Worker != "daily" || events[0].PID != 42 {
		t.Errorf("unexpected events after reopen: %+v", events)
	}
}
