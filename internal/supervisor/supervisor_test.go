package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/psantana5/scraperd/internal/store"
)

// Worker A writes one line and then goes silent, worker B keeps producing
// clean output. After one full interval with no growth only A is restarted;
// B's process and restart count are untouched.
func TestStallRestartsOnlyTheStalledWorker(t *testing.T) {
	dir := t.TempDir()
	events := store.NewMemoryStore()

	s := testSupervisor(t, []WorkerSpec{
		{Name: "a", Command: "sh", Args: []string{"-c", "echo start; exec sleep 600"}, LogPath: filepath.Join(dir, "a.log")},
		{Name: "b", Command: "sh", Args: []string{"-c", "while :; do echo tick; sleep 0.05; done"}, LogPath: filepath.Join(dir, "b.log")},
	}, Options{
		PollInterval: 300 * time.Millisecond,
		StopTimeout:  time.Second,
		Events:       events,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// Give the fleet a moment to come up, then record B's original pid.
	waitFor(t, 2*time.Second, func() bool {
		st, err := s.WorkerStatus("b")
		return err == nil && st.PID != 0
	})
	bStatus, _ := s.WorkerStatus("b")
	bPID := bStatus.PID

	// Cycle 1 sees A grow from the launch baseline; cycle 2 sees it frozen.
	waitFor(t, 5*time.Second, func() bool {
		st, _ := s.WorkerStatus("a")
		return st.Restarts >= 1
	})

	cancel()
	<-done

	aStatus, _ := s.WorkerStatus("a")
	bStatus, _ = s.WorkerStatus("b")

	if aStatus.Restarts < 1 {
		t.Errorf("expected worker a restarted at least once, got %d", aStatus.Restarts)
	}
	if bStatus.Restarts != 0 {
		t.Errorf("expected worker b never restarted, got %d", bStatus.Restarts)
	}
	if bStatus.PID != 0 && bStatus.PID != bPID {
		t.Errorf("worker b's process changed: was %d, now %d", bPID, bStatus.PID)
	}

	recorded, err := events.RecentEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range recorded {
		if e.Worker != "a" {
			t.Errorf("unexpected restart event for worker %s (%s)", e.Worker, e.Reason)
		}
		if e.Reason != string(ReasonStalled) {
			t.Errorf("expected stalled restart reason, got %s", e.Reason)
		}
	}
	if len(recorded) == 0 {
		t.Error("expected restart events to be recorded")
	}
}

// A worker whose log keeps growing but contains a failure marker is restarted
// even though it never stalls.
func TestErrorSignalRestartsGrowingWorker(t *testing.T) {
	dir := t.TempDir()
	events := store.NewMemoryStore()

	s := testSupervisor(t, []WorkerSpec{
		{Name: "w", Command: "sh", Args: []string{"-c", `while :; do echo "Traceback (most recent call last):"; sleep 0.05; done`}, LogPath: filepath.Join(dir, "w.log")},
	}, Options{
		PollInterval: 300 * time.Millisecond,
		StopTimeout:  time.Second,
		Events:       events,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	waitFor(t, 5*time.Second, func() bool {
		st, _ := s.WorkerStatus("w")
		return st.Restarts >= 1
	})

	cancel()
	<-done

	recorded, err := events.EventsByWorker("w", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) == 0 {
		t.Fatal("expected restart events")
	}
	if recorded[0].Reason != string(ReasonErrorSignal) {
		t.Errorf("expected error-signal reason, got %s", recorded[0].Reason)
	}
}

// Cancelling the run context stops every worker; none is left orphaned.
func TestShutdownStopsFleet(t *testing.T) {
	dir := t.TempDir()

	s := testSupervisor(t, []WorkerSpec{
		{Name: "a", Command: "sh", Args: []string{"-c", "while :; do echo tick; sleep 0.05; done"}, LogPath: filepath.Join(dir, "a.log")},
		{Name: "b", Command: "sleep", Args: []string{"600"}, LogPath: filepath.Join(dir, "b.log")},
	}, Options{
		PollInterval: time.Hour, // no cycles, just launch and shut down
		StopTimeout:  time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	waitFor(t, 2*time.Second, func() bool {
		a, _ := s.WorkerStatus("a")
		b, _ := s.WorkerStatus("b")
		return a.PID != 0 && b.PID != 0
	})
	a, _ := s.WorkerStatus("a")
	b, _ := s.WorkerStatus("b")

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	waitFor(t, 2*time.Second, func() bool { return processGone(a.PID) && processGone(b.PID) })

	aStatus, _ := s.WorkerStatus("a")
	if aStatus.PID != 0 {
		t.Errorf("expected no recorded pid after shutdown, got %d", aStatus.PID)
	}
}

// Manual restarts share the same protocol and are safe for a worker whose
// process already exited on its own.
func TestManualRestartAfterProcessExit(t *testing.T) {
	dir := t.TempDir()

	s := testSupervisor(t, []WorkerSpec{
		{Name: "w", Command: "sh", Args: []string{"-c", "echo done"}, LogPath: filepath.Join(dir, "w.log")},
	}, Options{StopTimeout: time.Second})

	st := s.workers["w"]
	if err := s.launch(st); err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	// Let the short-lived worker exit on its own.
	waitFor(t, 2*time.Second, func() bool { return st.exited() })

	if err := s.Restart("w", ReasonManual); err != nil {
		t.Fatalf("manual restart failed: %v", err)
	}
	defer s.stopAll()

	status, _ := s.WorkerStatus("w")
	if status.Restarts != 1 {
		t.Errorf("expected restart count 1, got %d", status.Restarts)
	}
}

// A worker that ignores SIGTERM must not freeze the status surface while it
// is being waited out, and a second restart arriving during the wait is
// skipped rather than stacked on the same process.
func TestStatusNotBlockedDuringStopWait(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "w.log")
	s := testSupervisor(t, []WorkerSpec{
		{Name: "w", Command: "sh", Args: []string{"-c", `trap "" TERM; echo armed; while :; do sleep 0.1; done`}, LogPath: logPath},
	}, Options{StopTimeout: time.Second})
	st := s.workers["w"]

	if err := s.launch(st); err != nil {
		t.Fatalf("launch failed: %v", err)
	}

	// Wait until the trap is installed so SIGTERM is actually ignored.
	waitFor(t, 2*time.Second, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && strings.Contains(string(data), "armed")
	})

	restartDone := make(chan struct{})
	go func() {
		defer close(restartDone)
		restartNow(s, st, ReasonStalled)
	}()

	// Let the restart send SIGTERM and enter its wait.
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	status, err := s.WorkerStatus("w")
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("status query blocked for %v behind a stop wait", elapsed)
	}
	if status.Phase != PhaseRestarting {
		t.Errorf("expected restarting phase during the stop wait, got %s", status.Phase)
	}

	// Overlapping restart of the same worker is a no-op.
	if err := s.Restart("w", ReasonManual); err != nil {
		t.Fatal(err)
	}

	select {
	case <-restartDone:
	case <-time.After(5 * time.Second):
		t.Fatal("restart did not complete")
	}
	defer stopNow(s, st)

	status, _ = s.WorkerStatus("w")
	if status.Restarts != 1 {
		t.Errorf("expected exactly one restart, got %d", status.Restarts)
	}
}

func TestRestartUnknownWorker(t *testing.T) {
	s, _, _ := singleWorker(t)
	if err := s.Restart("ghost", ReasonManual); err != ErrWorkerNotFound {
		t.Errorf("expected ErrWorkerNotFound, got %v", err)
	}
}

func TestNewValidatesSpecs(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Error("expected error for empty spec list")
	}

	_, err := New([]WorkerSpec{
		{Name: "a", Command: "sleep", LogPath: "/tmp/a.log"},
		{Name: "a", Command: "sleep", LogPath: "/tmp/b.log"},
	}, Options{})
	if err == nil {
		t.Error("expected error for duplicate worker names")
	}

	_, err = New([]WorkerSpec{{Name: "a"}}, Options{})
	if err == nil {
		t.Error("expected error for spec without command")
	}
}
