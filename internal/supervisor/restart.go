package supervisor

import (
	"fmt"
	"syscall"
	"time"

	"github.com/psantana5/scraperd/internal/store"
)

// restart replaces an unhealthy worker with a fresh instance: graceful stop,
// state reset, relaunch. Invoking it on a worker with no live process makes
// the stop step a no-op, so the missing and stalled remediations share this
// one path. Callers hold s.mu.
func (s *Supervisor) restart(st *workerState, reason Reason) {
	name := st.spec.Name

	s.logger.Info(fmt.Sprintf("restarting worker %s: %s", name, reason),
		map[string]interface{}{"worker": name, "reason": string(reason), "pid": st.pid, "restarts": st.restartCount})

	st.phase = PhaseRestarting
	oldPID := st.pid

	// The old instance must be gone before the new one starts; two instances
	// writing the same sink would corrupt downstream artifacts.
	if err := s.stop(st); err != nil {
		s.logger.Error(fmt.Sprintf("failed to stop worker %s: %v", name, err),
			map[string]interface{}{"worker": name})
	}

	st.lastObservedSize = 0
	st.lastActivityTime = time.Now()
	st.restartCount++
	s.metrics.restarts.WithLabelValues(name, string(reason)).Inc()

	if s.events != nil {
		event := &store.Event{
			Worker:       name,
			Reason:       string(reason),
			PID:          oldPID,
			RestartCount: st.restartCount,
			At:           time.Now(),
		}
		if err := s.events.RecordEvent(event); err != nil {
			s.logger.Warn(fmt.Sprintf("failed to record restart event for %s: %v", name, err),
				map[string]interface{}{"worker": name})
		}
	}

	if err := s.launch(st); err != nil {
		// Reported, handle left absent; the next cycle tries again.
		s.logger.Error(fmt.Sprintf("failed to relaunch worker %s: %v", name, err),
			map[string]interface{}{"worker": name})
		st.phase = PhaseStarting
	}
}

// stop terminates the worker's process if one is recorded: SIGTERM, bounded
// wait, then SIGKILL. It always returns with the process gone, preserving the
// at-most-one-live-instance invariant. Callers hold s.mu; the lock is
// released around the blocking wait so status queries and other workers'
// restarts never stack up behind a worker that is slow to die. The
// Restarting phase set by restart keeps a second restart of the same worker
// out of the unlocked window.
func (s *Supervisor) stop(st *workerState) error {
	if st.cmd == nil || st.cmd.Process == nil {
		return nil
	}

	name := st.spec.Name

	if st.exited() {
		s.clearProcess(st)
		return nil
	}

	cmd := st.cmd
	done := st.done
	pid := st.pid

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Raced with process exit; the reaper will have closed done.
		s.logger.Debug(fmt.Sprintf("SIGTERM to worker %s failed: %v", name, err),
			map[string]interface{}{"worker": name})
	}

	s.mu.Unlock()
	select {
	case <-done:
	case <-time.After(s.opts.StopTimeout):
		s.logger.Warn(fmt.Sprintf("worker %s did not stop within %v, killing", name, s.opts.StopTimeout),
			map[string]interface{}{"worker": name, "pid": pid})
		s.metrics.kills.WithLabelValues(name).Inc()
		if err := cmd.Process.Kill(); err != nil {
			s.logger.Debug(fmt.Sprintf("SIGKILL to worker %s failed: %v", name, err),
				map[string]interface{}{"worker": name})
		}
		<-done
	}
	s.mu.Lock()

	s.clearProcess(st)
	return nil
}

func (s *Supervisor) clearProcess(st *workerState) {
	st.cmd = nil
	st.pid = 0
	st.done = nil
	s.metrics.up.WithLabelValues(st.spec.Name).Set(0)
}
