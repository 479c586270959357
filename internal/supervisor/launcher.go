package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// launch starts a worker with its combined output redirected to the log sink.
// The sink is truncated on every launch so size-based staleness detection is
// never confused by residue from a previous run. Callers hold s.mu.
func (s *Supervisor) launch(st *workerState) error {
	spec := st.spec

	f, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log sink %s: %w", spec.LogPath, err)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range spec.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	cmd.Stdout = f
	cmd.Stderr = f

	// Own process group: the worker must not share the supervisor's
	// controlling terminal lifecycle.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		f.Close()
		return fmt.Errorf("failed to start %s: %w", spec.Command, err)
	}
	// The child holds its own descriptor now.
	f.Close()

	done := make(chan struct{})
	st.cmd = cmd
	st.pid = cmd.Process.Pid
	st.done = done
	st.lastObservedSize = 0
	st.lastActivityTime = time.Now()
	st.phase = PhaseRunning

	s.logger.Info(fmt.Sprintf("worker %s started with PID %d", spec.Name, st.pid),
		map[string]interface{}{"worker": spec.Name, "pid": st.pid, "log": spec.LogPath})
	s.metrics.up.WithLabelValues(spec.Name).Set(1)

	// Reap the child so a crashed worker never lingers as a zombie.
	go func() {
		cmd.Wait()
		close(done)
	}()

	return nil
}

// exited reports whether the worker's process has already terminated
func (st *workerState) exited() bool {
	if st.done == nil {
		return true
	}
	select {
	case <-st.done:
		return true
	default:
		return false
	}
}
