package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/psantana5/scraperd/internal/store"
	"github.com/psantana5/scraperd/pkg/logging"
)

var ErrWorkerNotFound = errors.New("worker not found")

// Phase is the lifecycle state of a supervised worker
type Phase string

const (
	PhaseStarting   Phase = "starting"
	PhaseRunning    Phase = "running"
	PhaseStalled    Phase = "stalled"
	PhaseFailed     Phase = "failed"
	PhaseMissing    Phase = "missing"
	PhaseRestarting Phase = "restarting"
)

// Reason is why a worker was judged unhealthy
type Reason string

const (
	ReasonStalled     Reason = "stalled"
	ReasonErrorSignal Reason = "error-signal"
	ReasonMissingLog  Reason = "missing-log"
	ReasonManual      Reason = "manual"
)

// WorkerSpec describes one worker to keep alive. It is immutable after the
// supervisor is created.
type WorkerSpec struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	Env     map[string]string
	LogPath string
}

// workerState is the mutable per-worker state, owned by the supervisor
type workerState struct {
	spec             WorkerSpec
	cmd              *exec.Cmd
	pid              int
	done             chan struct{} // closed when the reaper's Wait returns
	lastObservedSize int64
	lastActivityTime time.Time
	restartCount     int
	phase            Phase
}

// WorkerStatus is a point-in-time snapshot of one worker, safe to hand out
type WorkerStatus struct {
	Name         string    `json:"name"`
	Phase        Phase     `json:"phase"`
	PID          int       `json:"pid,omitempty"`
	Restarts     int       `json:"restarts"`
	LogPath      string    `json:"log_path"`
	LogSize      int64     `json:"log_size"`
	LastActivity time.Time `json:"last_activity"`
}

// Options configures a Supervisor
type Options struct {
	PollInterval time.Duration
	StopTimeout  time.Duration
	Markers      []string
	Logger       *logging.Logger
	Events       store.Store           // optional restart-event sink
	Registry     prometheus.Registerer // optional, defaults to a private registry
}

// Supervisor keeps a fixed fleet of worker processes alive. All mutable state
// lives on the value itself so independent supervisors can coexist, there is
// no package-level state.
type Supervisor struct {
	opts    Options
	mu      sync.Mutex
	workers map[string]*workerState
	order   []string
	logger  *logging.Logger
	events  store.Store
	metrics *metrics
}

// New creates a Supervisor for the given worker specs
func New(specs []WorkerSpec, opts Options) (*Supervisor, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one worker spec is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 300 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 30 * time.Second
	}
	if len(opts.Markers) == 0 {
		opts.Markers = []string{"error", "exception", "traceback", "exit"}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.INFO, false)
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Supervisor{
		opts:    opts,
		workers: make(map[string]*workerState, len(specs)),
		order:   make([]string, 0, len(specs)),
		logger:  opts.Logger,
		events:  opts.Events,
		metrics: newMetrics(reg),
	}

	for _, spec := range specs {
		if spec.Name == "" || spec.Command == "" || spec.LogPath == "" {
			return nil, fmt.Errorf("worker spec %q: name, command and log path are required", spec.Name)
		}
		if _, exists := s.workers[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate worker name %q", spec.Name)
		}
		s.workers[spec.Name] = &workerState{
			spec:  spec,
			phase: PhaseStarting,
		}
		s.order = append(s.order, spec.Name)
	}

	return s, nil
}

// Run launches every worker and then polls until ctx is cancelled. Worker
// failures never propagate out; the loop only exits on cancellation, after
// stopping the fleet gracefully.
func (s *Supervisor) Run(ctx context.Context) error {
	s.launchAll()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopping, shutting down workers")
			s.stopAll()
			return nil
		case <-ticker.C:
			s.cycle()
		}
	}
}

// cycle evaluates every worker once and restarts the unhealthy ones. Workers
// are handled independently: one worker's restart never skips another's
// evaluation.
func (s *Supervisor) cycle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.cycles.Inc()

	for _, name := range s.order {
		st := s.workers[name]

		verdict := s.evaluate(st, time.Now())
		s.metrics.observe(st)

		if verdict.Healthy {
			st.phase = PhaseRunning
			continue
		}

		st.phase = phaseFor(verdict.Reason)
		s.metrics.unhealthy.WithLabelValues(name, string(verdict.Reason)).Inc()
		s.restart(st, verdict.Reason)
	}
}

func phaseFor(r Reason) Phase {
	switch r {
	case ReasonStalled:
		return PhaseStalled
	case ReasonErrorSignal:
		return PhaseFailed
	case ReasonMissingLog:
		return PhaseMissing
	default:
		return PhaseRestarting
	}
}

// launchAll starts every worker at supervisor boot
func (s *Supervisor) launchAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.order {
		st := s.workers[name]
		if err := s.launch(st); err != nil {
			// Not fatal: the next cycle's health check sees the dead log sink
			// and runs the restart protocol again.
			s.logger.Error(fmt.Sprintf("failed to launch worker %s: %v", name, err),
				map[string]interface{}{"worker": name})
		}
	}
}

// stopAll gracefully stops every running worker so none is orphaned in a
// half-restarted state when the supervisor exits
func (s *Supervisor) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.order {
		st := s.workers[name]
		if err := s.stop(st); err != nil {
			s.logger.Error(fmt.Sprintf("failed to stop worker %s: %v", name, err),
				map[string]interface{}{"worker": name})
		}
	}
}

// Restart runs the restart protocol for one worker on demand. A worker with
// no live process goes straight to relaunch; a worker already mid-restart is
// left alone so two callers never race the stop protocol.
func (s *Supervisor) Restart(name string, reason Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.workers[name]
	if !ok {
		return ErrWorkerNotFound
	}
	if st.phase == PhaseRestarting {
		return nil
	}
	if reason == "" {
		reason = ReasonManual
	}
	s.restart(st, reason)
	return nil
}

// Status returns a snapshot of every worker in configuration order
func (s *Supervisor) Status() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]WorkerStatus, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, s.snapshot(s.workers[name]))
	}
	return result
}

// WorkerStatus returns a snapshot of a single worker
func (s *Supervisor) WorkerStatus(name string) (WorkerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.workers[name]
	if !ok {
		return WorkerStatus{}, ErrWorkerNotFound
	}
	return s.snapshot(st), nil
}

func (s *Supervisor) snapshot(st *workerState) WorkerStatus {
	var size int64
	if fi, err := os.Stat(st.spec.LogPath); err == nil {
		size = fi.Size()
	}
	return WorkerStatus{
		Name:         st.spec.Name,
		Phase:        st.phase,
		PID:          st.pid,
		Restarts:     st.restartCount,
		LogPath:      st.spec.LogPath,
		LogSize:      size,
		LastActivity: st.lastActivityTime,
	}
}
