package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/psantana5/scraperd/pkg/logging"
)

// Config defines retention policy and cleanup intervals for the restart-event
// history. RetentionDays <= 0 disables pruning; history is kept forever.
type Config struct {
	Enabled         bool
	RetentionDays   int
	CleanupInterval time.Duration
	VacuumInterval  time.Duration
}

// DefaultConfig returns sensible defaults for cleanup
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RetentionDays:   30,
		CleanupInterval: 24 * time.Hour,
		VacuumInterval:  7 * 24 * time.Hour,
	}
}

// Store is the slice of the event store cleanup needs
type Store interface {
	PruneBefore(cutoff time.Time) (int, error)
	Vacuum() error
}

// Manager prunes old restart events and vacuums the store on a schedule
type Manager struct {
	config Config
	store  Store
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

// Stats tracks cleanup operations
type Stats struct {
	LastCleanupTime    time.Time
	LastVacuumTime     time.Time
	TotalEventsPruned  int64
	TotalVacuumRuns    int64
}

// NewManager creates a new cleanup manager
func NewManager(config Config, st Store, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config: config,
		store:  st,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the automatic cleanup process
func (m *Manager) Start() {
	if !m.config.Enabled || m.config.RetentionDays <= 0 {
		m.logger.Info("event cleanup disabled")
		return
	}

	m.logger.Info("starting event cleanup",
		map[string]interface{}{"retention_days": m.config.RetentionDays, "interval": m.config.CleanupInterval.String()})

	m.wg.Add(2)
	go m.cleanupLoop()
	go m.vacuumLoop()
}

// Stop gracefully stops the cleanup manager
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.pruneOldEvents()
		}
	}
}

func (m *Manager) vacuumLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.VacuumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.vacuum()
		}
	}
}

// pruneOldEvents deletes restart events older than the retention period
func (m *Manager) pruneOldEvents() {
	// A non-positive retention would put the cutoff at or past now and wipe
	// the whole history.
	if m.config.RetentionDays <= 0 {
		return
	}

	cutoff := time.Now().Add(-time.Duration(m.config.RetentionDays) * 24 * time.Hour)

	pruned, err := m.store.PruneBefore(cutoff)
	if err != nil {
		m.logger.Error("event cleanup failed", map[string]interface{}{"error": err.Error()})
		return
	}

	m.mu.Lock()
	m.stats.LastCleanupTime = time.Now()
	m.stats.TotalEventsPruned += int64(pruned)
	m.mu.Unlock()

	if pruned > 0 {
		m.logger.Info("pruned old restart events", map[string]interface{}{"pruned": pruned})
	}
}

func (m *Manager) vacuum() {
	if err := m.store.Vacuum(); err != nil {
		m.logger.Error("vacuum failed", map[string]interface{}{"error": err.Error()})
		return
	}

	m.mu.Lock()
	m.stats.LastVacuumTime = time.Now()
	m.stats.TotalVacuumRuns++
	m.mu.Unlock()
}

// GetStats returns a copy of the cleanup statistics
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
