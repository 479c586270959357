package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/psantana5/scraperd/internal/api"
	"github.com/psantana5/scraperd/internal/cleanup"
	"github.com/psantana5/scraperd/internal/config"
	"github.com/psantana5/scraperd/internal/exporters/prometheus"
	"github.com/psantana5/scraperd/internal/store"
	"github.com/psantana5/scraperd/internal/supervisor"
	"github.com/psantana5/scraperd/pkg/logging"
	"github.com/psantana5/scraperd/pkg/retry"
	"github.com/psantana5/scraperd/pkg/shutdown"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the supervisor daemon",
	Long: `Launches every configured worker, then polls each worker's log sink on the
configured interval and restarts workers judged unhealthy. Runs until
SIGTERM or SIGINT.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	logger.Info("starting scraperd",
		map[string]interface{}{"workers": len(cfg.Workers), "poll_interval": cfg.PollInterval.String()})

	// Event store: SQLite when a path is configured, in-memory otherwise.
	// The open is retried; a previous instance may still hold the WAL lock
	// during a restart handover.
	var eventStore store.Store
	if cfg.DatabasePath != "" {
		err = retry.Do(context.Background(), retry.DefaultConfig(), func() error {
			var openErr error
			eventStore, openErr = store.NewSQLiteStore(cfg.DatabasePath)
			return openErr
		})
		if err != nil {
			return fmt.Errorf("failed to open event store: %w", err)
		}
	} else {
		eventStore = store.NewMemoryStore()
	}

	specs := make([]supervisor.WorkerSpec, 0, len(cfg.Workers))
	for _, w := range cfg.Workers {
		specs = append(specs, supervisor.WorkerSpec{
			Name:    w.Name,
			Command: w.Command,
			Args:    w.Args,
			Dir:     w.Dir,
			Env:     w.Env,
			LogPath: w.LogPath,
		})
	}

	registry := promclient.NewRegistry()

	sup, err := supervisor.New(specs, supervisor.Options{
		PollInterval: cfg.PollInterval,
		StopTimeout:  cfg.StopTimeout,
		Markers:      cfg.FailureMarkers,
		Logger:       logger.WithField("component", "supervisor"),
		Events:       eventStore,
		Registry:     registry,
	})
	if err != nil {
		return err
	}

	exporter := prometheus.NewExporter(registry)
	handler := api.NewHandler(sup, eventStore, exporter, logger.WithField("component", "api"))

	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCfg := cleanup.DefaultConfig()
	cleanupCfg.RetentionDays = cfg.EventRetentionDays
	cleaner := cleanup.NewManager(cleanupCfg, eventStore, logger.WithField("component", "cleanup"))
	cleaner.Start()

	supCtx, supCancel := context.WithCancel(context.Background())
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		if err := sup.Run(supCtx); err != nil {
			logger.Error(fmt.Sprintf("supervisor loop exited: %v", err))
		}
	}()

	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("API server failed: %v", err))
		}
	}()

	// LIFO: the API goes down first, then the fleet, then cleanup, the store
	// closes last.
	mgr := shutdown.New(shutdownBudget(len(specs), cfg.StopTimeout))
	mgr.Register(shutdown.CloseResource(eventStore, "event store"))
	mgr.Register(func(ctx context.Context) error {
		cleaner.Stop()
		return nil
	})
	mgr.Register(func(ctx context.Context) error {
		supCancel()
		select {
		case <-supDone:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for supervisor to stop: %w", ctx.Err())
		}
	})
	mgr.Register(shutdown.StopHTTPServer(srv, "api"))

	mgr.Wait()
	mgr.Shutdown()
	return nil
}

// shutdownBudget sizes the shutdown window for the worst case: every worker
// ignores SIGTERM and is waited out sequentially before being killed, plus
// slack for the HTTP server and the store.
func shutdownBudget(workers int, stopTimeout time.Duration) time.Duration {
	return time.Duration(workers)*stopTimeout + 30*time.Second
}
