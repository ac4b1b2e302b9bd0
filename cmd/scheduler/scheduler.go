// Package scheduler implements the ingestion daemon command: the tick
// loop and worker pool, the maintenance crons, and the admin API with
// the run controller attached.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/jobcrawl/cmd/common"
	"github.com/jonesrussell/jobcrawl/internal/api"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
	"github.com/jonesrussell/jobcrawl/internal/scheduler"
)

const (
	signalChannelBufferSize = 1
	errorChannelBufferSize  = 1
	shutdownTimeout         = 30 * time.Second
)

// Command returns the scheduler command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the ingestion daemon",
		Long: `Run the full ingestion daemon: due sources are leased and
crawled on a fixed tick, expired leases are reaped every minute, raw
pages past retention are retired nightly, and the admin API is served
with cancel support attached.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run()
		},
	}
}

func run() error {
	// Phase 1: dependencies
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	cfg := deps.Config
	log := deps.Logger

	// Phase 2: database and repositories
	db, err := common.OpenDatabase(deps)
	if err != nil {
		return err
	}
	defer db.Close()
	repos := common.NewRepositories(db)

	// Phase 3: metrics
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Phase 4: pipeline
	pl, err := common.BuildPipeline(deps, repos, m)
	if err != nil {
		return err
	}
	defer pl.Close()

	// Phase 5: scheduler and maintenance crons
	var budget scheduler.BudgetResetter
	if pl.AI != nil {
		budget = pl.AI
	}
	sched := scheduler.New(scheduler.Params{
		Sources:  repos.Sources,
		Runner:   pl.Runner,
		AI:       budget,
		Metrics:  m,
		Config:   &cfg.Scheduler,
		Log:      log,
		AIBudget: cfg.AI.TickBudget,
	})
	maintenance := scheduler.NewMaintenance(repos.Sources, repos.RawPages, pl.Store, cfg.RawStore.RetentionDays, log)

	sched.Start()
	if maintErr := maintenance.Start(); maintErr != nil {
		sched.Stop()
		return fmt.Errorf("start maintenance crons: %w", maintErr)
	}

	// Phase 6: admin API with the run controller attached
	server := api.New(api.Params{
		Config:   &cfg.Server,
		Log:      log,
		Sources:  repos.Sources,
		Jobs:     repos.Jobs,
		Index:    pl.Sink,
		Logs:     repos.Logs,
		Failures: repos.Failures,
		Prober:   common.BuildProber(deps, pl),
		Runs:     sched,
		DB:       db,
		Search:   pl.Sink,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	log.Info("Starting ingestion daemon",
		"addr", cfg.Server.GetAddress(),
		"tick", cfg.Scheduler.TickInterval.String(),
		"workers", cfg.Scheduler.GlobalConcurrency)
	errChan := make(chan error, errorChannelBufferSize)
	go func() {
		if serveErr := server.Start(); serveErr != nil {
			errChan <- serveErr
		}
	}()

	// Phase 7: run until interrupted
	return waitForShutdown(deps, server, sched, maintenance, errChan)
}

// waitForShutdown blocks until a signal or server error, then tears
// down in dependency order: no new runs, no cron firings, no new HTTP
// requests, then the deferred sink flush and browser teardown.
func waitForShutdown(
	deps *common.CommandDeps,
	server *api.Server,
	sched *scheduler.Scheduler,
	maintenance *scheduler.Maintenance,
	errChan chan error,
) error {
	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case serveErr := <-errChan:
		deps.Logger.Error("Server error", "error", serveErr.Error())
		sched.Stop()
		maintenance.Stop()
		return fmt.Errorf("server error: %w", serveErr)
	case sig := <-sigChan:
		deps.Logger.Info("Shutdown signal received", "signal", sig.String())
	}

	sched.Stop()
	maintenance.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		deps.Logger.Error("Failed to stop server", "error", err.Error())
		return fmt.Errorf("failed to stop server: %w", err)
	}

	deps.Logger.Info("Ingestion daemon stopped")
	return nil
}
