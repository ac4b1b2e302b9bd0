// Package httpd implements the admin API server command. It serves the
// management surface only; pair it with the scheduler command when runs
// should execute in the same deployment.
package httpd

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
)

const (
	signalChannelBufferSize = 1
	errorChannelBufferSize  = 1
	shutdownTimeout         = 30 * time.Second
)

// Command returns the httpd command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "httpd",
		Short: "Run the admin API server",
		Long: `Run the HTTP admin API without the scheduler loop.

Run-now requests are recorded in the database and picked up by whichever
scheduler process holds the tick loop; the cancel endpoint reports that
no scheduler is attached.`,
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

	// Phase 2: database and repositories
	db, err := common.OpenDatabase(deps)
	if err != nil {
		return err
	}
	defer db.Close()
	repos := common.NewRepositories(db)

	// Phase 3: metrics registry. The scheduler families stay flat in
	// this process, but serving them anyway keeps scrape configs
	// identical across httpd and scheduler deployments.
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Phase 4: pipeline capabilities. The runner itself is idle here;
	// the prober and the search sink come out of the same wiring.
	pl, err := common.BuildPipeline(deps, repos, m)
	if err != nil {
		return err
	}
	defer pl.Close()

	// Phase 5: HTTP server
	server := api.New(api.Params{
		Config:   &deps.Config.Server,
		Log:      deps.Logger,
		Sources:  repos.Sources,
		Jobs:     repos.Jobs,
		Index:    pl.Sink,
		Logs:     repos.Logs,
		Failures: repos.Failures,
		Prober:   common.BuildProber(deps, pl),
		DB:       db,
		Search:   pl.Sink,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	deps.Logger.Info("Starting admin API server", "addr", deps.Config.Server.GetAddress())
	errChan := make(chan error, errorChannelBufferSize)
	go func() {
		if serveErr := server.Start(); serveErr != nil {
			errChan <- serveErr
		}
	}()

	// Phase 6: run until interrupted
	return waitForShutdown(deps, server, errChan)
}

func waitForShutdown(deps *common.CommandDeps, server *api.Server, errChan chan error) error {
	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case serveErr := <-errChan:
		deps.Logger.Error("Server error", "error", serveErr.Error())
		return fmt.Errorf("server error: %w", serveErr)
	case sig := <-sigChan:
		deps.Logger.Info("Shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		deps.Logger.Error("Failed to stop server", "error", err.Error())
		return fmt.Errorf("failed to stop server: %w", err)
	}

	deps.Logger.Info("Server stopped")
	return nil
}
