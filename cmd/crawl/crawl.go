// Package crawl implements the one-shot crawl command: run one source
// through the full pipeline immediately and print the run report.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/jobcrawl/cmd/common"
	"github.com/jonesrussell/jobcrawl/internal/ai"
	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// Command returns the crawl command for use in the root command.
func Command() *cobra.Command {
	var noAIBudget bool

	cmd := &cobra.Command{
		Use:   "crawl [source]",
		Short: "Crawl one source immediately",
		Long: `Run one source through the full pipeline and print the run report.
Specify the source by name or by id.

The run bypasses the scheduler: no lease is taken and the next-run
schedule is left untouched, so a manual crawl never shifts the cadence
the scheduler maintains.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], noAIBudget)
		},
	}
	cmd.Flags().BoolVar(&noAIBudget, "no-ai-budget", false,
		"let the AI fallback run past the per-tick call ceiling")
	return cmd
}

func run(ctx context.Context, sourceRef string, noAIBudget bool) error {
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	db, err := common.OpenDatabase(deps)
	if err != nil {
		return err
	}
	defer db.Close()
	repos := common.NewRepositories(db)

	pl, err := common.BuildPipeline(deps, repos, nil)
	if err != nil {
		return err
	}
	defer pl.Close()

	src, err := common.ResolveSource(ctx, repos.Sources, sourceRef)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithTimeout(runCtx, deps.Config.Scheduler.RunTimeout)
	defer cancel()
	if noAIBudget {
		runCtx = ai.WithoutBudget(runCtx)
	}

	deps.Logger.Info("Crawling source", "source_id", src.ID, "name", src.Name, "url", src.CareersURL)
	res, runErr := pl.Runner.Run(runCtx, src)
	if res != nil && res.Report != nil {
		renderReport(src, res.Report)
	}
	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	if res.Report.Status == domain.RunStatusDBFail {
		return errors.New("run finished with status DB_FAIL")
	}
	return nil
}

func renderReport(src *domain.Source, rep *domain.RunReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Source", "Status", "Found", "Inserted", "Updated", "Skipped", "Failed", "Duration"})
	t.AppendRow(table.Row{
		src.Name,
		rep.Status,
		rep.Found,
		rep.Inserted,
		rep.Updated,
		rep.Skipped,
		rep.Failed,
		fmt.Sprintf("%dms", rep.DurationMs),
	})
	t.Render()

	if rep.Message != "" {
		fmt.Fprintln(os.Stdout, rep.Message)
	}
}
