// Package stats implements the stats command: aggregate counters over
// sources, jobs, and the failure ledger.
package stats

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/jobcrawl/cmd/common"
)

const failureWindow = 24 * time.Hour

// Command returns the stats command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ingestion statistics",
		Long: `Show aggregate counters: sources by lifecycle state, jobs by
quality grade, and failure-ledger entries from the last 24 hours.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
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

	byStatus, err := repos.Sources.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count sources: %w", err)
	}
	renderCounts("Sources", "Status", byStatus)

	jobStats, err := repos.Jobs.Stats(ctx)
	if err != nil {
		return fmt.Errorf("job stats: %w", err)
	}
	renderCounts("Jobs", "Grade", jobStats.ByGrade)
	fmt.Fprintf(os.Stdout, "Total: %d, needs review: %d, remote: %d\n",
		jobStats.Total, jobStats.NeedsReview, jobStats.Remote)

	since := time.Now().Add(-failureWindow)
	byOperation, err := repos.Failures.CountByOperation(ctx, since)
	if err != nil {
		return fmt.Errorf("count failures: %w", err)
	}
	renderCounts("Failures (24h)", "Operation", byOperation)

	return nil
}

// renderCounts prints one keyed counter map as a table, keys sorted so
// repeated invocations line up.
func renderCounts(title, keyHeader string, counts map[string]int) {
	fmt.Fprintln(os.Stdout, title)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{keyHeader, "Count"})

	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		t.AppendRow(table.Row{key, counts[key]})
	}
	if len(keys) == 0 {
		t.AppendRow(table.Row{"-", 0})
	}
	t.Render()
}
