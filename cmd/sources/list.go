package sources

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/jobcrawl/cmd/common"
	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// newListCommand creates the list command.
func newListCommand() *cobra.Command {
	var (
		status string
		stype  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		Long:  `List sources with their type, lifecycle state, and schedule.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			list, total, err := repos.Sources.List(cmd.Context(), database.SourceFilters{
				Status: status,
				Type:   stype,
				Limit:  limit,
			})
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}

			if len(list) == 0 {
				fmt.Fprintln(os.Stdout, "No sources configured")
				return nil
			}

			renderSourceTable(list)
			if total > len(list) {
				fmt.Fprintf(os.Stdout, "Showing %d of %d sources\n", len(list), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (active, paused, deleted)")
	cmd.Flags().StringVar(&stype, "type", "", "Filter by source type (html, rss, api)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum sources to show (0 means repository default)")

	return cmd
}

func renderSourceTable(list []*domain.Source) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Name", "Type", "Status", "Every", "Last Status", "Next Run", "Failures"})
	for _, src := range list {
		t.AppendRow(table.Row{
			src.Name,
			src.SourceType,
			src.Status,
			fmt.Sprintf("%dd", src.CrawlFrequencyDays),
			orDash(src.LastCrawlStatus),
			timeOrDash(src.NextRunAt),
			src.ConsecutiveFailures,
		})
	}
	t.Render()
}
