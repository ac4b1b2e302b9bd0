// Package sources implements the source catalog commands: list the
// configured sources, import and export the YAML catalog, and probe a
// source without writing anything.
package sources

import (
	"time"

	"github.com/spf13/cobra"
)

const displayTimeFormat = "2006-01-02 15:04"

// Command returns the sources command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage ingestion sources",
		Long: `Manage the source catalog: list configured sources, import or
export the YAML catalog, and test a source against its live site.`,
	}

	cmd.AddCommand(
		newListCommand(),
		newImportCommand(),
		newExportCommand(),
		newTestCommand(),
	)

	return cmd
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(displayTimeFormat)
}
