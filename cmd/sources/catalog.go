package sources

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/jobcrawl/cmd/common"
	internalsources "github.com/jonesrussell/jobcrawl/internal/sources"
)

// newImportCommand creates the import command.
func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import a YAML source catalog",
		Long: `Import sources from a YAML catalog file. Entries are matched by
name: unknown names create sources, known names update them in place.
The whole file is validated before the first write.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			catalog := internalsources.NewCatalog(repos.Sources, deps.Logger)
			stats, err := catalog.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("import catalog: %w", err)
			}

			fmt.Fprintf(os.Stdout, "Imported %d sources: %d created, %d updated\n",
				stats.Created+stats.Updated, stats.Created, stats.Updated)
			return nil
		},
	}
}

// newExportCommand creates the export command.
func newExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the source catalog as YAML",
		Long: `Export the current source catalog as YAML, in the same shape the
import command reads. Soft-deleted sources are excluded.`,
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

			var w io.Writer = os.Stdout
			if output != "" {
				f, createErr := os.Create(output)
				if createErr != nil {
					return fmt.Errorf("create output file: %w", createErr)
				}
				defer f.Close()
				w = f
			}

			catalog := internalsources.NewCatalog(repos.Sources, deps.Logger)
			count, err := catalog.Export(cmd.Context(), w)
			if err != nil {
				return fmt.Errorf("export catalog: %w", err)
			}

			if output != "" {
				fmt.Fprintf(os.Stdout, "Exported %d sources to %s\n", count, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the catalog to a file instead of stdout")

	return cmd
}
