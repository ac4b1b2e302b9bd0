package sources

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/jobcrawl/cmd/common"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	internalsources "github.com/jonesrussell/jobcrawl/internal/sources"
)

const sampleURLWidth = 60

// newTestCommand creates the test command.
func newTestCommand() *cobra.Command {
	var simulate bool

	cmd := &cobra.Command{
		Use:   "test [source]",
		Short: "Probe a source against its live site",
		Long: `Fetch the source's configured URL and report reachability, size,
and conditional-fetch validators. Nothing is stored.

With --simulate, the page is also run through the extraction cascade
and the first few jobs it would produce are printed.`,
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

			pl, err := common.BuildPipeline(deps, repos, nil)
			if err != nil {
				return err
			}
			defer pl.Close()

			src, err := common.ResolveSource(cmd.Context(), repos.Sources, args[0])
			if err != nil {
				return err
			}

			prober := common.BuildProber(deps, pl)
			report := prober.Probe(cmd.Context(), src)
			renderProbeReport(src, report)

			if !simulate {
				if !report.OK {
					return fmt.Errorf("probe failed for source %q", src.Name)
				}
				return nil
			}

			sim := prober.SimulateExtract(cmd.Context(), src)
			renderSimulation(sim)
			if !sim.OK {
				return fmt.Errorf("simulation failed for source %q", src.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&simulate, "simulate", false, "Also run extraction and show a sample of the jobs")

	return cmd
}

func renderProbeReport(src *domain.Source, report *internalsources.ProbeReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Source", "OK", "Status", "Host", "Size", "ETag", "Last-Modified"})
	t.AppendRow(table.Row{
		src.Name,
		report.OK,
		report.Status,
		report.Host,
		report.Size,
		orDash(report.ETag),
		orDash(report.LastModified),
	})
	t.Render()

	if len(report.MissingSecrets) > 0 {
		fmt.Fprintf(os.Stdout, "Missing secrets: %s\n", strings.Join(report.MissingSecrets, ", "))
	}
	if report.Error != "" {
		fmt.Fprintf(os.Stdout, "Error: %s\n", report.Error)
	}
}

func renderSimulation(sim *internalsources.SimulationReport) {
	if sim.Error != "" {
		if sim.ErrorCategory != "" {
			fmt.Fprintf(os.Stdout, "Simulation error (%s): %s\n", sim.ErrorCategory, sim.Error)
		} else {
			fmt.Fprintf(os.Stdout, "Simulation error: %s\n", sim.Error)
		}
		return
	}

	fmt.Fprintf(os.Stdout, "Extracted %d jobs\n", sim.Count)
	if len(sim.Sample) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Title", "Org", "Location", "Apply URL"})
	for _, job := range sim.Sample {
		t.AppendRow(table.Row{
			job.Title,
			orDash(job.OrgName),
			orDash(job.LocationRaw),
			truncate(job.ApplyURL, sampleURLWidth),
		})
	}
	t.Render()
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}
