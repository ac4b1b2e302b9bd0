// Package cmd implements the command-line interface for jobcrawl. It
// provides the root command and subcommands for running the ingestion
// daemon, the admin API, one-shot crawls, and source management.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/jobcrawl/cmd/common"
	"github.com/jonesrussell/jobcrawl/cmd/crawl"
	"github.com/jonesrussell/jobcrawl/cmd/httpd"
	cmdscheduler "github.com/jonesrussell/jobcrawl/cmd/scheduler"
	cmdsources "github.com/jonesrussell/jobcrawl/cmd/sources"
	"github.com/jonesrussell/jobcrawl/cmd/stats"
)

// version is stamped by the build; the default marks a source build.
var version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug enables debug logging for all commands.
	debug bool

	rootCmd = &cobra.Command{
		Use:   "jobcrawl",
		Short: "A job-listing ingestion pipeline",
		Long: `jobcrawl fetches job listings from configured sources (HTML pages,
RSS/Atom feeds, JSON APIs), extracts and normalizes the postings, scores
their quality, and stores them in PostgreSQL with an Elasticsearch
search index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml, ./config/config.yaml, or ~/.jobcrawl/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Flag values land in common before any subcommand builds its deps.
	cobra.OnInitialize(func() {
		common.SetFlags(cfgFile, debug)
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jobcrawl version %s\n", version)
		},
	})

	rootCmd.AddCommand(httpd.Command())
	rootCmd.AddCommand(cmdscheduler.Command())
	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(cmdsources.Command())
	rootCmd.AddCommand(stats.Command())
}
