// Package commands implements the searchbench CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	manifestPath string
	verbose      bool
	jsonOutput   bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "searchbench",
		Short: "searchbench - search engine benchmark environment provisioner",
		Long: `searchbench provisions isolated, reproducible benchmark environments for
full-text search engines inside LXD system containers.

Given a declarative manifest it ensures a shared resource profile exists,
boots one container per selected engine, and provisions each engine
(Meilisearch, OpenSearch with Dashboards, Solr, Elasticsearch) unless its
service is already active. Re-running against a provisioned environment is
a no-op apart from the activity checks.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "searchbench.cue", "environment manifest (.cue, .yaml or .yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newUpCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newStatusCommand())

	return rootCmd
}
