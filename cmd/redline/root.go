package main

import (
	"github.com/spf13/cobra"

	"github.com/redline-docs/redline/version"
)

var (
	cfgFile string
	homeDir string
)

var rootCmd = &cobra.Command{
	Use:   "redline",
	Short: "Document annotation pipeline over an asynchronous detection service",
	Long: `Redline drives a corpus of PDF documents through an external detection
service that annotates page ranges against per-scope candidate sets.

The pipeline is two-phase and resumable:
  - launch    discovers pending documents, batches them by scope and
              submits asynchronous detection jobs
  - finalize  claims finished jobs, persists their annotations and
              advances each document's durable state

Every state change is a conditional versioned write, so any number of
workers can run both phases concurrently against the same database.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.redline/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "redline home directory (default: ~/.redline)",
	)

	rootCmd.AddCommand(
		initCmd,
		migrateCmd,
		ingestCmd,
		launchCmd,
		finalizeCmd,
		runCmd,
		statusCmd,
		resetCmd,
		versionCmd,
	)
}
