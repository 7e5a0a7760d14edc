package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Submit detection jobs for pending documents",
	Long: `Discover documents awaiting annotation, batch them by scope and submit
asynchronous detection jobs for their next page windows.

A run with no pending documents succeeds without doing anything. If the
detection service rate-limits the run, it stops submitting and leaves the
remaining documents pending for the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.launcher().Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("discovered %d, submitted %d in %d jobs (%d skipped)\n",
			summary.Discovered, summary.Submitted, len(summary.Jobs), summary.Skipped)
		return nil
	},
}
