package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var finalizeAll bool

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Claim a finished detection job and persist its annotations",
	Long: `Claim one outstanding detection job, poll it and, if finished, write its
annotations and advance every bound document's state.

Each invocation settles at most one job; --all keeps claiming until no
claimable job remains. Claim conflicts with other workers are normal and
quietly resolved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		f := a.finalizer()
		for {
			summary, err := f.Run(ctx)
			if err != nil {
				return err
			}
			if !summary.Claimed {
				fmt.Println("no claimable jobs")
				return nil
			}
			if summary.Pending {
				// The oldest job is still running; a later invocation will
				// pick it up. Looping here would just re-claim it.
				fmt.Printf("job %s still running\n", summary.JobID)
				return nil
			}
			fmt.Printf("job %s: %d annotated, %d resumed, %d retried, %d failed\n",
				summary.JobID, summary.Annotated, summary.Resumed, summary.Retried, summary.Failed)
			if !finalizeAll {
				return nil
			}
		}
	},
}

func init() {
	finalizeCmd.Flags().BoolVar(&finalizeAll, "all", false, "Keep finalizing until no claimable job remains")
}
