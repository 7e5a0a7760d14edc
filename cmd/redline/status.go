package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redline-docs/redline/internal/annotation"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show annotation progress by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.store.CountByStatus(ctx)
		if err != nil {
			return err
		}

		order := []annotation.Status{
			annotation.StatusNew,
			annotation.StatusProcessing,
			annotation.StatusRetry,
			annotation.StatusAnnotated,
			annotation.StatusFailed,
		}
		total := 0
		for _, st := range order {
			fmt.Printf("%-12s %d\n", st, counts[st])
			total += counts[st]
		}
		fmt.Printf("%-12s %d\n", "total", total)
		return nil
	},
}
