package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all annotation state and output",
	Long: `Delete every annotation state record and every written annotation.

Registered documents survive, so the corpus can be re-annotated from
scratch with a subsequent launch. This is the only way to clear terminal
(failed) documents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("reset deletes all annotation progress; re-run with --yes to confirm")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Reset(ctx); err != nil {
			return err
		}
		a.logger.Info("annotation state reset")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm the reset")
}
