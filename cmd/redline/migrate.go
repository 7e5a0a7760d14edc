package main

import (
	"github.com/spf13/cobra"

	"github.com/redline-docs/redline/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := store.Migrate(ctx, a.store.DB); err != nil {
			return err
		}
		a.logger.Info("migrations applied")
		return nil
	},
}
