package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the launch/finalize loop",
	Long: `Alternate launch and finalize passes until interrupted.

Each cycle submits jobs for pending documents, then settles every
claimable finished job. Pass failures are logged and the loop continues;
the durable state machine makes any pass safely repeatable.

Examples:
  redline run            # Loop until Ctrl+C
  redline run --once     # One launch pass and one finalize sweep`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		launcher := a.launcher()
		finalizer := a.finalizer()

		// cycle reports whether the detection service rate-limited the pass,
		// so the loop can back off longer than the normal interval.
		cycle := func() bool {
			passCtx, cancel := withTimeout(ctx)
			defer cancel()

			rateLimited := false
			launchSummary, err := launcher.Run(passCtx)
			if err != nil {
				a.logger.Error("launch pass failed", "error", err)
			} else {
				rateLimited = launchSummary.RateLimited
			}
			for {
				summary, err := finalizer.Run(passCtx)
				if err != nil {
					a.logger.Error("finalize pass failed", "error", err)
					return rateLimited
				}
				if !summary.Claimed || summary.Pending {
					return rateLimited
				}
			}
		}

		rateLimited := cycle()
		if runOnce {
			return nil
		}

		for {
			pause := a.cfg.Run.Interval()
			if rateLimited {
				pause = a.cfg.Run.RateLimitBackoff()
				a.logger.Info("rate limited, backing off", "pause", pause)
			}
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				if errors.Is(ctx.Err(), context.Canceled) {
					a.logger.Info("shutting down")
					return nil
				}
				return ctx.Err()
			case <-timer.C:
				rateLimited = cycle()
			}
		}
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single cycle and exit")
}
