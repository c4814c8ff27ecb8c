package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/cbhlc-api/internal/service"
)

const drainTimeout = 30 * time.Second

func newSweepCmd() *cobra.Command {
	var opts service.SweepOptions
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Activate and close enrollment periods whose dates have been reached",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if opts.Notify {
				a.queue.Start(cmd.Context())
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
					defer cancel()
					if err := a.queue.Drain(ctx); err != nil {
						a.logger.Warn("notifications still pending at exit", zap.Error(err))
					}
					a.queue.Stop()
				}()
			}

			report, err := a.sweep.Run(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.DryRun {
				fmt.Fprintln(out, "dry run, no changes written")
			}
			if len(report.Transitions) == 0 {
				fmt.Fprintln(out, "no period transitions due")
			}
			for _, t := range report.Transitions {
				fmt.Fprintln(out, t.String())
			}
			for _, f := range report.Failures {
				a.logger.Warn("period transition failed", zap.String("period_id", f.PeriodID), zap.String("error", f.Error))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Notify, "notify", false, "notify administrators of transitions")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report transitions without applying them")
	return cmd
}
