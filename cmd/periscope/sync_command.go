package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"periscope/internal/client"
	"periscope/internal/clocksync"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var samples int
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Probe the daemon clock and report the estimated offset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withClient("sync", func(cl *client.Client) error {
				stdout := cmd.OutOrStdout()
				est := clocksync.NewEstimator(clocksync.Config{
					WindowSize:      cfg.Clock.WindowSize,
					SmoothingFactor: cfg.Clock.SmoothingFactor,
					SnapBound:       time.Duration(cfg.Clock.SnapBoundMS) * time.Millisecond,
				})

				accepted := 0
				for i := 0; i < samples; i++ {
					if err := clocksync.SyncOnce(cl.Channel(), est); err == nil {
						accepted++
					} else if !errors.Is(err, clocksync.ErrExcessiveVariance) {
						return err
					}
					time.Sleep(10 * time.Millisecond)
				}

				if err := printEstimate(stdout, est, samples, accepted); err != nil {
					return err
				}
				if !watch {
					return nil
				}

				// Keep sampling at the configured sync interval.
				interval := time.Duration(cfg.Clock.SyncIntervalS) * time.Second
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-cmd.Context().Done():
						return nil
					case <-ticker.C:
						if err := clocksync.SyncOnce(cl.Channel(), est); err != nil && !errors.Is(err, clocksync.ErrExcessiveVariance) {
							return err
						}
						offset, err := est.Offset()
						if err != nil {
							return err
						}
						fmt.Fprintf(stdout, "%s  offset %v  variance %v\n",
							time.Now().Format(time.TimeOnly), offset, est.Variance())
					}
				}
			})
		},
	}

	cmd.Flags().IntVarP(&samples, "samples", "n", 16, "Number of ping/pong samples to collect")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep sampling at the configured sync interval")
	return cmd
}

func printEstimate(stdout io.Writer, est *clocksync.Estimator, samples, accepted int) error {
	offset, err := est.Offset()
	if err != nil {
		return fmt.Errorf("estimate offset from %d samples: %w", samples, err)
	}
	fmt.Fprintf(stdout, "samples:  %d sent, %d accepted\n", samples, accepted)
	fmt.Fprintf(stdout, "offset:   %v\n", offset)
	fmt.Fprintf(stdout, "drift:    %.3f ppm\n", est.Drift()*1e6)
	fmt.Fprintf(stdout, "variance: %v\n", est.Variance())
	if snaps := est.Snaps(); snaps > 0 {
		fmt.Fprintf(stdout, "snaps:    %d\n", snaps)
	}
	return nil
}
