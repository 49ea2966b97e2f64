package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"periscope/internal/shm"
)

func newFrameCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var interval time.Duration
	var dump bool

	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Read the latest published frame from the shared-memory segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reader, err := shm.Open(cfg.Segment.Name)
			if err != nil {
				if errors.Is(err, shm.ErrSegmentNotFound) {
					return fmt.Errorf("segment %q not found; is the daemon running?", cfg.Segment.Name)
				}
				return err
			}
			defer reader.Close()
			reader.SetMaxRetries(cfg.Segment.ReadRetries)

			stdout := cmd.OutOrStdout()
			printer := message.NewPrinter(language.English)

			var lastGeneration uint64
			for {
				frame, err := reader.ReadLatest()
				switch {
				case errors.Is(err, shm.ErrStaleFrame):
					if !follow {
						fmt.Fprintln(stdout, "No consistent frame available")
						return nil
					}
				case err != nil:
					return err
				case frame.Generation != lastGeneration:
					lastGeneration = frame.Generation
					printer.Fprintf(stdout, "generation %d  %d bytes  written %s  dropped %d\n",
						frame.Generation,
						len(frame.Payload),
						frame.Timestamp.Format(time.RFC3339Nano),
						reader.Dropped())
					if dump {
						fmt.Fprintln(stdout, hex.Dump(frame.Payload))
					}
				}
				if !follow {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Poll for new frames until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 50*time.Millisecond, "Poll interval with --follow")
	cmd.Flags().BoolVar(&dump, "dump", false, "Hex-dump frame payloads")
	return cmd
}
