package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"periscope/internal/journal"
)

func newJournalCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent session events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(stdout, "No session events recorded")
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, event := range events {
				name := event.PeerName
				if name == "" {
					name = "-"
				}
				rows = append(rows, []string{
					event.At.Local().Format(time.RFC3339),
					string(event.Kind),
					event.PeerID,
					name,
					event.Role,
					event.Detail,
				})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Time", "Event", "Peer", "Name", "Role", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show")
	return cmd
}
