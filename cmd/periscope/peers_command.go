package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"periscope/internal/client"
)

func newPeersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List connected peer sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient("peers", func(cl *client.Client) error {
				peers, err := cl.Peers()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderPeerTable(peers))
				return nil
			})
		},
	}
}
