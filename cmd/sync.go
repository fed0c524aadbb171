package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh every channel's catalog of completed live streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			syncer, err := appInstance.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := syncer.SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d channels, added %d videos\n", summary.Channels, summary.Added)
			return nil
		},
	}
}
