package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <catalog-object>",
		Short: "Publish crawl requests for catalog videos that have no comments yet",
		Example: `  livechat detect videos/UCxxxxxxxx.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			d, err := appInstance.Detector(cmd.Context())
			if err != nil {
				return err
			}
			n, err := d.HandleObject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d crawl requests\n", n)
			return nil
		},
	}
}
