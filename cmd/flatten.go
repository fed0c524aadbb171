package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newFlattenCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "flatten [comments-object]",
		Short: "Convert comment collections into newline-delimited analytics rows",
		Long: `Writes bigquery/{channel}/{video}.ndjson for one comments object, or with
--all for every collection that has no analytics output yet.`,
		Example: `  livechat flatten comments/UCxxxxxxxx/dQw4w9WgXcQ.json
  livechat flatten --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass exactly one of a comments object or --all")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			f := appInstance.Flattener()
			if all {
				n, err := f.Backfill(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "converted %d collections\n", n)
				return nil
			}
			rows, err := f.HandleObject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows\n", rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "convert every collection without existing output")
	return cmd
}
