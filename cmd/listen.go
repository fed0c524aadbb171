package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Pull crawl requests from the queue and process them",
		Long: `Receives crawl requests from the configured Pub/Sub subscription (or the
in-memory queue) until interrupted. Requests for missing or unavailable videos
are acknowledged; other failures are negatively acknowledged for redelivery.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			d, err := appInstance.Dispatcher(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.Logger().Info("listener started",
				zap.String("queue", appInstance.Config().Queue.Provider),
				zap.String("subscription", appInstance.Config().PubSub.Subscription),
			)
			if err := d.Run(cmd.Context()); err != nil {
				return err
			}
			appInstance.Logger().Info("listener stopped")
			return nil
		},
	}
}
