// Package cmd defines the livechat command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/app"
	"github.com/JakeFAU/livechat-harvester/internal/config"
	"github.com/JakeFAU/livechat-harvester/internal/logging"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

type appKeyType string

const appKey appKeyType = "app"

const shutdownTimeout = 10 * time.Second

// newApp is the application factory. Tests replace it to inject client options.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Options{Version: Version})
}

// newRootCmd builds the command tree. The returned cleanup closes the App
// built by the pre-run hook, whether or not the subcommand succeeded.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile     string
		appInstance *app.App
		logger      *zap.Logger
	)

	cmd := &cobra.Command{
		Use:   "livechat",
		Short: "Incrementally harvests live chat replays into an object store.",
		Long: `livechat crawls the chat replay of completed live streams page by page,
merges new messages into a per-video comment collection and re-enqueues itself
when a crawl runs out of time. It also keeps channel catalogs in sync, detects
videos that were never crawled and flattens collections for analytics.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				Service:     cfg.Telemetry.ServiceName,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err = newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	cmd.AddCommand(
		newCrawlCmd(),
		newListenCmd(),
		newServeCmd(),
		newDetectCmd(),
		newFlattenCmd(),
		newSyncCmd(),
	)

	cleanup := func() {
		if appInstance != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			appInstance.Close(ctx)
		}
		if logger != nil {
			_ = logger.Sync()
		}
	}
	return cmd, cleanup
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "livechat: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	root, cleanup := newRootCmd()
	defer cleanup()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
