package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	queuememory "github.com/JakeFAU/livechat-harvester/internal/queue/memory"
)

func newCrawlCmd() *cobra.Command {
	var (
		req    chat.CrawlRequest
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one video's chat replay",
		Long: `Runs one crawl invocation for a video, starting from the stored cursor in
--continuation or from the beginning of the replay. When the crawl budget runs
out a resume request is published to the configured queue.

With the memory queue, --follow keeps handling resume requests in process until
the replay is exhausted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			w, err := appInstance.Worker(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger().With(zap.String("video_id", req.VideoID))

			if !follow {
				if err := w.Handle(cmd.Context(), req); err != nil {
					return err
				}
				warnPendingResumes(logger, appInstance.MemoryQueue())
				return nil
			}
			q := appInstance.MemoryQueue()
			if q == nil {
				return errors.New("--follow requires queue.provider=memory")
			}
			if _, err := q.PublishCrawlRequest(cmd.Context(), req); err != nil {
				return fmt.Errorf("enqueue crawl request: %w", err)
			}
			if err := q.Drain(cmd.Context(), w.Handle); err != nil {
				return err
			}
			logger.Info("Replay drained")
			return nil
		},
	}
	cmd.Flags().StringVar(&req.ChannelID, "channel", "", "channel id owning the video")
	cmd.Flags().StringVar(&req.VideoID, "video", "", "video id to crawl")
	cmd.Flags().StringVar(&req.Continuation, "continuation", "", "resume cursor from a previous invocation")
	cmd.Flags().BoolVar(&follow, "follow", false, "handle resume requests in process (memory queue only)")
	return cmd
}

// warnPendingResumes logs resume requests left in the memory queue, which are
// lost when the process exits. It returns how many were reported.
func warnPendingResumes(logger *zap.Logger, q *queuememory.Queue) int {
	if q == nil {
		return 0
	}
	pending := q.Pending()
	for _, r := range pending {
		logger.Warn("Resume request not handled; rerun with --continuation or --follow",
			zap.String("channel_id", r.ChannelID),
			zap.String("video_id", r.VideoID),
			zap.String("continuation", r.Continuation),
		)
	}
	return len(pending)
}
