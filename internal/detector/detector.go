// Package detector enqueues crawls for catalog videos that have no stored
// comment collection yet.
package detector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/archive"
	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/metrics"
	"github.com/JakeFAU/livechat-harvester/internal/queue"
)

// Archive is the slice of archive.Archive the detector reads.
type Archive interface {
	Paths() archive.Paths
	ReadCatalogObject(ctx context.Context, name string) ([]chat.Video, error)
	CommentedVideos(ctx context.Context, channelID string) (map[string]struct{}, error)
}

// Detector reacts to catalog object changes.
type Detector struct {
	archive   Archive
	publisher queue.Publisher
	logger    *zap.Logger
}

// New constructs a Detector.
func New(a Archive, publisher queue.Publisher, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{archive: a, publisher: publisher, logger: logger}
}

// HandleObject inspects the catalog stored at name and publishes a cursor-less
// request for every video without comments. It returns the number published.
// Names outside the catalog prefix and missing or empty catalogs are ignored.
func (d *Detector) HandleObject(ctx context.Context, name string) (int, error) {
	channelID, ok, err := d.archive.Paths().ParseCatalogObject(name)
	if !ok {
		d.logger.Info("object is not a catalog, ignoring", zap.String("object", name))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	logger := d.logger.With(zap.String("channel_id", channelID), zap.String("object", name))

	videos, err := d.archive.ReadCatalogObject(ctx, name)
	if errors.Is(err, chat.ErrNotFound) || (err == nil && len(videos) == 0) {
		logger.Info("catalog missing or empty")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}

	commented, err := d.archive.CommentedVideos(ctx, channelID)
	if err != nil {
		return 0, err
	}
	logger.Info("checking catalog",
		zap.Int("videos", len(videos)),
		zap.Int("already_crawled", len(commented)),
	)

	published := 0
	for _, video := range videos {
		if _, done := commented[video.VideoID]; done {
			continue
		}
		id, err := d.publisher.PublishCrawlRequest(ctx, chat.CrawlRequest{ChannelID: channelID, VideoID: video.VideoID})
		if err != nil {
			metrics.ObserveDetectorPublished(published)
			return published, fmt.Errorf("publish crawl request for %s: %w", video.VideoID, err)
		}
		published++
		logger.Debug("untouched video enqueued", zap.String("video_id", video.VideoID), zap.String("message_id", id))
	}
	metrics.ObserveDetectorPublished(published)
	logger.Info("untouched videos enqueued", zap.Int("published", published))
	return published, nil
}
