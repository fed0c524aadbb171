// Package catalog keeps each channel's list of completed live videos current.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/metrics"
)

// Lister discovers completed live videos. A zero after lists everything.
type Lister interface {
	ListCompleted(ctx context.Context, channelID string, after time.Time) ([]chat.Video, error)
}

// Archive is the slice of archive.Archive the syncer uses.
type Archive interface {
	LoadChannels(ctx context.Context) ([]chat.Channel, error)
	LoadCatalog(ctx context.Context, channelID string) ([]chat.Video, error)
	SaveCatalog(ctx context.Context, channelID string, videos []chat.Video) error
}

// Summary reports one sync pass.
type Summary struct {
	Channels int
	Added    int
}

// Syncer merges newly discovered videos into stored catalogs.
type Syncer struct {
	archive Archive
	lister  Lister
	logger  *zap.Logger
}

// New constructs a Syncer.
func New(a Archive, lister Lister, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{archive: a, lister: lister, logger: logger}
}

// SyncAll syncs every channel in the channel list. Errors, including quota
// exhaustion, stop the pass immediately.
func (s *Syncer) SyncAll(ctx context.Context) (Summary, error) {
	channels, err := s.archive.LoadChannels(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load channels: %w", err)
	}
	s.logger.Info("catalog sync started", zap.Int("channels", len(channels)))

	var sum Summary
	for _, ch := range channels {
		added, err := s.SyncChannel(ctx, ch)
		if err != nil {
			return sum, fmt.Errorf("sync %s: %w", ch.ChannelID, err)
		}
		sum.Channels++
		sum.Added += added
	}
	s.logger.Info("catalog sync finished", zap.Int("channels", sum.Channels), zap.Int("added", sum.Added))
	return sum, nil
}

// SyncChannel fetches videos newer than the latest cataloged one and rewrites
// the channel's catalog. It returns the number of videos not previously known.
func (s *Syncer) SyncChannel(ctx context.Context, ch chat.Channel) (int, error) {
	logger := s.logger.With(zap.String("channel_id", ch.ChannelID), zap.String("channel", ch.Name))

	existing, err := s.archive.LoadCatalog(ctx, ch.ChannelID)
	if err != nil && !errors.Is(err, chat.ErrNotFound) {
		return 0, fmt.Errorf("load catalog: %w", err)
	}

	after, err := nextPublishedAfter(existing)
	if err != nil {
		return 0, err
	}
	logger.Info("listing videos", zap.Int("known", len(existing)), zap.Time("after", after))

	incoming, err := s.lister.ListCompleted(ctx, ch.ChannelID, after)
	if err != nil {
		return 0, err
	}
	merged, added := MergeVideos(existing, incoming)
	if err := s.archive.SaveCatalog(ctx, ch.ChannelID, merged); err != nil {
		return 0, err
	}
	metrics.ObserveCatalogVideosAdded(added)
	logger.Info("catalog updated",
		zap.Int("fetched", len(incoming)),
		zap.Int("added", added),
		zap.Int("total", len(merged)),
	)
	return added, nil
}

// MergeVideos combines catalogs keyed by video id with later records winning,
// ordered by publish time. added counts ids absent from existing.
func MergeVideos(existing, incoming []chat.Video) (merged []chat.Video, added int) {
	index := make(map[string]int, len(existing)+len(incoming))
	merged = make([]chat.Video, 0, len(existing)+len(incoming))
	for i, batch := range [][]chat.Video{existing, incoming} {
		for _, v := range batch {
			if pos, ok := index[v.VideoID]; ok {
				merged[pos] = v
				continue
			}
			index[v.VideoID] = len(merged)
			merged = append(merged, v)
			if i == 1 {
				added++
			}
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].PublishedAt < merged[j].PublishedAt })
	return merged, added
}

// nextPublishedAfter is one second past the newest cataloged video, or zero.
func nextPublishedAfter(videos []chat.Video) (time.Time, error) {
	var latest time.Time
	for _, v := range videos {
		t, err := v.PublishedTime()
		if err != nil {
			return time.Time{}, fmt.Errorf("video %s: %w", v.VideoID, err)
		}
		if t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return latest, nil
	}
	return latest.Add(time.Second), nil
}
