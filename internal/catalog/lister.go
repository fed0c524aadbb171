package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
)

const (
	searchPageSize = 50
	kindVideo      = "youtube#video"
	reasonQuota    = "quotaExceeded"
)

// YouTubeLister lists completed live broadcasts through the YouTube Data API.
type YouTubeLister struct {
	svc *youtube.Service
}

var _ Lister = (*YouTubeLister)(nil)

// NewYouTubeLister builds a lister authenticated with an API key. Extra options
// are appended, so tests can redirect the endpoint.
func NewYouTubeLister(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTubeLister, error) {
	if apiKey == "" {
		return nil, chat.ConfigError("youtube.api_key", "is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &YouTubeLister{svc: svc}, nil
}

// ListCompleted pages through search results for channelID published after
// after (all when zero) and resolves each video's duration.
func (l *YouTubeLister) ListCompleted(ctx context.Context, channelID string, after time.Time) ([]chat.Video, error) {
	var videos []chat.Video
	pageToken := ""
	for {
		call := l.svc.Search.List([]string{"id", "snippet"}).
			ChannelId(channelID).
			EventType("completed").
			Type("video").
			MaxResults(searchPageSize).
			Context(ctx)
		if !after.IsZero() {
			call = call.PublishedAfter(after.UTC().Format(time.RFC3339))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, classify(fmt.Errorf("search videos of %s: %w", channelID, err))
		}

		page := make([]chat.Video, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item.Id == nil || item.Id.Kind != kindVideo || item.Snippet == nil {
				continue
			}
			page = append(page, chat.Video{
				VideoID:     item.Id.VideoId,
				ChannelID:   item.Snippet.ChannelId,
				Title:       item.Snippet.Title,
				PublishedAt: item.Snippet.PublishedAt,
			})
		}
		if err := l.fillDurations(ctx, page); err != nil {
			return nil, err
		}
		videos = append(videos, page...)

		if resp.NextPageToken == "" {
			return videos, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (l *YouTubeLister) fillDurations(ctx context.Context, videos []chat.Video) error {
	if len(videos) == 0 {
		return nil
	}
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.VideoID
	}
	resp, err := l.svc.Videos.List([]string{"contentDetails"}).Id(ids...).Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("video details: %w", err))
	}
	durations := make(map[string]string, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails != nil {
			durations[item.Id] = item.ContentDetails.Duration
		}
	}
	for i := range videos {
		d, ok := durations[videos[i].VideoID]
		if !ok {
			return fmt.Errorf("%w: details for video %s", chat.ErrNotFound, videos[i].VideoID)
		}
		videos[i].Duration = d
	}
	return nil
}

// classify marks quota exhaustion so callers can stop and back off.
func classify(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 403 {
		return err
	}
	for _, item := range apiErr.Errors {
		if item.Reason == reasonQuota {
			return &chat.QuotaError{Err: err}
		}
	}
	return err
}
