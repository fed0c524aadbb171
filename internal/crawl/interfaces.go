package crawl

import (
	"context"
	"time"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
)

// CommentStore persists a video's comment collection. Load returns an empty
// slice when nothing has been stored yet.
type CommentStore interface {
	LoadComments(ctx context.Context, channelID, videoID string) ([]chat.Message, error)
	SaveComments(ctx context.Context, channelID, videoID string, messages []chat.Message) error
}

// ResumptionPublisher re-enqueues a crawl request.
type ResumptionPublisher interface {
	PublishCrawlRequest(ctx context.Context, req chat.CrawlRequest) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
