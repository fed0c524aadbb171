// Package pubsub implements a Google Cloud Pub/Sub publisher for crawl requests.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/queue"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

var _ queue.Publisher = (*Publisher)(nil)

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// PublishCrawlRequest encodes req, injects the trace context, and waits for the
// server-assigned message id.
func (p *Publisher) PublishCrawlRequest(ctx context.Context, req chat.CrawlRequest) (string, error) {
	if p.topic == nil {
		return "", chat.ConfigError("queue.topic", "is not configured")
	}
	data, attrs, err := queue.Encode(req)
	if err != nil {
		return "", err
	}
	otel.GetTextMapPropagator().Inject(ctx, queue.AttributeCarrier(attrs))

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: publish to %s: %w", chat.ErrTransport, p.topic.ID(), err)
	}
	return id, nil
}

// Stop flushes pending messages and releases the topic's resources.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
