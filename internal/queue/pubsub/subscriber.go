// Package pubsub delivers crawl requests from a Google Cloud Pub/Sub subscription.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/queue"
)

// Config tunes flow control for a subscriber.
type Config struct {
	// MaxOutstanding bounds concurrent handler invocations. Zero keeps the client default.
	MaxOutstanding int
}

// Subscriber adapts a Pub/Sub subscription to queue.Subscriber.
type Subscriber struct {
	sub    *pubsub.Subscription
	logger *zap.Logger
}

var _ queue.Subscriber = (*Subscriber)(nil)

// New configures sub and wraps it.
func New(sub *pubsub.Subscription, cfg Config, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sub != nil && cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	}
	return &Subscriber{sub: sub, logger: logger}
}

// Receive blocks until ctx is done. Messages that cannot be decoded are acked
// and dropped since redelivery cannot fix them.
func (s *Subscriber) Receive(ctx context.Context, handle queue.Handler) error {
	if s.sub == nil {
		return chat.ConfigError("queue.subscription", "is not configured")
	}
	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		ctx = otel.GetTextMapPropagator().Extract(ctx, queue.AttributeCarrier(msg.Attributes))
		logger := s.logger.With(zap.String("message_id", msg.ID))

		req, err := queue.Decode(msg.Data, msg.Attributes)
		if err != nil {
			logger.Error("Dropping undecodable message", zap.Error(err))
			msg.Ack()
			return
		}
		err = handle(ctx, req)
		if queue.ShouldAck(err) {
			msg.Ack()
			return
		}
		logger.Warn("Handler failed, message will be redelivered",
			zap.String("video_id", req.VideoID),
			zap.Error(err),
		)
		msg.Nack()
	})
	if err != nil {
		return fmt.Errorf("%w: receive from %s: %w", chat.ErrTransport, s.sub.ID(), err)
	}
	return nil
}
