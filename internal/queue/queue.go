// Package queue defines how crawl requests travel between producers and workers,
// and the wire format they share. A request is a JSON body mirrored into message
// attributes so that consumers can decode messages from older producers that only
// set attributes.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
)

// Attribute keys mirrored from the JSON body.
const (
	AttrChannelID    = "channel_id"
	AttrVideoID      = "video_id"
	AttrContinuation = "continuation"
)

// Publisher enqueues crawl requests and returns the broker message id.
type Publisher interface {
	PublishCrawlRequest(ctx context.Context, req chat.CrawlRequest) (string, error)
}

// Handler processes one decoded request.
type Handler func(ctx context.Context, req chat.CrawlRequest) error

// Subscriber delivers requests to a handler until ctx is done.
type Subscriber interface {
	Receive(ctx context.Context, handle Handler) error
}

// Encode renders req as a JSON body plus mirrored attributes.
func Encode(req chat.CrawlRequest) ([]byte, map[string]string, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal crawl request: %w", err)
	}
	attrs := map[string]string{
		AttrChannelID: req.ChannelID,
		AttrVideoID:   req.VideoID,
	}
	if req.Continuation != "" {
		attrs[AttrContinuation] = req.Continuation
	}
	return data, attrs, nil
}

// Decode reads a request from a message body, filling fields the body lacks from
// attributes. A body that is not a JSON object is ignored in favor of attributes.
func Decode(data []byte, attrs map[string]string) (chat.CrawlRequest, error) {
	var req chat.CrawlRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			req = chat.CrawlRequest{}
		}
	}
	if req.ChannelID == "" {
		req.ChannelID = attrs[AttrChannelID]
	}
	if req.VideoID == "" {
		req.VideoID = attrs[AttrVideoID]
	}
	if req.Continuation == "" {
		req.Continuation = attrs[AttrContinuation]
	}
	if err := req.Validate(); err != nil {
		return chat.CrawlRequest{}, fmt.Errorf("decode crawl request: %w", err)
	}
	return req, nil
}

// ShouldAck reports whether a handler outcome is final. Successes and outcomes that
// a redelivery cannot change are acknowledged; everything else is retried.
func ShouldAck(err error) bool {
	if err == nil {
		return true
	}
	var fieldErr *chat.FieldError
	return errors.Is(err, chat.ErrNotFound) ||
		errors.Is(err, chat.ErrNotAvailable) ||
		errors.As(err, &fieldErr)
}

// AttributeCarrier adapts message attributes to an OpenTelemetry TextMapCarrier.
type AttributeCarrier map[string]string

// Get returns the value for key.
func (c AttributeCarrier) Get(key string) string {
	return c[key]
}

// Set stores value under key.
func (c AttributeCarrier) Set(key, value string) {
	c[key] = value
}

// Keys lists the carrier's keys.
func (c AttributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
