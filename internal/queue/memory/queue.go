// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/queue"
)

// DefaultMaxAttempts bounds redelivery of requests whose handler asked for a retry.
const DefaultMaxAttempts = 3

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue closed")

type item struct {
	id      string
	req     chat.CrawlRequest
	attempt int
}

// Queue is an unbounded in-memory queue that acts as both publisher and subscriber.
// Publishing never blocks, so a handler may enqueue follow-up requests.
type Queue struct {
	mu          sync.Mutex
	items       []item
	notify      chan struct{}
	done        chan struct{}
	closed      bool
	seq         int
	maxAttempts int
	logger      *zap.Logger
}

var (
	_ queue.Publisher  = (*Queue)(nil)
	_ queue.Subscriber = (*Queue)(nil)
)

// NewQueue constructs an empty queue. maxAttempts <= 0 selects DefaultMaxAttempts.
func NewQueue(maxAttempts int, logger *zap.Logger) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// PublishCrawlRequest appends req and returns a sequential id.
func (q *Queue) PublishCrawlRequest(_ context.Context, req chat.CrawlRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	q.seq++
	id := fmt.Sprintf("memory-%d", q.seq)
	q.push(item{id: id, req: req, attempt: 1})
	return id, nil
}

// Len reports the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the requests still waiting for delivery.
func (q *Queue) Pending() []chat.CrawlRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]chat.CrawlRequest, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, it.req)
	}
	return out
}

// Receive hands requests to handle one at a time. It returns nil when ctx is done
// or when the queue is closed and drained.
func (q *Queue) Receive(ctx context.Context, handle queue.Handler) error {
	return q.consume(ctx, handle, true)
}

// Drain handles pending requests, including any published while draining, and
// returns once the queue is empty. Requests dropped after their final attempt
// are reported through the returned error.
func (q *Queue) Drain(ctx context.Context, handle queue.Handler) error {
	if err := q.consume(ctx, handle, false); err != nil {
		return err
	}
	return ctx.Err()
}

func (q *Queue) consume(ctx context.Context, handle queue.Handler, wait bool) error {
	var dropped []error
	for {
		it, ok := q.next(ctx, wait)
		if !ok {
			if wait {
				return nil
			}
			return errors.Join(dropped...)
		}
		err := handle(ctx, it.req)
		if queue.ShouldAck(err) {
			continue
		}
		logger := q.logger.With(
			zap.String("message_id", it.id),
			zap.String("video_id", it.req.VideoID),
			zap.Int("attempt", it.attempt),
			zap.Error(err),
		)
		if it.attempt >= q.maxAttempts {
			logger.Error("Dropping request after final attempt")
			dropped = append(dropped, fmt.Errorf("video %s: %w", it.req.VideoID, err))
			continue
		}
		logger.Warn("Redelivering request")
		q.mu.Lock()
		it.attempt++
		q.push(it)
		q.mu.Unlock()
	}
}

// Close stops accepting requests. Pending requests are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// push must be called with mu held.
func (q *Queue) push(it item) {
	q.items = append(q.items, it)
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) next(ctx context.Context, wait bool) (item, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return it, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed || !wait || ctx.Err() != nil {
			return item{}, false
		}
		select {
		case <-ctx.Done():
			return item{}, false
		case <-q.done:
		case <-q.notify:
		}
	}
}
