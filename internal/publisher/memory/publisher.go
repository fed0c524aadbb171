// Package memory contains an in-memory publisher that records crawl requests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/queue"
)

// Publisher stores published requests for inspection.
type Publisher struct {
	mu       sync.RWMutex
	requests []chat.CrawlRequest
	err      error
}

var _ queue.Publisher = (*Publisher)(nil)

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent publishes return err. A nil err restores success.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// PublishCrawlRequest records the request and returns a pseudo ID.
func (p *Publisher) PublishCrawlRequest(_ context.Context, req chat.CrawlRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.requests = append(p.requests, req)
	return fmt.Sprintf("memory-%d", len(p.requests)), nil
}

// Requests returns the recorded publishes.
func (p *Publisher) Requests() []chat.CrawlRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chat.CrawlRequest, len(p.requests))
	copy(out, p.requests)
	return out
}
