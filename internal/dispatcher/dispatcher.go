// Package dispatcher fans a subscription out to a pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/queue"
)

// Runner consumes requests from a subscription until ctx ends.
type Runner interface {
	Run(ctx context.Context, sub queue.Subscriber) error
}

// Dispatcher runs every worker against the same subscription. The subscription
// must tolerate concurrent Receive calls, as the memory queue does.
type Dispatcher struct {
	sub     queue.Subscriber
	workers []Runner
}

// New creates a Dispatcher.
func New(sub queue.Subscriber, workers []Runner) *Dispatcher {
	return &Dispatcher{
		sub:     sub,
		workers: workers,
	}
}

// Run starts all workers and blocks until each has returned. Worker errors are joined.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.sub == nil {
		return chat.ConfigError("queue.provider", "dispatcher requires a subscription")
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i, w := range d.workers {
		wg.Add(1)
		go func(index int, wk Runner) {
			defer wg.Done()
			if err := wk.Run(ctx, d.sub); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("worker %d: %w", index, err))
				mu.Unlock()
			}
		}(i, w)
	}
	wg.Wait()
	return errors.Join(errs...)
}
