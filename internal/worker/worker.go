// Package worker runs crawl requests delivered by a queue or an HTTP push and
// records each outcome in the run ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/crawl"
	"github.com/JakeFAU/livechat-harvester/internal/ledger"
	"github.com/JakeFAU/livechat-harvester/internal/metrics"
	"github.com/JakeFAU/livechat-harvester/internal/queue"
	"github.com/JakeFAU/livechat-harvester/internal/telemetry"
)

// Processor runs one incremental crawl.
type Processor interface {
	Process(ctx context.Context, req chat.CrawlRequest) (crawl.Result, error)
}

// IDGenerator yields run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Worker executes crawl requests.
type Worker struct {
	processor Processor
	runs      ledger.Store
	ids       IDGenerator
	clock     crawl.Clock
	logger    *zap.Logger
}

// New constructs a Worker. runs may be nil when no ledger is configured.
func New(
	processor Processor,
	runs ledger.Store,
	ids IDGenerator,
	clock crawl.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		processor: processor,
		runs:      runs,
		ids:       ids,
		clock:     clock,
		logger:    logger,
	}
}

// Run blocks, handing requests from sub to Handle until the context finishes.
func (w *Worker) Run(ctx context.Context, sub queue.Subscriber) error {
	w.logger.Info("worker listening")
	if err := sub.Receive(ctx, w.Handle); err != nil {
		return fmt.Errorf("receive crawl requests: %w", err)
	}
	return nil
}

// Handle processes req. The returned error is nil for outcomes that need no retry,
// so callers can ack on nil and redeliver otherwise.
func (w *Worker) Handle(ctx context.Context, req chat.CrawlRequest) (err error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	ctx, span := telemetry.StartSpan(ctx, "crawl.handle",
		attribute.String("channel_id", req.ChannelID),
		attribute.String("video_id", req.VideoID),
	)
	defer func() { telemetry.End(span, err) }()

	logger := w.logger.With(
		zap.String("channel_id", req.ChannelID),
		zap.String("video_id", req.VideoID),
		zap.Bool("resumed", req.Continuation != ""),
	)
	started := w.clock.Now()
	logger.Info("crawl request received")

	res, procErr := w.processor.Process(ctx, req)
	w.record(ctx, req, started, res, procErr)

	switch {
	case procErr == nil:
		logger.Info("crawl request handled",
			zap.String("state", string(res.State)),
			zap.Int("new_messages", len(res.NewMessages)),
			zap.Bool("available", res.Available),
		)
		return nil
	case errors.Is(procErr, chat.ErrNotFound), errors.Is(procErr, chat.ErrNotAvailable):
		logger.Warn("crawl request dropped", zap.Error(procErr))
		return nil
	default:
		logger.Error("crawl request failed", zap.Error(procErr))
		return procErr
	}
}

func (w *Worker) record(ctx context.Context, req chat.CrawlRequest, started time.Time, res crawl.Result, procErr error) {
	if w.runs == nil {
		return
	}
	id, err := w.ids.NewID()
	if err != nil {
		w.logger.Error("generate run id failed", zap.Error(err))
		return
	}
	run := ledger.Run{
		ID:           id,
		ChannelID:    req.ChannelID,
		VideoID:      req.VideoID,
		StartedAt:    started,
		FinishedAt:   w.clock.Now(),
		State:        string(res.State),
		Pages:        res.Pages,
		NewMessages:  len(res.NewMessages),
		ResumeCursor: res.ResumeCursor,
	}
	if procErr != nil {
		run.State = "failed"
		run.ErrorText = procErr.Error()
	}
	if err := w.runs.RecordRun(ctx, run); err != nil {
		w.logger.Error("record run failed", zap.String("run_id", id), zap.Error(err))
	}
}
