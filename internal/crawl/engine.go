// Package crawl drives a chat replay PageSource under a wall-clock budget and
// folds the results into the stored comment collection.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/livechat"
	"github.com/JakeFAU/livechat-harvester/internal/metrics"
)

// State is a step of the crawl state machine.
type State string

// Crawl states. Done and Suspended are terminal.
const (
	StateStart     State = "start"
	StateResolving State = "resolving"
	StatePaging    State = "paging"
	StateDone      State = "done"
	StateSuspended State = "suspended"
)

// Result summarizes one invocation. ResumeCursor is set only when State is StateSuspended.
type Result struct {
	State        State
	NewMessages  []chat.Message
	ResumeCursor string
	Pages        int
	Skipped      int
	// Available is false when the video turned out to have no chat replay.
	Available bool
	// Stored is the size of the persisted collection after merging.
	Stored int
	// Published is the id of the resume message, if one was sent.
	Published string
}

// Config controls Engine behavior.
type Config struct {
	// Budget bounds wall-clock time spent paging. Zero or negative means unlimited.
	Budget time.Duration
	// SkipUnrecognizedRuns drops messages with unknown run shapes instead of failing.
	SkipUnrecognizedRuns bool
}

// Engine runs incremental crawls for one request at a time.
type Engine struct {
	source    livechat.PageSource
	store     CommentStore
	publisher ResumptionPublisher
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Engine.
func New(
	source livechat.PageSource,
	store CommentStore,
	publisher ResumptionPublisher,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:    source,
		store:     store,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Crawl runs the state machine for req and returns the fetched messages without
// touching storage. Transport and parse failures abort the invocation.
func (e *Engine) Crawl(ctx context.Context, req chat.CrawlRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	start := e.clock.Now()
	logger := e.logger.With(zap.String("channel_id", req.ChannelID), zap.String("video_id", req.VideoID))

	res := Result{Available: true}
	state := StateStart
	cursor := req.Continuation

	for {
		switch state {
		case StateStart:
			if cursor == "" {
				state = StateResolving
			} else {
				state = StatePaging
			}

		case StateResolving:
			initial, err := e.source.InitialCursor(ctx, req.VideoID)
			if errors.Is(err, chat.ErrNotAvailable) {
				logger.Info("chat replay not available", zap.Error(err))
				res.Available = false
				state = StateDone
				continue
			}
			if err != nil {
				return Result{}, fmt.Errorf("resolve initial cursor: %w", err)
			}
			logger.Debug("initial cursor resolved", zap.String("cursor", initial))
			cursor = initial
			state = StatePaging

		case StatePaging:
			if e.overBudget(start) {
				res.ResumeCursor = cursor
				state = StateSuspended
				continue
			}
			page, err := e.source.FetchPage(ctx, cursor)
			if err != nil {
				return Result{}, fmt.Errorf("fetch page %d: %w", res.Pages+1, err)
			}
			res.Pages++
			metrics.ObservePage()
			if len(page.Items) == 0 && page.Next == "" {
				state = StateDone
				continue
			}
			if err := e.appendItems(&res, page, logger); err != nil {
				return Result{}, err
			}
			logger.Debug("page processed",
				zap.Int("page", res.Pages),
				zap.Int("items", len(page.Items)),
				zap.Int("messages", len(res.NewMessages)),
			)
			cursor = page.Next
			if cursor == "" {
				state = StateDone
			}

		case StateDone, StateSuspended:
			res.State = state
			logger.Info("crawl finished",
				zap.String("state", string(state)),
				zap.Int("pages", res.Pages),
				zap.Int("messages", len(res.NewMessages)),
				zap.Duration("elapsed", e.clock.Now().Sub(start)),
			)
			return res, nil
		}
	}
}

// Process crawls req, merges new messages into the stored collection, persists
// the merged set and publishes a resume request if the budget ran out.
func (e *Engine) Process(ctx context.Context, req chat.CrawlRequest) (Result, error) {
	started := e.clock.Now()
	res, err := e.process(ctx, req)
	outcome := string(res.State)
	if err != nil {
		outcome = "failed"
	}
	metrics.ObserveCrawl(outcome, e.clock.Now().Sub(started))
	return res, err
}

func (e *Engine) process(ctx context.Context, req chat.CrawlRequest) (Result, error) {
	res, err := e.Crawl(ctx, req)
	if err != nil {
		return Result{}, err
	}

	logger := e.logger.With(zap.String("channel_id", req.ChannelID), zap.String("video_id", req.VideoID))
	if len(res.NewMessages) > 0 {
		existing, err := e.store.LoadComments(ctx, req.ChannelID, req.VideoID)
		if err != nil {
			return Result{}, fmt.Errorf("load comments: %w", err)
		}
		merged, added := Merge(existing, res.NewMessages)
		res.Stored = len(merged)
		if len(added) > 0 {
			if err := e.store.SaveComments(ctx, req.ChannelID, req.VideoID, merged); err != nil {
				return Result{}, fmt.Errorf("save comments: %w", err)
			}
		}
		logger.Info("comments merged",
			zap.Int("existing", len(existing)),
			zap.Int("added", len(added)),
			zap.Int("stored", len(merged)),
		)
	} else {
		logger.Info("no new comments", zap.String("state", string(res.State)))
	}

	if res.State == StateSuspended {
		next := chat.CrawlRequest{ChannelID: req.ChannelID, VideoID: req.VideoID, Continuation: res.ResumeCursor}
		id, err := e.publisher.PublishCrawlRequest(ctx, next)
		if err != nil {
			return Result{}, fmt.Errorf("publish resume request: %w", err)
		}
		res.Published = id
		metrics.ObserveResumption()
		logger.Info("resume request published", zap.String("message_id", id), zap.String("cursor", res.ResumeCursor))
	}
	return res, nil
}

func (e *Engine) appendItems(res *Result, page livechat.Page, logger *zap.Logger) error {
	for _, item := range page.Items {
		msg, ok, err := livechat.ParseItem(item)
		if err != nil {
			if e.cfg.SkipUnrecognizedRuns && errors.Is(err, chat.ErrUnrecognizedRun) {
				res.Skipped++
				metrics.ObserveSkippedMessage("unrecognized_run")
				logger.Warn("skipping message", zap.Error(err))
				continue
			}
			return fmt.Errorf("parse item on page %d: %w", res.Pages, err)
		}
		if !ok {
			metrics.ObserveSkippedMessage("renderer")
			continue
		}
		metrics.ObserveMessage(string(msg.Kind))
		res.NewMessages = append(res.NewMessages, msg)
	}
	return nil
}

func (e *Engine) overBudget(start time.Time) bool {
	if e.cfg.Budget <= 0 {
		return false
	}
	return e.clock.Now().Sub(start) >= e.cfg.Budget
}
