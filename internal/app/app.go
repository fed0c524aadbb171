// Package app builds the harvester's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/livechat-harvester/internal/api"
	"github.com/JakeFAU/livechat-harvester/internal/archive"
	"github.com/JakeFAU/livechat-harvester/internal/catalog"
	"github.com/JakeFAU/livechat-harvester/internal/clock/system"
	"github.com/JakeFAU/livechat-harvester/internal/config"
	"github.com/JakeFAU/livechat-harvester/internal/crawl"
	"github.com/JakeFAU/livechat-harvester/internal/detector"
	"github.com/JakeFAU/livechat-harvester/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/livechat-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/livechat-harvester/internal/flatten"
	"github.com/JakeFAU/livechat-harvester/internal/id/uuid"
	"github.com/JakeFAU/livechat-harvester/internal/ledger"
	"github.com/JakeFAU/livechat-harvester/internal/livechat"
	"github.com/JakeFAU/livechat-harvester/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/livechat-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/livechat-harvester/internal/queue"
	queuememory "github.com/JakeFAU/livechat-harvester/internal/queue/memory"
	gcpsubscriber "github.com/JakeFAU/livechat-harvester/internal/queue/pubsub"
	appstorage "github.com/JakeFAU/livechat-harvester/internal/storage"
	gcsstorage "github.com/JakeFAU/livechat-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/livechat-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/livechat-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/livechat-harvester/internal/storage/postgres"
	"github.com/JakeFAU/livechat-harvester/internal/telemetry"
	"github.com/JakeFAU/livechat-harvester/internal/worker"
)

// Options carry build metadata and client overrides, mainly for tests.
type Options struct {
	Version        string
	StorageOptions []option.ClientOption
	PubSubOptions  []option.ClientOption
	YouTubeOptions []option.ClientOption
}

// App owns the long-lived clients and lazily builds the components each
// command needs. Accessors are safe for concurrent use.
type App struct {
	cfg    config.Config
	opts   Options
	logger *zap.Logger

	store   appstorage.Provider
	archive *archive.Archive
	runs    ledger.Store

	mu           sync.Mutex
	storage      *storage.Client
	pubsubClient *pubsub.Client
	topic        *gcppublisher.Publisher
	memQueue     *queuememory.Queue
	publisher    queue.Publisher
	engine       *crawl.Engine
	worker       *worker.Worker
	pgRuns       *pgstore.RunStore

	tracerShutdown telemetry.ShutdownFunc
}

// New sets up tracing, the object store and the optional run ledger. Queue
// and YouTube clients are created on first use so commands that do not need
// them do not require their configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.RequireStorage(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, opts: opts, logger: logger}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: opts.Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, logger.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = shutdown

	if err := a.setupStorage(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.archive = archive.New(a.store, cfg.ArchivePaths())

	if err := a.setupLedger(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Provider {
	case config.ProviderGCS:
		opts := a.opts.StorageOptions
		if a.cfg.GCP.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(a.cfg.GCP.CredentialsFile))
		}
		a.storage, err = storage.NewClient(ctx, opts...)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.store, err = gcsstorage.New(a.storage, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case config.ProviderLocal:
		a.store, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
	default:
		a.logger.Info("using in-memory storage backend")
		a.store = memorystorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupLedger(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no db.dsn configured, keeping runs in memory")
		a.runs = memorystorage.NewRunStore()
		return nil
	}
	store, err := pgstore.NewRunStore(ctx, pgstore.RunStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.pgRuns = store
	a.runs = store
	a.logger.Info("run ledger initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Archive returns the object layout over the configured store.
func (a *App) Archive() *archive.Archive { return a.archive }

// Runs returns the run ledger.
func (a *App) Runs() ledger.Store { return a.runs }

// Publisher returns the crawl request publisher for the configured queue.
func (a *App) Publisher(ctx context.Context) (queue.Publisher, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.publisherLocked(ctx)
}

func (a *App) publisherLocked(ctx context.Context) (queue.Publisher, error) {
	if a.publisher != nil {
		return a.publisher, nil
	}
	if err := a.cfg.RequirePublisher(); err != nil {
		return nil, err
	}
	if a.cfg.Queue.Provider == config.ProviderMemory {
		a.publisher = a.memoryQueueLocked()
		return a.publisher, nil
	}
	client, err := a.pubsubLocked(ctx)
	if err != nil {
		return nil, err
	}
	a.topic = gcppublisher.New(client.Topic(a.cfg.PubSub.TopicName))
	a.publisher = a.topic
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.GCP.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

// Subscriber returns the pull side of the configured queue. With the memory
// provider it shares the publisher's queue.
func (a *App) Subscriber(ctx context.Context) (queue.Subscriber, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.cfg.RequireSubscriber(); err != nil {
		return nil, err
	}
	if a.cfg.Queue.Provider == config.ProviderMemory {
		return a.memoryQueueLocked(), nil
	}
	client, err := a.pubsubLocked(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Pub/Sub subscriber initialized", zap.String("subscription", a.cfg.PubSub.Subscription))
	return gcpsubscriber.New(
		client.Subscription(a.cfg.PubSub.Subscription),
		gcpsubscriber.Config{MaxOutstanding: a.cfg.PubSub.MaxOutstanding},
		a.logger.Named("subscriber"),
	), nil
}

// MemoryQueue returns the in-process queue, or nil when Pub/Sub is configured.
func (a *App) MemoryQueue() *queuememory.Queue {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.Queue.Provider != config.ProviderMemory {
		return nil
	}
	return a.memoryQueueLocked()
}

func (a *App) memoryQueueLocked() *queuememory.Queue {
	if a.memQueue == nil {
		a.memQueue = queuememory.NewQueue(a.cfg.Queue.MaxAttempts, a.logger.Named("queue"))
		a.logger.Info("using in-memory queue", zap.Int("max_attempts", a.cfg.Queue.MaxAttempts))
	}
	return a.memQueue
}

func (a *App) pubsubLocked(ctx context.Context) (*pubsub.Client, error) {
	if a.pubsubClient != nil {
		return a.pubsubClient, nil
	}
	opts := a.opts.PubSubOptions
	if a.cfg.GCP.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(a.cfg.GCP.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, a.cfg.GCP.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	return client, nil
}

// Engine returns the crawl engine wired to the replay pages, the archive and
// the publisher used for resumptions.
func (a *App) Engine(ctx context.Context) (*crawl.Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engineLocked(ctx)
}

func (a *App) engineLocked(ctx context.Context) (*crawl.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	publisher, err := a.publisherLocked(ctx)
	if err != nil {
		return nil, err
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   a.cfg.Crawler.UserAgent,
		Headers:     a.cfg.FetchHeaders(),
		Timeout:     a.cfg.FetchTimeout(),
		MaxBodySize: a.cfg.Crawler.MaxBodyBytes,
	})
	var pacer livechat.Pacer
	if a.cfg.Crawler.RequestsPerSecond > 0 {
		pacer = ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.Crawler.RequestsPerSecond,
			Burst: a.cfg.Crawler.Burst,
		})
		a.logger.Info("fetch pacing enabled",
			zap.Float64("rps", a.cfg.Crawler.RequestsPerSecond),
			zap.Int("burst", a.cfg.Crawler.Burst),
		)
	}
	source := livechat.NewSource(livechat.SourceConfig{
		WatchURL:     a.cfg.Crawler.WatchURL,
		ReplayURL:    a.cfg.Crawler.ReplayURL,
		ReplayLabels: a.cfg.Crawler.ReplayLabels,
		Headers:      a.cfg.FetchHeaders(),
	}, fetcher, pacer, a.logger.Named("source"))

	a.engine = crawl.New(source, a.archive, publisher, system.New(), crawl.Config{
		Budget:               a.cfg.CrawlBudget(),
		SkipUnrecognizedRuns: a.cfg.Crawler.SkipUnrecognizedRuns,
	}, a.logger.Named("engine"))
	a.logger.Info("crawl engine initialized",
		zap.Duration("budget", a.cfg.CrawlBudget()),
		zap.Bool("skip_unrecognized_runs", a.cfg.Crawler.SkipUnrecognizedRuns),
	)
	return a.engine, nil
}

// Worker returns the request handler that runs the engine and records runs.
func (a *App) Worker(ctx context.Context) (*worker.Worker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.worker != nil {
		return a.worker, nil
	}
	engine, err := a.engineLocked(ctx)
	if err != nil {
		return nil, err
	}
	a.worker = worker.New(engine, a.runs, uuid.New(), system.New(), a.logger.Named("worker"))
	return a.worker, nil
}

// Dispatcher returns a pool of queue.concurrency workers draining the memory
// queue. Pub/Sub bounds its own concurrency through pubsub.max_outstanding, so
// with that provider the pool holds a single worker on the subscription.
func (a *App) Dispatcher(ctx context.Context) (*dispatcher.Dispatcher, error) {
	sub, err := a.Subscriber(ctx)
	if err != nil {
		return nil, err
	}
	w, err := a.Worker(ctx)
	if err != nil {
		return nil, err
	}
	n := 1
	if a.cfg.Queue.Provider == config.ProviderMemory && a.cfg.Queue.Concurrency > 1 {
		n = a.cfg.Queue.Concurrency
	}
	workers := make([]dispatcher.Runner, n)
	for i := range workers {
		workers[i] = w
	}
	a.logger.Info("dispatcher initialized", zap.Int("workers", n))
	return dispatcher.New(sub, workers), nil
}

// Detector returns the untouched-video detector.
func (a *App) Detector(ctx context.Context) (*detector.Detector, error) {
	publisher, err := a.Publisher(ctx)
	if err != nil {
		return nil, err
	}
	return detector.New(a.archive, publisher, a.logger.Named("detector")), nil
}

// Flattener returns the analytics row writer.
func (a *App) Flattener() *flatten.Flattener {
	return flatten.New(a.archive, a.logger.Named("flatten"))
}

// Catalog returns the catalog syncer backed by the YouTube Data API.
func (a *App) Catalog(ctx context.Context) (*catalog.Syncer, error) {
	if err := a.cfg.RequireYouTube(); err != nil {
		return nil, err
	}
	lister, err := catalog.NewYouTubeLister(ctx, a.cfg.YouTube.APIKey, a.opts.YouTubeOptions...)
	if err != nil {
		return nil, err
	}
	return catalog.New(a.archive, lister, a.logger.Named("catalog")), nil
}

// APIServer wires every component the HTTP routes need. Components whose
// configuration is missing are logged and left out, so their routes answer 503.
func (a *App) APIServer(ctx context.Context) *api.Server {
	deps := api.Dependencies{
		Flattener: a.Flattener(),
		Runs:      a.runs,
		Ready:     a.Ready,
	}
	if w, err := a.Worker(ctx); err != nil {
		a.logger.Warn("crawl route disabled", zap.Error(err))
	} else {
		deps.Crawls = w
	}
	if d, err := a.Detector(ctx); err != nil {
		a.logger.Warn("detector route disabled", zap.Error(err))
	} else {
		deps.Detector = d
	}
	if c, err := a.Catalog(ctx); err != nil {
		a.logger.Warn("catalog route disabled", zap.Error(err))
	} else {
		deps.Catalog = c
	}
	return api.NewServer(deps, api.Options{
		AuthEnabled:    a.cfg.Auth.Enabled,
		APIKey:         a.cfg.Auth.APIKey,
		RequestTimeout: a.cfg.RequestTimeout(),
		Paths:          a.cfg.ArchivePaths(),
	}, a.logger.Named("api"))
}

// Ready probes the object store.
func (a *App) Ready(ctx context.Context) error {
	if _, err := a.store.ObjectExists(ctx, a.archive.Paths().Channels); err != nil {
		return fmt.Errorf("object store unreachable: %w", err)
	}
	return nil
}

// Close releases clients and flushes telemetry. It is safe to call more than once.
func (a *App) Close(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeInfrastructure()
	a.closeObservability(ctx)
}

func (a *App) closeInfrastructure() {
	if a.memQueue != nil {
		a.memQueue.Close()
	}
	if a.topic != nil {
		a.topic.Stop()
		a.topic = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.pgRuns != nil {
		a.pgRuns.Close()
		a.pgRuns = nil
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
}
