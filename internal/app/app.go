// Package app builds the crawler's long-lived services from configuration and
// owns their shutdown. Commands ask the App for exactly what they need, so a
// checkpoint command never dials GCS and an export never opens Pub/Sub.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/api"
	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/clock/system"
	"github.com/JakeFAU/carcatalog-crawler/internal/config"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
	"github.com/JakeFAU/carcatalog-crawler/internal/discovery"
	"github.com/JakeFAU/carcatalog-crawler/internal/extract/htmlextract"
	"github.com/JakeFAU/carcatalog-crawler/internal/fetcher"
	collyfetch "github.com/JakeFAU/carcatalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/carcatalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/carcatalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/carcatalog-crawler/internal/merge"
	"github.com/JakeFAU/carcatalog-crawler/internal/metrics"
	"github.com/JakeFAU/carcatalog-crawler/internal/orchestrator"
	"github.com/JakeFAU/carcatalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/carcatalog-crawler/internal/progress"
	"github.com/JakeFAU/carcatalog-crawler/internal/progress/sinks"
	"github.com/JakeFAU/carcatalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/carcatalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/carcatalog-crawler/internal/storage/local"
	"github.com/JakeFAU/carcatalog-crawler/internal/storage/postgres"
	"github.com/JakeFAU/carcatalog-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/carcatalog-crawler/internal/telemetry"
	"github.com/JakeFAU/carcatalog-crawler/internal/validate"
)

// ServiceName identifies the crawler in traces.
const ServiceName = "carcrawl"

// App holds shared services. It is safe for concurrent use.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    crawler.Clock
	registry *prometheus.Registry

	mu         sync.Mutex
	checkpoint *checkpoint.Store
	gcsStore   *gcs.BlobStore
	closers    []func(context.Context) error
}

// New returns an App for cfg. Services are created on first use.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		clock:    system.New(),
		registry: prometheus.NewRegistry(),
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Registry returns the Prometheus registry served on /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Checkpoint opens the configured checkpoint backend once and returns the store.
func (a *App) Checkpoint(ctx context.Context) (*checkpoint.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.checkpoint != nil {
		return a.checkpoint, nil
	}

	var backend checkpoint.Backend
	var err error
	cc := a.cfg.Checkpoint
	switch cc.Backend {
	case config.BackendFile:
		backend, err = local.NewCheckpointFile(local.Config{BaseDir: cc.Dir})
	case config.BackendSQLite:
		backend, err = sqlite.Open(cc.Dir)
	case config.BackendPostgres:
		backend, err = postgres.NewCheckpointStore(ctx, postgres.CheckpointStoreConfig{
			DSN:         cc.DSN,
			TablePrefix: cc.TablePrefix,
		})
	default:
		err = fmt.Errorf("unknown checkpoint backend %q", cc.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint backend: %w", err)
	}

	store, err := checkpoint.Open(ctx, backend, a.clock)
	if err != nil {
		return nil, errors.Join(err, backend.Close())
	}
	a.checkpoint = store
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	a.logger.Info("checkpoint opened",
		zap.String("backend", cc.Backend),
		zap.Int("completed", store.Stats().Completed),
	)
	return store, nil
}

// Records returns the configured record store.
func (a *App) Records(ctx context.Context) (crawler.RecordStore, error) {
	if a.cfg.Records.Backend == config.BackendGCS {
		return a.gcs(ctx)
	}
	return a.LocalRecords()
}

// LocalRecords returns the filesystem record store, which also supports Walk.
func (a *App) LocalRecords() (*local.RecordStore, error) {
	store, err := local.NewRecordStore(local.Config{BaseDir: a.cfg.Records.Dir})
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return store, nil
}

// Archive returns where raw HTML of unparsable pages is kept: the bucket when
// records live in GCS, the archive directory otherwise.
func (a *App) Archive(ctx context.Context) (crawler.Archive, error) {
	if a.cfg.Records.Backend == config.BackendGCS {
		return a.gcs(ctx)
	}
	archive, err := local.New(local.Config{BaseDir: a.cfg.Archive.Dir}, sha256.New())
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return archive, nil
}

func (a *App) gcs(ctx context.Context) (*gcs.BlobStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gcsStore != nil {
		return a.gcsStore, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Records.GCSBucket, Prefix: a.cfg.Records.GCSPrefix}, sha256.New())
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}
	a.gcsStore = store
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	a.logger.Info("using gcs record store", zap.String("bucket", a.cfg.Records.GCSBucket))
	return store, nil
}

// Notifier returns the Pub/Sub publisher, or nil when notifications are off.
func (a *App) Notifier(ctx context.Context) (crawler.Notifier, error) {
	if !a.cfg.PubSub.Enabled() {
		return nil, nil
	}
	pub, err := pubsub.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}
	a.track(func(context.Context) error { return pub.Close() })
	a.logger.Info("record notifications enabled", zap.String("topic", a.cfg.PubSub.Topic))
	return pub, nil
}

// Tracer returns the crawl tracer, or nil when tracing is off.
func (a *App) Tracer(ctx context.Context) (trace.Tracer, error) {
	tc := a.cfg.Tracing
	if !tc.Enabled {
		return nil, nil
	}
	provider, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: ServiceName,
		Version:     version(),
		ProjectID:   tc.ProjectID,
		SampleRatio: tc.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("set up tracing: %w", err)
	}
	a.track(provider.Shutdown)
	a.logger.Info("tracing enabled",
		zap.Bool("export", tc.ProjectID != ""),
		zap.Float64("sample_ratio", tc.SampleRatio),
	)
	return provider.Tracer(), nil
}

func version() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "dev"
}

// CrawlOptions are the per-invocation settings from the command line.
type CrawlOptions struct {
	Scope  discovery.Scope
	Resume bool
	// RateLimitSeconds overrides fetch.rate_limit_seconds when non-nil.
	RateLimitSeconds *float64
}

// Crawl is a fully wired run.
type Crawl struct {
	RunID        string
	Orchestrator *orchestrator.Orchestrator
	Checkpoint   *checkpoint.Store
}

// NewCrawl wires fetcher, extractor, stores, and progress reporting into an
// orchestrator for one run.
func (a *App) NewCrawl(ctx context.Context, opts CrawlOptions) (*Crawl, error) {
	if opts.RateLimitSeconds != nil && *opts.RateLimitSeconds <= 0 {
		return nil, fmt.Errorf("rate limit override must be > 0, got %v", *opts.RateLimitSeconds)
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	runBytes, err := progress.ParseRunID(runID)
	if err != nil {
		return nil, err
	}
	logger := a.logger.With(zap.String("run_id", runID))

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, err
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)
	a.track(hub.Close)

	interval := a.cfg.RateInterval()
	if opts.RateLimitSeconds != nil {
		interval = time.Duration(*opts.RateLimitSeconds * float64(time.Second))
	}
	transport := collyfetch.New(collyfetch.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.Fetch.Timeout,
		MaxBodySize:   a.cfg.Fetch.MaxBodySize,
	})
	pageFetcher, err := fetcher.New(transport, ratelimit.New(interval), a.cfg.RetryPolicy(),
		fetcher.WithLogger(logger),
		fetcher.WithEmitter(hub, runBytes),
	)
	if err != nil {
		return nil, err
	}

	store, err := a.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}
	records, err := a.Records(ctx)
	if err != nil {
		return nil, err
	}
	archive, err := a.Archive(ctx)
	if err != nil {
		return nil, err
	}
	notifier, err := a.Notifier(ctx)
	if err != nil {
		return nil, err
	}
	tracer, err := a.Tracer(ctx)
	if err != nil {
		return nil, err
	}

	o, err := orchestrator.New(orchestrator.Config{
		BaseURL:       a.cfg.Site.BaseURL,
		RunID:         runID,
		Scope:         opts.Scope,
		Resume:        opts.Resume,
		FrontierEvery: a.cfg.Crawl.FrontierEvery,
		MakeAliases:   a.cfg.MakeAliases(),
	}, orchestrator.Dependencies{
		Fetcher:    pageFetcher,
		Extractor:  htmlextract.New(),
		Checkpoint: store,
		Records:    records,
		Archive:    archive,
		Merger:     merge.New(merge.WithReviewPolicy(a.cfg.ReviewPolicy())),
		Validator:  validate.New(),
		Notifier:   notifier,
		Emitter:    hub,
		Tracer:     tracer,
		Clock:      a.clock,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	logger.Info("crawl wired",
		zap.Duration("rate_interval", interval),
		zap.String("records_backend", a.cfg.Records.Backend),
		zap.String("checkpoint_backend", a.cfg.Checkpoint.Backend),
		zap.String("review_policy", string(a.cfg.ReviewPolicy())),
	)
	return &Crawl{RunID: runID, Orchestrator: o, Checkpoint: store}, nil
}

// StatusServer builds the status server for a run.
func (a *App) StatusServer(c *Crawl) (*api.Server, error) {
	httpMetrics, err := metrics.NewHTTP(a.registry)
	if err != nil {
		return nil, err
	}
	return api.NewServer(c.Orchestrator, c.Checkpoint, a.registry, httpMetrics, a.logger.Named("status")), nil
}

func (a *App) track(closer func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer)
}

// Close releases services in reverse creation order and flushes the logger.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error shutting down services", zap.Error(err))
		return err
	}
	return nil
}
