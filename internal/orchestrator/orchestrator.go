// Package orchestrator drives a crawl: it walks the discovery tree, runs each
// work item through fetch, parse, merge, validate, and persist, and records
// completion in the checkpoint. Items run strictly one at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
	"github.com/JakeFAU/carcatalog-crawler/internal/discovery"
	"github.com/JakeFAU/carcatalog-crawler/internal/merge"
	"github.com/JakeFAU/carcatalog-crawler/internal/progress"
	"github.com/JakeFAU/carcatalog-crawler/internal/telemetry"
	"github.com/JakeFAU/carcatalog-crawler/internal/validate"
)

const defaultFrontierEvery = 25

var (
	// ErrRootUnavailable means the site index could not be fetched or parsed.
	ErrRootUnavailable = errors.New("site index unavailable")
	// ErrScopeUnmatched means the configured category matched nothing.
	ErrScopeUnmatched = errors.New("scope matched no category")
)

// Config controls a run.
type Config struct {
	// BaseURL is the site index, the root of discovery.
	BaseURL string
	// RunID is a UUID identifying the run in events and notifications.
	RunID string
	Scope discovery.Scope
	// Resume skips items the checkpoint already lists as completed.
	Resume bool
	// FrontierEvery controls how often the queue snapshot is saved.
	FrontierEvery int
	// MakeAliases folds make spellings onto one key; nil uses the defaults.
	MakeAliases map[string]string
}

// Dependencies are the collaborators a run needs. Notifier, Emitter, and
// Tracer are optional.
type Dependencies struct {
	Fetcher    crawler.Fetcher
	Extractor  crawler.PageExtractor
	Checkpoint *checkpoint.Store
	Records    crawler.RecordStore
	Archive    crawler.Archive
	Merger     *merge.Merger
	Validator  *validate.Validator
	Notifier   crawler.Notifier
	Emitter    progress.Emitter
	Tracer     trace.Tracer
	Clock      crawler.Clock
}

// Orchestrator runs one crawl. It implements discovery.Expander.
type Orchestrator struct {
	cfg    Config
	deps   Dependencies
	runID  [16]byte
	logger *zap.Logger

	traversal *discovery.Traversal

	mu      sync.Mutex
	summary Summary
}

var _ discovery.Expander = (*Orchestrator)(nil)

// New validates cfg and deps.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	runID, err := progress.ParseRunID(cfg.RunID)
	if err != nil {
		return nil, err
	}
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Checkpoint == nil:
		return nil, errors.New("checkpoint store is required")
	case deps.Records == nil:
		return nil, errors.New("record store is required")
	case deps.Archive == nil:
		return nil, errors.New("archive is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if deps.Merger == nil {
		deps.Merger = merge.New()
	}
	if deps.Validator == nil {
		deps.Validator = validate.New()
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer(telemetry.InstrumentationName)
	}
	if cfg.FrontierEvery <= 0 {
		cfg.FrontierEvery = defaultFrontierEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		runID:     runID,
		logger:    logger.With(zap.String("run_id", cfg.RunID)),
		traversal: discovery.NewTraversal(),
		summary:   Summary{RunID: cfg.RunID},
	}, nil
}

// Run crawls until the tree is exhausted, ctx is done, or a run-fatal error
// occurs. Cancellation is observed between items only. The returned summary is
// complete in every case.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	started := o.deps.Clock.Now()
	o.update(func(s *Summary) { s.StartedAt = started })
	o.emit(progress.Event{Stage: progress.StageRunStart})
	o.logger.Info("crawl started",
		zap.String("base_url", o.cfg.BaseURL),
		zap.Bool("resume", o.cfg.Resume),
		zap.String("category", o.cfg.Scope.Category),
		zap.String("subcategory", o.cfg.Scope.Subcategory),
		zap.Int("checkpoint_completed", o.deps.Checkpoint.Stats().Completed),
	)

	root := crawler.WorkItem{Kind: crawler.KindRoot, URL: o.cfg.BaseURL}
	opts := []discovery.Option{
		discovery.WithTraversal(o.traversal),
		discovery.WithFrontierHook(o.cfg.FrontierEvery, o.saveFrontier(ctx)),
	}

	var runErr error
	for item, err := range discovery.Discover(ctx, o, []crawler.WorkItem{root}, opts...) {
		o.update(func(s *Summary) { s.Discovered = o.traversal.SeenCount() })
		if err != nil {
			if ctx.Err() == nil || !errors.Is(err, ctx.Err()) {
				runErr = err
			}
			break
		}
		o.logger.Debug("item finished", zap.String("url", item.URL), zap.String("kind", string(item.Kind)))
	}

	finished := o.deps.Clock.Now()
	o.update(func(s *Summary) {
		s.FinishedAt = finished
		s.Discovered = o.traversal.SeenCount()
		s.Interrupted = runErr == nil && ctx.Err() != nil
	})
	summary := o.Snapshot()

	fields := []zap.Field{
		zap.Int("discovered", summary.Discovered),
		zap.Int("done", summary.Done),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("validation_warnings", summary.ValidationWarnings),
		zap.Int("persisted", summary.Persisted),
		zap.String("completeness", summary.Completeness()),
		zap.Duration("duration", finished.Sub(started)),
		zap.Bool("interrupted", summary.Interrupted),
	}
	if runErr != nil {
		o.emit(progress.Event{Stage: progress.StageRunError, Dur: finished.Sub(started), Note: runErr.Error()})
		o.logger.Error("crawl aborted", append(fields, zap.Error(runErr))...)
		return summary, runErr
	}
	o.emit(progress.Event{Stage: progress.StageRunDone, Dur: finished.Sub(started)})
	o.logger.Info("crawl finished", fields...)
	return summary, nil
}

// Snapshot returns a copy of the live summary. It is safe to call while Run
// is in progress.
func (o *Orchestrator) Snapshot() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.summary
	s.Failures = append([]Failure(nil), o.summary.Failures...)
	return s
}

// Expand implements discovery.Expander. Item work runs detached from ctx so an
// interrupt never leaves a half-written record; the traversal checks ctx
// before the next item.
func (o *Orchestrator) Expand(ctx context.Context, item crawler.WorkItem) (_ []crawler.WorkItem, err error) {
	ctx, span := o.deps.Tracer.Start(ctx, "crawl."+string(item.Kind), trace.WithAttributes(
		telemetry.AttrRunID.String(o.cfg.RunID),
		telemetry.AttrURL.String(item.URL),
		telemetry.AttrKind.String(string(item.Kind)),
	))
	defer func() { telemetry.End(span, err) }()

	if o.cfg.Resume && o.deps.Checkpoint.IsDone(item.Key()) {
		span.SetAttributes(telemetry.AttrState.String("skipped"))
		children, _ := o.deps.Checkpoint.Children(item.Key())
		o.update(func(s *Summary) { s.Skipped++ })
		o.emit(progress.Event{Stage: progress.StageItemSkipped, Kind: string(item.Kind), URL: item.URL})
		o.logger.Debug("item already completed",
			zap.String("url", item.URL),
			zap.String("kind", string(item.Kind)),
			zap.String("state", "done"),
			zap.Int("children", len(children)),
		)
		return o.admit(item, children)
	}

	itemCtx := context.WithoutCancel(ctx)
	started := o.deps.Clock.Now()
	children, done, err := o.process(itemCtx, item)
	if err != nil {
		return nil, err
	}
	if !done {
		span.SetAttributes(telemetry.AttrState.String("failed"))
		return nil, nil
	}
	span.SetAttributes(telemetry.AttrState.String("done"))
	o.emit(progress.Event{
		Stage: progress.StageItemDone,
		Kind:  string(item.Kind),
		URL:   item.URL,
		Dur:   o.deps.Clock.Now().Sub(started),
	})
	return o.admit(item, children)
}

// admit applies the scope to children. Children are checkpointed unfiltered so
// a later run with a different scope can reuse them.
func (o *Orchestrator) admit(item crawler.WorkItem, children []crawler.WorkItem) ([]crawler.WorkItem, error) {
	scope := o.cfg.Scope
	if scope.Empty() {
		return children, nil
	}
	admitted := scope.Filter(children)
	switch item.Kind {
	case crawler.KindRoot:
		if scope.Category != "" && len(admitted) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrScopeUnmatched, scope.Category)
		}
	case crawler.KindCategory:
		if scope.Subcategory != "" {
			subs := admitted[:0:0]
			for _, c := range admitted {
				if c.Kind == crawler.KindSubcategory {
					subs = append(subs, c)
				}
			}
			admitted = subs
		}
	}
	return admitted, nil
}

func (o *Orchestrator) saveFrontier(ctx context.Context) func([]crawler.WorkItem) {
	return func(frontier []crawler.WorkItem) {
		if err := o.deps.Checkpoint.SaveFrontier(context.WithoutCancel(ctx), frontier); err != nil {
			o.logger.Warn("frontier snapshot failed", zap.Int("frontier", len(frontier)), zap.Error(err))
		}
	}
}

// markDone is the only path to Done. A checkpoint write failure is run-fatal.
func (o *Orchestrator) markDone(ctx context.Context, item crawler.WorkItem, children []crawler.WorkItem) error {
	if err := o.deps.Checkpoint.MarkDone(ctx, item, children); err != nil {
		return fmt.Errorf("checkpoint %s: %w", item.URL, err)
	}
	o.update(func(s *Summary) { s.Done++ })
	o.logger.Debug("item done",
		zap.String("url", item.URL),
		zap.String("kind", string(item.Kind)),
		zap.String("state", "done"),
		zap.Int("children", len(children)),
	)
	return nil
}

func (o *Orchestrator) fail(item crawler.WorkItem, reason string, err error) {
	failure := Failure{
		URL:    item.URL,
		Kind:   item.Kind,
		Reason: reason,
		Error:  err.Error(),
		At:     o.deps.Clock.Now(),
	}
	o.update(func(s *Summary) {
		s.Failed++
		s.Failures = append(s.Failures, failure)
	})
	o.emit(progress.Event{Stage: progress.StageItemFailed, Kind: string(item.Kind), URL: item.URL, Note: reason})
	o.logger.Warn("item failed",
		zap.String("url", item.URL),
		zap.String("kind", string(item.Kind)),
		zap.String("state", "failed"),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func (o *Orchestrator) archive(ctx context.Context, item crawler.WorkItem, body []byte) {
	uri, err := o.deps.Archive.Save(ctx, item.URL, body)
	if err != nil {
		o.logger.Warn("archive page failed", zap.String("url", item.URL), zap.Error(err))
		return
	}
	o.logger.Info("page archived", zap.String("url", item.URL), zap.String("kind", string(item.Kind)), zap.String("uri", uri))
}

func (o *Orchestrator) update(fn func(*Summary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.summary)
}

func (o *Orchestrator) emit(evt progress.Event) {
	evt.RunID = o.runID
	evt.TS = o.deps.Clock.Now().UTC()
	o.deps.Emitter.Emit(evt)
}
