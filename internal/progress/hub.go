package progress

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 4096).
//   - MaxBatchEvents: flush once this many events queue (default 1000).
//   - MaxBatchWait: longest an event waits in a partial batch (default 500ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - TerminalWait: how long RUN_DONE and RUN_ERROR wait for buffer space
//     before being dropped (default 2s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	TerminalWait   time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	defaultTerminalWait   = 2 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub batches crawl events and fans them out to sinks on a background
// goroutine. Item and fetch events never block the crawl loop; the run's
// closing event waits up to TerminalWait and is flushed at once.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	dropLog      rate.Sometimes
	dropMu       sync.Mutex
	dropped      map[Stage]int64
	droppedTotal atomic.Int64

	closed    atomic.Bool
	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts the background batching goroutine using
// the supplied sinks. The returned Hub is immediately ready to accept events.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.TerminalWait <= 0 {
		cfg.TerminalWait = defaultTerminalWait
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit enqueues an Event for batching. When the buffer is full item and fetch
// events are dropped and counted per stage; terminal events wait up to
// TerminalWait first.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		return
	default:
	}
	if evt.Stage.Terminal() && h.cfg.TerminalWait > 0 {
		timer := time.NewTimer(h.cfg.TerminalWait)
		defer timer.Stop()
		select {
		case h.events <- evt:
			return
		case <-timer.C:
		}
	}
	h.drop(evt.Stage)
}

// Dropped reports how many events were lost to backpressure since the hub
// started.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.droppedTotal.Load()
}

// Close drains remaining events, flushes and closes sinks, then waits for the
// background goroutine. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) drop(stage Stage) {
	h.droppedTotal.Add(1)
	h.dropMu.Lock()
	if h.dropped == nil {
		h.dropped = make(map[Stage]int64)
	}
	h.dropped[stage]++
	h.dropMu.Unlock()
	h.dropLog.Do(h.logDropped)
}

// logDropped reports and resets the per-stage counts gathered since the last
// report.
func (h *Hub) logDropped() {
	h.dropMu.Lock()
	pending := h.dropped
	h.dropped = nil
	h.dropMu.Unlock()
	if len(pending) == 0 {
		return
	}
	fields := make([]zap.Field, 0, len(pending))
	for _, stage := range slices.Sorted(maps.Keys(pending)) {
		fields = append(fields, zap.Int64(string(stage), pending[stage]))
	}
	h.logger.Warn("progress events dropped due to backpressure", zap.Dict("dropped", fields...))
}

func (h *Hub) run() {
	defer close(h.doneCh)
	b := newBatch(h.cfg.MaxBatchEvents, h.cfg.MaxBatchWait)
	defer b.timer.Stop()
	for {
		select {
		case evt := <-h.events:
			if b.add(evt) || evt.Stage.Terminal() {
				h.flush(b.take())
			}
		case <-b.timer.C:
			b.armed = false
			h.flush(b.take())
		case <-h.stopCh:
			h.drain(b)
			return
		}
	}
}

func (h *Hub) drain(b *batch) {
	for {
		select {
		case evt := <-h.events:
			if b.add(evt) {
				h.flush(b.take())
			}
		default:
			h.flush(b.take())
			h.closeSinks()
			h.logDropped()
			if n := h.droppedTotal.Load(); n > 0 {
				h.logger.Warn("progress hub closed after dropping events", zap.Int64("dropped_total", n))
			}
			return
		}
	}
}

func (h *Hub) flush(events []Event) {
	if len(events) == 0 {
		return
	}
	baseCtx := h.cfg.BaseContext
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx := baseCtx
		cancel := func() {}
		if h.cfg.SinkTimeout > 0 {
			ctx, cancel = context.WithTimeout(baseCtx, h.cfg.SinkTimeout)
		}
		if err := sink.Consume(ctx, events); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Int("events", len(events)), zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

// batch collects events until it is full or its oldest event has waited
// MaxBatchWait.
type batch struct {
	events []Event
	limit  int
	wait   time.Duration
	timer  *time.Timer
	armed  bool
}

func newBatch(limit int, wait time.Duration) *batch {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	return &batch{events: make([]Event, 0, limit), limit: limit, wait: wait, timer: timer}
}

// add appends evt and reports whether the batch is full. The first event of a
// batch arms the timer.
func (b *batch) add(evt Event) bool {
	b.events = append(b.events, evt)
	if !b.armed && b.wait > 0 {
		b.timer.Reset(b.wait)
		b.armed = true
	}
	return len(b.events) >= b.limit
}

// take hands off the pending events and disarms the timer.
func (b *batch) take() []Event {
	if b.armed {
		b.timer.Stop()
		b.armed = false
	}
	out := b.events
	b.events = make([]Event, 0, b.limit)
	return out
}
