// Package fetcher implements the paced, retrying page fetcher. Every request to
// the catalog host passes through one shared pacing gate; failures are
// classified and retried according to a retry.Policy.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/clock/system"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
	"github.com/JakeFAU/carcatalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/carcatalog-crawler/internal/policy/retry"
	"github.com/JakeFAU/carcatalog-crawler/internal/progress"
)

// Transport performs a single HTTP GET. It returns an error only when no
// response was received at all.
type Transport interface {
	Get(ctx context.Context, url string) (crawler.Response, error)
}

// Pacer brackets every HTTP attempt.
type Pacer interface {
	Wait(ctx context.Context) error
	Done()
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Fetcher is the crawler.Fetcher used by the orchestrator.
type Fetcher struct {
	transport Transport
	pacer     Pacer
	policy    retry.Policy
	clock     crawler.Clock
	sleep     SleepFunc
	logger    *zap.Logger
	emitter   progress.Emitter
	runID     [16]byte
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithClock swaps the time source used for durations.
func WithClock(clock crawler.Clock) Option {
	return func(f *Fetcher) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithSleep swaps the backoff sleeper.
func WithSleep(sleep SleepFunc) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEmitter reports one FETCH_DONE event per Fetch call under runID.
func WithEmitter(emitter progress.Emitter, runID [16]byte) Option {
	return func(f *Fetcher) {
		if emitter != nil {
			f.emitter = emitter
			f.runID = runID
		}
	}
}

// New builds a Fetcher. A nil pacer disables pacing.
func New(transport Transport, pacer Pacer, policy retry.Policy, opts ...Option) (*Fetcher, error) {
	if transport == nil {
		return nil, errors.New("fetcher: transport is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("fetcher: invalid retry policy: %w", err)
	}
	if pacer == nil {
		pacer = ratelimit.New(0)
	}
	clk := system.New()
	f := &Fetcher{
		transport: transport,
		pacer:     pacer,
		policy:    policy,
		clock:     clk,
		sleep:     clk.Sleep,
		logger:    zap.NewNop(),
		emitter:   progress.NopEmitter{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch retrieves url. Statuses below 400 are successes. Anything else is
// retried while the policy allows and then returned as a *crawler.FetchError
// carrying the last status and cause.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResult, error) {
	start := f.clock.Now()
	for attempt := 1; ; attempt++ {
		if err := f.pacer.Wait(ctx); err != nil {
			return crawler.FetchResult{}, fmt.Errorf("fetch %s: %w", url, err)
		}
		resp, err := f.transport.Get(ctx, url)
		f.pacer.Done()

		kind, failed := Classify(resp, err)
		if !failed {
			result := crawler.FetchResult{
				URL:      url,
				Status:   resp.Status,
				Body:     resp.Body,
				Attempts: attempt,
				Duration: f.clock.Now().Sub(start),
			}
			f.emit(url, resp.Status, int64(len(resp.Body)), attempt, result.Duration)
			return result, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.FetchResult{}, fmt.Errorf("fetch %s: %w", url, ctxErr)
		}

		if !f.policy.ShouldRetry(kind, attempt) {
			f.emit(url, resp.Status, 0, attempt, f.clock.Now().Sub(start))
			return crawler.FetchResult{}, &crawler.FetchError{
				Kind:     kind,
				URL:      url,
				Status:   resp.Status,
				Attempts: attempt,
				Err:      err,
			}
		}

		delay := f.policy.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.String("kind", string(kind)),
			zap.Int("status", resp.Status),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return crawler.FetchResult{}, fmt.Errorf("fetch %s backoff: %w", url, err)
		}
	}
}

// Classify maps one attempt's outcome onto a failure kind. failed is false
// when the response is usable.
func Classify(resp crawler.Response, err error) (kind crawler.FetchErrorKind, failed bool) {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return crawler.FetchTimeout, true
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return crawler.FetchTimeout, true
		}
		return crawler.FetchNetworkError, true
	}
	switch {
	case resp.Status >= 500:
		return crawler.FetchServerError, true
	case resp.Status >= 400:
		return crawler.FetchClientError, true
	case resp.Status <= 0:
		return crawler.FetchNetworkError, true
	default:
		return "", false
	}
}

func (f *Fetcher) emit(url string, status int, bytes int64, attempts int, dur time.Duration) {
	f.emitter.Emit(progress.Event{
		RunID:       f.runID,
		TS:          f.clock.Now().UTC(),
		Stage:       progress.StageFetchDone,
		URL:         url,
		Bytes:       bytes,
		Attempts:    attempts,
		StatusClass: progress.ClassifyStatus(status),
		Dur:         dur,
	})
}
