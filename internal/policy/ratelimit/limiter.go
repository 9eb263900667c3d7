// Package ratelimit implements the shared pacing gate that spaces fetches
// against the single target host.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/carcatalog-crawler/internal/clock/system"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Gate enforces a minimum interval between the end of one fetch and the start
// of the next. Callers bracket each fetch with Wait and Done.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	limiter  *rate.Limiter
	clock    crawler.Clock
	sleep    SleepFunc
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock swaps the time source, typically for a fake clock in tests.
func WithClock(clock crawler.Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithSleep swaps the blocking primitive.
func WithSleep(sleep SleepFunc) Option {
	return func(g *Gate) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// New creates a Gate. A non-positive interval disables pacing.
func New(interval time.Duration, opts ...Option) *Gate {
	clk := system.New()
	g := &Gate{
		interval: interval,
		clock:    clk,
		sleep:    clk.Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.limiter = g.newLimiter()
	return g
}

// Interval returns the configured minimum gap.
func (g *Gate) Interval() time.Duration {
	return g.interval
}

// Wait blocks until the next fetch may start.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	now := g.clock.Now()
	reservation := g.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	g.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	if err := g.sleep(ctx, delay); err != nil {
		g.mu.Lock()
		reservation.CancelAt(g.clock.Now())
		g.mu.Unlock()
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Done records the end of a fetch; the next Wait is measured from here.
func (g *Gate) Done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiter = g.newLimiter()
	g.limiter.AllowN(g.clock.Now(), 1)
}

func (g *Gate) newLimiter() *rate.Limiter {
	if g.interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(g.interval), 1)
}
