package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carcatalog-crawler/internal/clock/fake"
)

func newFakeGate(interval time.Duration) (*Gate, *fake.Clock) {
	clk := fake.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(interval, WithClock(clk), WithSleep(clk.Sleep)), clk
}

func TestGateFirstWaitIsImmediate(t *testing.T) {
	t.Parallel()

	g, clk := newFakeGate(2 * time.Second)
	require.NoError(t, g.Wait(context.Background()))
	assert.Empty(t, clk.Sleeps())
}

func TestGateMeasuresFromEndOfFetch(t *testing.T) {
	t.Parallel()

	g, clk := newFakeGate(2 * time.Second)
	ctx := context.Background()

	require.NoError(t, g.Wait(ctx))
	clk.Advance(5 * time.Second) // a slow fetch
	g.Done()

	require.NoError(t, g.Wait(ctx))
	sleeps := clk.Sleeps()
	require.Len(t, sleeps, 1)
	assert.InDelta(t, float64(2*time.Second), float64(sleeps[0]), float64(time.Millisecond))
}

func TestGateSkipsSleepWhenIntervalAlreadyElapsed(t *testing.T) {
	t.Parallel()

	g, clk := newFakeGate(2 * time.Second)
	ctx := context.Background()

	require.NoError(t, g.Wait(ctx))
	g.Done()
	clk.Advance(3 * time.Second) // parsing took longer than the interval

	require.NoError(t, g.Wait(ctx))
	assert.Empty(t, clk.Sleeps())
}

func TestGatePartialWait(t *testing.T) {
	t.Parallel()

	g, clk := newFakeGate(2 * time.Second)
	ctx := context.Background()

	g.Done()
	clk.Advance(500 * time.Millisecond)
	require.NoError(t, g.Wait(ctx))

	sleeps := clk.Sleeps()
	require.Len(t, sleeps, 1)
	assert.InDelta(t, float64(1500*time.Millisecond), float64(sleeps[0]), float64(time.Millisecond))
}

func TestGateCanceledWait(t *testing.T) {
	t.Parallel()

	g, _ := newFakeGate(2 * time.Second)
	g.Done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGateDisabled(t *testing.T) {
	t.Parallel()

	g, clk := newFakeGate(0)
	for range 3 {
		require.NoError(t, g.Wait(context.Background()))
		g.Done()
	}
	assert.Empty(t, clk.Sleeps())
}
