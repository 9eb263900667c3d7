package fake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepAdvancesTime(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := New(start)
	require.NoError(t, clk.Sleep(context.Background(), 2*time.Second))
	clk.Advance(time.Second)

	assert.Equal(t, start.Add(3*time.Second), clk.Now())
	assert.Equal(t, []time.Duration{2 * time.Second}, clk.Sleeps())
}

func TestSleepCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clk := New(time.Unix(0, 0))
	assert.ErrorIs(t, clk.Sleep(ctx, time.Second), context.Canceled)
	assert.Empty(t, clk.Sleeps())
}
