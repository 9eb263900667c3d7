package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/app"
	"github.com/JakeFAU/carcatalog-crawler/internal/config"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
	"github.com/JakeFAU/carcatalog-crawler/internal/discovery"
	"github.com/JakeFAU/carcatalog-crawler/internal/storage/local"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Records.Dir = filepath.Join(dir, "data")
	cfg.Archive.Dir = filepath.Join(dir, "errors")
	cfg.Checkpoint.Dir = filepath.Join(dir, "state")
	return cfg
}

func TestCheckpointBackends(t *testing.T) {
	t.Parallel()

	for _, backend := range []string{config.BackendFile, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			cfg.Checkpoint.Backend = backend
			a := app.New(cfg, zap.NewNop())
			ctx := context.Background()

			store, err := a.Checkpoint(ctx)
			require.NoError(t, err)
			again, err := a.Checkpoint(ctx)
			require.NoError(t, err)
			assert.Same(t, store, again)

			item := crawler.WorkItem{Kind: crawler.KindListing, URL: "https://cars.test/explore/suv/"}
			require.NoError(t, store.MarkDone(ctx, item, nil))
			require.NoError(t, a.Close(ctx))

			reopened := app.New(cfg, zap.NewNop())
			store, err = reopened.Checkpoint(ctx)
			require.NoError(t, err)
			assert.True(t, store.IsDone(item.Key()))
			require.NoError(t, reopened.Close(ctx))
		})
	}
}

func TestCheckpointUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Checkpoint.Backend = "redis"
	_, err := app.New(cfg, nil).Checkpoint(context.Background())
	require.Error(t, err)
}

func TestLocalServices(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a := app.New(cfg, zap.NewNop())
	ctx := context.Background()

	records, err := a.Records(ctx)
	require.NoError(t, err)
	assert.IsType(t, &local.RecordStore{}, records)

	archive, err := a.Archive(ctx)
	require.NoError(t, err)
	uri, err := archive.Save(ctx, "https://cars.test/bmw/2023-x5/", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Contains(t, uri, cfg.Archive.Dir)

	notifier, err := a.Notifier(ctx)
	require.NoError(t, err)
	assert.Nil(t, notifier)
}

func TestNewCrawlWiresStatusServer(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a := app.New(cfg, zap.NewNop())
	ctx := context.Background()
	t.Cleanup(func() { _ = a.Close(ctx) })

	zero := 0.0
	_, err := a.NewCrawl(ctx, app.CrawlOptions{RateLimitSeconds: &zero})
	require.ErrorContains(t, err, "rate limit override must be > 0")

	rate := 0.001
	c, err := a.NewCrawl(ctx, app.CrawlOptions{
		Scope:            discovery.Scope{Category: "suv", Subcategory: "compact"},
		Resume:           true,
		RateLimitSeconds: &rate,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, c.RunID)
	assert.Equal(t, c.RunID, c.Orchestrator.Snapshot().RunID)

	srv, err := a.StatusServer(c)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), c.RunID)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTracer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := testConfig(t)
	tracer, err := app.New(cfg, zap.NewNop()).Tracer(ctx)
	require.NoError(t, err)
	assert.Nil(t, tracer)

	cfg.Tracing.Enabled = true
	a := app.New(cfg, zap.NewNop())
	tracer, err = a.Tracer(ctx)
	require.NoError(t, err)
	require.NotNil(t, tracer)
	_, span := tracer.Start(ctx, "crawl.root")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, a.Close(ctx))
}
