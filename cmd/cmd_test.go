package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/clock/fake"
	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
	"github.com/JakeFAU/carcatalog-crawler/internal/storage/local"
)

type testEnv struct {
	dir        string
	configPath string
}

func (e testEnv) recordsDir() string    { return filepath.Join(e.dir, "data") }
func (e testEnv) checkpointDir() string { return filepath.Join(e.dir, "state") }

// newTestEnv writes a config file pointing every store into a temp dir.
func newTestEnv(t *testing.T, baseURL string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{dir: dir, configPath: filepath.Join(dir, "carcrawl.yaml")}
	cfg := fmt.Sprintf(`site:
  base_url: %q
fetch:
  rate_limit_seconds: 0.001
  timeout: 2s
  max_attempts: 1
records:
  backend: local
  dir: %q
checkpoint:
  backend: file
  dir: %q
archive:
  dir: %q
logging:
  development: false
`, baseURL, env.recordsDir(), env.checkpointDir(), filepath.Join(dir, "errors"))
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))
	return env
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(ctx context.Context, t *testing.T, env testEnv, args ...string) result {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	code := execute(ctx, root, append([]string{"--config", env.configPath}, args...))
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestCrawlFlagOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantErr    string
		wantResume bool
		wantRate   *float64
		wantScope  [2]string
	}{
		{name: "defaults"},
		{name: "resume flag", args: []string{"--resume"}, wantResume: true},
		{name: "resume mode implies resume", args: []string{"--mode", "resume"}, wantResume: true},
		{name: "unknown mode", args: []string{"--mode", "make"}, wantErr: "invalid --mode"},
		{
			name:      "scope pair",
			args:      []string{"--category", "SUV", "--subcategory", "Compact"},
			wantScope: [2]string{"SUV", "Compact"},
		},
		{name: "category alone", args: []string{"--category", "SUV"}, wantErr: "must be given together"},
		{name: "subcategory alone", args: []string{"--subcategory", "Compact"}, wantErr: "must be given together"},
		{name: "rate override", args: []string{"--rate-limit", "0.25"}, wantRate: ptr(0.25)},
		{name: "zero rate", args: []string{"--rate-limit", "0"}, wantErr: "--rate-limit must be > 0"},
		{name: "negative rate", args: []string{"--rate-limit", "-1"}, wantErr: "--rate-limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var flags crawlFlags
			cmd := &cobra.Command{}
			flags.register(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))

			opts, err := flags.options(cmd)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantResume, opts.Resume)
			assert.Equal(t, tt.wantScope[0], opts.Scope.Category)
			assert.Equal(t, tt.wantScope[1], opts.Scope.Subcategory)
			assert.Equal(t, tt.wantRate, opts.RateLimitSeconds)
		})
	}
}

func ptr(v float64) *float64 { return &v }

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitOK, exitCode(nil))
	assert.Equal(t, ExitFailure, exitCode(errors.New("boom")))
	assert.Equal(t, ExitInterrupted, exitCode(&exitError{code: ExitInterrupted}))
	assert.Equal(t, ExitInterrupted, exitCode(fmt.Errorf("wrapped: %w", &exitError{code: ExitInterrupted})))
	assert.Equal(t, ExitFailure, exitCode(errors.Join(&exitError{code: ExitFailure}, errors.New("close"))))
}

func TestUnknownConfigFileFails(t *testing.T) {
	t.Parallel()

	env := testEnv{dir: t.TempDir()}
	env.configPath = filepath.Join(env.dir, "missing.yaml")

	res := run(context.Background(), t, env, "checkpoint", "status")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "failed to initialize application services")
}

func seedCheckpoint(t *testing.T, dir string, items ...crawler.WorkItem) {
	t.Helper()
	ctx := context.Background()
	backend, err := local.NewCheckpointFile(local.Config{BaseDir: dir})
	require.NoError(t, err)
	store, err := checkpoint.Open(ctx, backend, fake.New(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	for _, item := range items {
		require.NoError(t, store.MarkDone(ctx, item, nil))
	}
	require.NoError(t, store.Close())
}

func TestCheckpointStatusAndReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "https://cars.test/")
	seedCheckpoint(t, env.checkpointDir(),
		crawler.WorkItem{Kind: crawler.KindRoot, URL: "https://cars.test/"},
		crawler.WorkItem{Kind: crawler.KindCategory, URL: "https://cars.test/explore/suv/"},
		crawler.WorkItem{Kind: crawler.KindModel, URL: "https://cars.test/bmw/2024-x5/"},
	)

	res := run(ctx, t, env, "checkpoint", "status", "--json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var stats checkpoint.Stats
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 1, stats.ByKind[crawler.KindModel])

	res = run(ctx, t, env, "checkpoint", "status")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "completed: 3")
	assert.Contains(t, res.stdout, "backend:   file")

	res = run(ctx, t, env, "checkpoint", "reset")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "--yes")

	res = run(ctx, t, env, "checkpoint", "reset", "--yes")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "3 completed items discarded")

	res = run(ctx, t, env, "checkpoint", "status", "--json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	assert.Zero(t, stats.Completed)
}

func TestExport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, "https://cars.test/")

	records, err := local.NewRecordStore(local.Config{BaseDir: env.recordsDir()})
	require.NoError(t, err)
	require.NoError(t, records.Write(ctx, crawler.ModelRecord{
		Make:  "bmw",
		Model: "x5",
		Years: map[string]crawler.YearRecord{
			"2024": {
				MainImages: []string{"https://cars.test/img/bmw-x5-1920x1080.jpg"},
				Trims:      []crawler.TrimRecord{{Name: "xDrive40i"}, {Name: "M60i"}},
			},
		},
	}))

	out := filepath.Join(env.dir, "records.parquet")
	res := run(ctx, t, env, "export", "--out", out)
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "wrote 2 rows")
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestCrawlRootUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	env := newTestEnv(t, srv.URL+"/")

	res := run(context.Background(), t, env, "crawl")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "site index unavailable")
	assert.Contains(t, res.stdout, "completeness:")
}

func TestCrawlInterruptedBeforeStart(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	env := newTestEnv(t, srv.URL+"/")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := run(ctx, t, env, "crawl")
	assert.Equal(t, ExitInterrupted, res.code)
	assert.Empty(t, res.stderr)
	assert.Zero(t, hits.Load())
}

func TestCrawlRejectsBadFlags(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "https://cars.test/")
	res := run(context.Background(), t, env, "crawl", "--category", "SUV")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "--category and --subcategory")
}
