// Package cmd defines and implements the CLI commands for the carcrawl executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/carcatalog-crawler/internal/app"
	"github.com/JakeFAU/carcatalog-crawler/internal/discovery"
	"github.com/JakeFAU/carcatalog-crawler/internal/orchestrator"
)

// Crawl modes accepted by --mode.
const (
	modeType   = "type"
	modeResume = "resume"
)

type crawlFlags struct {
	mode        string
	category    string
	subcategory string
	resume      bool
	rateLimit   float64
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the catalog",
		Long: `Discovers categories from the site index and walks them down to model
pages, writing one merged record per make and model. With --resume (or
--mode resume) items finished by an earlier run are skipped.

Exit status is 0 when every item succeeded, 1 when any item failed or the
run hit crawl.max_duration, and 130 when interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options(cmd)
			if err != nil {
				return err
			}
			return runCrawl(cmd, opts)
		},
	}
	flags.register(cmd)
	return cmd
}

func (f *crawlFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", modeType, "crawl mode: type (walk categories) or resume (type plus --resume)")
	cmd.Flags().StringVar(&f.category, "category", "", "only crawl categories matching this label (requires --subcategory)")
	cmd.Flags().StringVar(&f.subcategory, "subcategory", "", "only crawl subcategories matching this label (requires --category)")
	cmd.Flags().BoolVar(&f.resume, "resume", false, "skip items completed by an earlier run")
	cmd.Flags().Float64Var(&f.rateLimit, "rate-limit", 0, "seconds between requests (overrides fetch.rate_limit_seconds)")
}

func (f crawlFlags) options(cmd *cobra.Command) (app.CrawlOptions, error) {
	var opts app.CrawlOptions
	switch f.mode {
	case modeType:
		opts.Resume = f.resume
	case modeResume:
		opts.Resume = true
	default:
		return opts, fmt.Errorf("invalid --mode %q: want %s or %s", f.mode, modeType, modeResume)
	}
	if (f.category == "") != (f.subcategory == "") {
		return opts, errors.New("--category and --subcategory must be given together")
	}
	opts.Scope = discovery.Scope{Category: f.category, Subcategory: f.subcategory}
	if cmd.Flags().Changed("rate-limit") {
		if f.rateLimit <= 0 {
			return opts, fmt.Errorf("--rate-limit must be > 0, got %v", f.rateLimit)
		}
		rate := f.rateLimit
		opts.RateLimitSeconds = &rate
	}
	return opts, nil
}

func runCrawl(cmd *cobra.Command, opts app.CrawlOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	cfg := appInstance.Config()

	signalCtx := cmd.Context()
	runCtx := signalCtx
	if cfg.Crawl.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(signalCtx, cfg.Crawl.MaxDuration)
		defer cancel()
	}

	crawl, err := appInstance.NewCrawl(runCtx, opts)
	if err != nil {
		return fmt.Errorf("set up crawl: %w", err)
	}

	var summary orchestrator.Summary
	g, gctx := errgroup.WithContext(runCtx)
	statusCtx, stopStatus := context.WithCancel(gctx)
	defer stopStatus()

	if addr := cfg.Status.Addr; addr != "" {
		server, err := appInstance.StatusServer(crawl)
		if err != nil {
			return fmt.Errorf("set up status server: %w", err)
		}
		g.Go(func() error {
			if err := server.ListenAndServe(statusCtx, addr); err != nil {
				logger.Warn("status server stopped", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stopStatus()
		var runErr error
		summary, runErr = crawl.Orchestrator.Run(runCtx)
		return runErr
	})
	runErr := g.Wait()

	printSummary(cmd.OutOrStdout(), summary)

	switch {
	case runErr != nil:
		return fmt.Errorf("crawl: %w", runErr)
	case signalCtx.Err() != nil:
		logger.Warn("crawl interrupted; rerun with --resume to continue", zap.String("run_id", crawl.RunID))
		return &exitError{code: ExitInterrupted}
	case summary.Interrupted:
		logger.Warn("crawl hit max duration; rerun with --resume to continue",
			zap.Duration("max_duration", cfg.Crawl.MaxDuration))
		return &exitError{code: ExitFailure}
	case summary.Failed > 0:
		return &exitError{code: ExitFailure, err: fmt.Errorf("%d item(s) failed", summary.Failed)}
	}
	return nil
}

func printSummary(w io.Writer, s orchestrator.Summary) {
	_, _ = fmt.Fprintf(w, "run %s\n", s.RunID)
	_, _ = fmt.Fprintf(w, "  discovered:          %d\n", s.Discovered)
	_, _ = fmt.Fprintf(w, "  done:                %d\n", s.Done)
	_, _ = fmt.Fprintf(w, "  skipped:             %d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "  failed:              %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  validation warnings: %d\n", s.ValidationWarnings)
	_, _ = fmt.Fprintf(w, "  records persisted:   %d\n", s.Persisted)
	_, _ = fmt.Fprintf(w, "  completeness:        %s\n", s.Completeness())
	for _, f := range s.Failures {
		_, _ = fmt.Fprintf(w, "  FAILED %s %s (%s): %s\n", f.Kind, f.URL, f.Reason, f.Error)
	}
}
