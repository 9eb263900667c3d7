package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/carcatalog-crawler/internal/api"
	"github.com/JakeFAU/carcatalog-crawler/internal/app"
	"github.com/JakeFAU/carcatalog-crawler/internal/checkpoint"
	"github.com/JakeFAU/carcatalog-crawler/internal/config"
	"github.com/JakeFAU/carcatalog-crawler/internal/logging"
	"github.com/JakeFAU/carcatalog-crawler/internal/storage/local"
)

// Exit codes returned by Execute.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

const closeTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the set of services commands use. Tests inject their own.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Checkpoint(ctx context.Context) (*checkpoint.Store, error)
	LocalRecords() (*local.RecordStore, error)
	NewCrawl(ctx context.Context, opts app.CrawlOptions) (*app.Crawl, error)
	StatusServer(c *app.Crawl) (*api.Server, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(_ context.Context, configPath string) (App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Fields:      []zap.Field{zap.String("service", app.ServiceName)},
	})
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger), nil
}

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFailure
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "carcrawl",
		Short: "Crawls a car catalog into per-model JSON records.",
		Long: `carcrawl walks a car catalog site from its index through categories,
subcategories, and listings down to model pages, merging what it finds into
one JSON record per make and model. Progress is checkpointed so an
interrupted crawl can resume where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return closeApp(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML, or JSON)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newCheckpointCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

// closeApp shuts the App down. It is also called after a failed RunE, which
// cobra does not follow with the post-run hook.
func closeApp(ctx context.Context) error {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	err := appInstance.Close(closeCtx)
	_ = appInstance.Logger().Sync()
	return err
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI and returns the process exit code. SIGINT and SIGTERM
// cancel the command context; a crawl stops after the item in flight.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, newRootCmd(), os.Args[1:])
}

func execute(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	executed, err := root.ExecuteContextC(ctx)
	if err != nil && executed != nil {
		if cerr := closeApp(executed.Context()); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != nil {
			root.PrintErrln("Error:", err)
		}
	}
	return exitCode(err)
}
