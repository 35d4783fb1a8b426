// rpaflow - RPA log analysis: vendor log parsing, business/bot log merging
// and per-activity measures on directly-follows graphs.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/pkg/cache"
	"github.com/rpaflow/rpaflow/pkg/config"
	"github.com/rpaflow/rpaflow/pkg/errors"
	"github.com/rpaflow/rpaflow/pkg/pipeline"
	"github.com/rpaflow/rpaflow/pkg/storage/s3"
	"github.com/rpaflow/rpaflow/pkg/telemetry"
	"github.com/rpaflow/rpaflow/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
	verbose    bool
	quiet      bool
)

// app is the state shared by every command, set up before a command runs.
var app struct {
	cfg      *config.Config
	manager  *config.Manager
	logger   *slog.Logger
	shutdown func(context.Context) error
	storage  *s3.Client
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if verbose {
			printStack(os.Stderr, err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rpaflow",
	Short: "rpaflow - analyze RPA bot logs together with business logs",
	Long: `rpaflow parses UiPath, BluePrism and Automation Anywhere logs into a
canonical XES event log, merges bot logs into business logs, and computes
measures that decorate the directly-follows graph or summarize paths.

Configuration is read from ~/.rpaflow/config.yaml, ./.rpaflow.yaml, .env
and RPAFLOW_* environment variables; flags override all of them.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app.shutdown != nil {
			return app.shutdown(context.Background())
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Additional config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Hide progress bars and reports")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(measureCmd)
	rootCmd.AddCommand(measuresCmd)
	rootCmd.AddCommand(dfgCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads configuration, builds the logger and starts telemetry.
func setup(cmd *cobra.Command, args []string) error {
	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithFile(configFile))
	}
	m := config.NewManager(opts...)
	if err := m.Load(); err != nil {
		return err
	}
	app.cfg = m.Get()
	app.manager = m

	if logLevel != "" {
		app.cfg.Log.Level = logLevel
	}
	if verbose {
		app.cfg.Log.Level = "debug"
	}
	if logFormat != "" {
		app.cfg.Log.Format = logFormat
	}
	app.logger = newLogger(app.cfg.Log)
	slog.SetDefault(app.logger)
	app.logger.Debug("configuration loaded", "paths", m.GetPaths())

	shutdown, err := telemetry.Init(cmd.Context(), app.cfg.Telemetry)
	if err != nil {
		app.logger.Warn("telemetry disabled", "error", err)
	}
	app.shutdown = shutdown
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, hopts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, hopts))
}

// printStack writes where a coded error was raised.
func printStack(w io.Writer, err error) {
	var e *errors.Error
	if stderrors.As(err, &e) {
		fmt.Fprint(w, e.FormatStack())
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// storage returns the S3 client, creating it on first use.
func storage(ctx context.Context) (*s3.Client, error) {
	if app.storage != nil {
		return app.storage, nil
	}
	c, err := s3.NewClient(ctx, app.cfg.Storage)
	if err != nil {
		return nil, err
	}
	app.storage = c
	return c, nil
}

// lazyFetcher defers S3 client creation until an s3:// input is seen.
type lazyFetcher struct{}

func (lazyFetcher) Fetch(ctx context.Context, uri, dir string) (string, error) {
	c, err := storage(ctx)
	if err != nil {
		return "", err
	}
	return c.Fetch(ctx, uri, dir)
}

// resultCache connects to Redis when configured. fallback is used when
// Redis is not configured or unreachable.
func resultCache(ctx context.Context, fallback cache.Cache) cache.Cache {
	if !app.cfg.Cache.Enabled() {
		return fallback
	}
	c, err := cache.NewRedisCache(ctx, app.cfg.Cache.Redis)
	if err != nil {
		app.logger.Warn("result cache unavailable", "error", err)
		return fallback
	}
	return c
}

// progress returns the progress bar factory, or nil when quiet.
func progress() pipeline.ProgressFactory {
	if quiet {
		return nil
	}
	return func(stage string) func(done, total int) {
		return tui.Progress(os.Stderr, stage)
	}
}

func newPipeline(c cache.Cache) *pipeline.Pipeline {
	return pipeline.New(app.cfg.Attributes,
		pipeline.WithLogger(app.logger),
		pipeline.WithCache(c),
		pipeline.WithFetcher(lazyFetcher{}),
		pipeline.WithProgress(progress()),
	)
}

func printer() *tui.Printer {
	if quiet {
		return tui.New(io.Discard)
	}
	return tui.New(os.Stdout)
}
