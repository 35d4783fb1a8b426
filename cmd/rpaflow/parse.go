package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
	"github.com/rpaflow/rpaflow/pkg/merge"
	"github.com/rpaflow/rpaflow/pkg/parser"
	"github.com/rpaflow/rpaflow/pkg/storage/s3"
	"github.com/rpaflow/rpaflow/pkg/telemetry"
	"github.com/rpaflow/rpaflow/pkg/tui"
	"github.com/rpaflow/rpaflow/pkg/xes"
)

// Parse and merge flags
var (
	outputFile  string
	policyFlag  string
	resources   []string
	versions    []string
	processName string
	uploadURI   string
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a vendor bot log into a canonical XES log",
	Long: `Parse a UiPath, BluePrism or Automation Anywhere log into a canonical
XES log. Inputs may be local paths or s3:// locations.

Examples:
  rpaflow parse uipath robot.log -o bot.xes
  rpaflow parse blueprism ./sessions -o bot.xes --resources BP-1,BP-2 --versions 1.0,1.1
  rpaflow parse aa s3://logs/aa/ -o bot.xes`,
}

var parseUiPathCmd = &cobra.Command{
	Use:   "uipath <log-file>",
	Short: "Parse a UiPath JSON-lines robot log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runParse(cmd, args[0], "uipath", false, func(ctx context.Context, path string, opts []parser.Option) (*model.Log, error) {
			return parser.ParseUiPathFile(ctx, path, app.cfg.UiPath, opts...)
		})
	},
}

var parseBluePrismCmd = &cobra.Command{
	Use:   "blueprism <csv-dir>",
	Short: "Parse a directory of BluePrism session CSV exports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.cfg.BluePrism
		if cmd.Flags().Changed("resources") {
			cfg.Resources = resources
		}
		if cmd.Flags().Changed("versions") {
			cfg.Versions = versions
		}
		if processName != "" {
			cfg.ProcessName = processName
		}
		return runParse(cmd, args[0], "blueprism", true, func(ctx context.Context, path string, opts []parser.Option) (*model.Log, error) {
			return parser.ParseBluePrism(ctx, path, cfg, opts...)
		})
	},
}

var parseAACmd = &cobra.Command{
	Use:     "aa <csv-dir>",
	Aliases: []string{"automationanywhere"},
	Short:   "Parse a directory of Automation Anywhere task logs",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.cfg.AutomationAnywhere
		if processName != "" {
			cfg.ProcessName = processName
		}
		return runParse(cmd, args[0], "automation_anywhere", true, func(ctx context.Context, path string, opts []parser.Option) (*model.Log, error) {
			return parser.ParseAutomationAnywhere(ctx, path, cfg, opts...)
		})
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <business.xes> <bot.xes>",
	Short: "Merge a bot log into a business log",
	Long: `Insert every bot event next to the business event it is correlated with.
Bot events follow a start business event and precede any other lifecycle.

Examples:
  rpaflow merge business.xes bot.xes -o merged.xes`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

func init() {
	for _, c := range []*cobra.Command{parseUiPathCmd, parseBluePrismCmd, parseAACmd} {
		c.Flags().StringVarP(&outputFile, "output", "o", "", "Output XES file (required)")
		c.Flags().StringVar(&policyFlag, "policy", "", "Bad record policy (strict, skip)")
		c.Flags().StringVar(&uploadURI, "upload", "", "Upload the output to an s3:// location")
		c.MarkFlagRequired("output")
		parseCmd.AddCommand(c)
	}
	parseBluePrismCmd.Flags().StringSliceVar(&resources, "resources", nil, "Resource per file, in file order")
	parseBluePrismCmd.Flags().StringSliceVar(&versions, "versions", nil, "Process version per file, in file order")
	for _, c := range []*cobra.Command{parseBluePrismCmd, parseAACmd} {
		c.Flags().StringVar(&processName, "process-name", "", "Process name for every event")
	}

	mergeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output XES file (required)")
	mergeCmd.Flags().StringVar(&uploadURI, "upload", "", "Upload the output to an s3:// location")
	mergeCmd.MarkFlagRequired("output")
}

type parseFunc func(ctx context.Context, path string, opts []parser.Option) (*model.Log, error)

func runParse(cmd *cobra.Command, input, vendor string, dir bool, parse parseFunc) (err error) {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx, span := telemetry.StartStage(ctx, "parse", telemetry.Source(input))
	defer func() { telemetry.EndStage(span, err) }()

	policy := app.cfg.Parse.Policy
	if policyFlag != "" {
		policy = parser.RecordPolicy(policyFlag)
	}

	local, cleanup, err := fetchInput(ctx, input, dir)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	var rejected errors.MultiError
	log, err := parse(ctx, local, []parser.Option{
		parser.WithLogger(app.logger),
		parser.WithPolicy(policy),
		parser.WithRejected(&rejected),
	})
	if err != nil {
		return err
	}
	if rejected.HasErrors() {
		app.logger.Warn("skipped malformed records", "vendor", vendor, "count", len(rejected.Errors))
		app.logger.Debug("skipped record details", "errors", rejected.Combined().Error())
	}
	span.SetAttributes(telemetry.Events(log.Len()))
	app.logger.Info("parsed log", "vendor", vendor, "events", log.Len())

	if err := xes.NewWriter(xes.WriterOptions{Logger: app.logger}).WriteFile(outputFile, log); err != nil {
		return err
	}
	if err := upload(ctx, outputFile); err != nil {
		return err
	}
	printer().PrintLogReport(logReport(input, outputFile, log, len(rejected.Errors), time.Since(start)))
	return nil
}

func runMerge(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx, span := telemetry.StartStage(ctx, "merge")
	defer func() { telemetry.EndStage(span, err) }()

	start := time.Now()
	// Both sides are read with the canonical keys: the trace id key only
	// applies to the merged output.
	reader := xes.NewReader(xes.DefaultKeys())
	logs := make([]*model.Log, 2)
	for i, path := range args {
		local, cleanup, err := fetchInput(ctx, path, false)
		if err != nil {
			return err
		}
		logs[i], err = reader.ReadFile(ctx, local)
		cleanup()
		if err != nil {
			return err
		}
	}

	cfg := app.cfg.Merge
	opts := []merge.Option{merge.WithLogger(app.logger)}
	if !quiet {
		opts = append(opts, merge.WithProgress(100, merge.ProgressFunc(tui.Progress(os.Stderr, "merging"))))
	}
	m := merge.New(cfg, opts...)
	merged, err := m.Merge(merge.PrepareBusiness(logs[0], cfg.Renames), merge.PrepareBot(logs[1]))
	if err != nil {
		return err
	}
	stats := m.Stats()
	span.SetAttributes(telemetry.Events(merged.Len()))
	app.logger.Info("merged logs", "business", stats.BusinessEvents, "bot", stats.BotEvents,
		"inserted", stats.Inserted, "dropped_bot", stats.DroppedBot, "unplaced_business", stats.UnplacedBusiness)

	w := xes.NewWriter(xes.WriterOptions{TraceIDKey: cfg.TraceIDKey, IncludeBot: true, Logger: app.logger})
	if err := w.WriteFile(outputFile, merged); err != nil {
		return err
	}
	if err := upload(ctx, outputFile); err != nil {
		return err
	}
	printer().PrintLogReport(logReport(strings.Join(args, " + "), outputFile, merged, stats.DroppedBot, time.Since(start)))
	return nil
}

// fetchInput downloads s3:// inputs to a temporary directory. dir selects
// prefix download for directory-based vendor logs.
func fetchInput(ctx context.Context, input string, dir bool) (string, func(), error) {
	if !s3.IsURI(input) {
		return input, func() {}, nil
	}
	c, err := storage(ctx)
	if err != nil {
		return "", nil, err
	}
	tmp, err := os.MkdirTemp("", "rpaflow-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(tmp) }

	var local string
	if dir {
		local, err = c.FetchPrefix(ctx, input, filepath.Join(tmp, "logs"), ".csv")
	} else {
		local, err = c.Fetch(ctx, input, tmp)
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return local, cleanup, nil
}

// upload copies a local output to --upload when set.
func upload(ctx context.Context, path string) error {
	if uploadURI == "" {
		return nil
	}
	c, err := storage(ctx)
	if err != nil {
		return err
	}
	uri, err := c.Upload(ctx, path, uploadURI)
	if err != nil {
		return err
	}
	app.logger.Info("uploaded", "path", path, "uri", uri)
	return nil
}

func logReport(source, output string, log *model.Log, skipped int, elapsed time.Duration) *tui.LogReport {
	ids, _ := log.CaseOrder()
	return &tui.LogReport{
		Source:     source,
		Output:     output,
		Events:     log.Len(),
		Traces:     len(ids),
		Activities: len(log.Activities()),
		Skipped:    skipped,
		Duration:   elapsed,
	}
}
