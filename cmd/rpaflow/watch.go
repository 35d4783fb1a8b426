package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/pkg/cache"
	"github.com/rpaflow/rpaflow/pkg/measures"
	"github.com/rpaflow/rpaflow/pkg/pipeline"
	"github.com/rpaflow/rpaflow/pkg/watch"
)

var debounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <log.xes> [measure...]",
	Short: "Recompute measures whenever the log changes",
	Long: `Watch an XES log and recompute measures each time the file is written.
Results for an unchanged log are served from the result cache (Redis when
configured, memory otherwise). Stop with Ctrl+C.

Examples:
  rpaflow watch merged.xes
  rpaflow watch merged.xes relative_fails automation_rate -o out/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before recomputing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	names := args[1:]
	if len(names) == 0 {
		names = measures.Names()
	}
	for _, name := range names {
		if _, err := measures.KindOf(name); err != nil {
			return err
		}
	}

	mopts, ropts := measureSettings(cmd)
	uploadURI = asPrefix(uploadURI)
	c := resultCache(ctx, cache.NewMemory())
	defer c.Close()
	p := pipeline.New(app.cfg.Attributes,
		pipeline.WithLogger(app.logger),
		pipeline.WithCache(c),
	)

	recompute := func(ctx context.Context, path string) error {
		start := time.Now()
		prep, err := p.Run(ctx, path)
		if err != nil {
			return err
		}
		results, err := p.MeasureAll(ctx, prep, names, mopts)
		if err != nil {
			return err
		}
		for _, res := range results {
			path, err := saveResult(ctx, prep, res, ropts)
			if err != nil {
				return err
			}
			if err := upload(ctx, path); err != nil {
				return err
			}
		}
		printer().Done(fmt.Sprintf("%d measures for %d events in %s", len(results), prep.Enriched.Len(), time.Since(start).Round(time.Millisecond)))
		return nil
	}

	if err := recompute(ctx, args[0]); err != nil {
		return err
	}

	w, err := watch.New(recompute, watch.WithDebounce(debounce), watch.WithLogger(app.logger))
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Watch(args[0]); err != nil {
		return err
	}
	printer().Field("Watching", args[0])
	return w.Run(ctx)
}
