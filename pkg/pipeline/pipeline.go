// Package pipeline runs the batch stages that turn a canonical event log
// into measure results: load, interval conversion, enrichment, graph
// discovery and measurement.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/cache"
	"github.com/rpaflow/rpaflow/pkg/dfg"
	"github.com/rpaflow/rpaflow/pkg/enrich"
	"github.com/rpaflow/rpaflow/pkg/errors"
	"github.com/rpaflow/rpaflow/pkg/interval"
	"github.com/rpaflow/rpaflow/pkg/measures"
	"github.com/rpaflow/rpaflow/pkg/render"
	"github.com/rpaflow/rpaflow/pkg/storage/s3"
	"github.com/rpaflow/rpaflow/pkg/telemetry"
	"github.com/rpaflow/rpaflow/pkg/xes"
)

// Fetcher downloads remote inputs into a local directory.
type Fetcher interface {
	Fetch(ctx context.Context, uri, dir string) (string, error)
}

// ProgressFactory returns the progress callback for a named stage, or nil.
type ProgressFactory func(stage string) func(done, total int)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger passed to every stage.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCache stores measure results.
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.cache = c
		}
	}
}

// WithFetcher resolves s3:// inputs.
func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithProgress reports enrichment and per-path measure progress.
func WithProgress(f ProgressFactory) Option {
	return func(p *Pipeline) { p.progress = f }
}

// Pipeline holds the stage configuration. It is safe for concurrent use
// once built.
type Pipeline struct {
	keys     xes.Keys
	logger   *slog.Logger
	cache    cache.Cache
	fetcher  Fetcher
	progress ProgressFactory
}

// New creates a pipeline reading logs with keys.
func New(keys xes.Keys, opts ...Option) *Pipeline {
	p := &Pipeline{keys: keys, logger: slog.Default(), cache: cache.Nop{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) stageProgress(stage string) func(done, total int) {
	if p.progress == nil {
		return nil
	}
	return p.progress(stage)
}

// Prepared is a log ready to be measured.
type Prepared struct {
	Source string
	// Digest identifies the loaded log's content.
	Digest   string
	Log      *model.Log
	Enriched *model.Log
	Graph    *dfg.Graph
	Mode     interval.Mode
	Dropped  int
}

// Traces returns the number of traces in the enriched table.
func (p *Prepared) Traces() int {
	ids, _ := p.Enriched.CaseOrder()
	return len(ids)
}

// Load reads a canonical XES log from a local path or an s3:// uri.
func (p *Pipeline) Load(ctx context.Context, path string) (log *model.Log, err error) {
	ctx, span := telemetry.StartStage(ctx, "load", telemetry.Source(path))
	defer func() { telemetry.EndStage(span, err) }()

	local, cleanup, err := p.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	log, err = xes.NewReader(p.keys).ReadFile(ctx, local)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(telemetry.Events(log.Len()))
	p.logger.Info("loaded log", "source", path, "events", log.Len())
	return log, nil
}

func (p *Pipeline) resolve(ctx context.Context, path string) (string, func(), error) {
	if !s3.IsURI(path) {
		return path, func() {}, nil
	}
	if p.fetcher == nil {
		return "", nil, errors.Newf(errors.CodeInvalidArgument, "no object storage configured for %q", path)
	}
	dir, err := os.MkdirTemp("", "rpaflow-*")
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CodeStorage, "creating download directory")
	}
	cleanup := func() { os.RemoveAll(dir) }
	local, err := p.fetcher.Fetch(ctx, path, dir)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return filepath.Clean(local), cleanup, nil
}

// Prepare converts log to intervals, enriches it and discovers its graph.
func (p *Pipeline) Prepare(ctx context.Context, source string, log *model.Log) (*Prepared, error) {
	ctx, span := telemetry.StartStage(ctx, "prepare", telemetry.Source(source), telemetry.Events(log.Len()))
	defer span.End()

	out := &Prepared{Source: source, Digest: log.Digest(), Log: log}

	_, ispan := telemetry.StartStage(ctx, "interval")
	conv := interval.NewConverter(p.logger).Convert(log)
	out.Mode, out.Dropped = conv.Mode, conv.Dropped
	ispan.SetAttributes(telemetry.Events(conv.Log.Len()))
	telemetry.EndStage(ispan, nil)

	_, espan := telemetry.StartStage(ctx, "enrich")
	opts := []enrich.Option{enrich.WithLogger(p.logger)}
	if fn := p.stageProgress("enriching"); fn != nil {
		opts = append(opts, enrich.WithProgress(100, fn))
	}
	out.Enriched = enrich.New(opts...).Enrich(conv.Log)
	espan.SetAttributes(telemetry.Traces(out.Traces()))
	telemetry.EndStage(espan, nil)

	_, dspan := telemetry.StartStage(ctx, "dfg")
	out.Graph = dfg.Discover(out.Enriched)
	telemetry.EndStage(dspan, nil)

	p.logger.Debug("prepared log", "source", source, "mode", string(out.Mode), "dropped", out.Dropped, "edges", len(out.Graph.Edges))
	return out, nil
}

// Run loads and prepares path.
func (p *Pipeline) Run(ctx context.Context, path string) (*Prepared, error) {
	log, err := p.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return p.Prepare(ctx, path, log)
}

// Measure computes one measure, consulting the cache first. Cache failures
// are logged and the measure is computed anyway.
func (p *Pipeline) Measure(ctx context.Context, prep *Prepared, name string, opts measures.Options) (res *measures.Result, err error) {
	ctx, span := telemetry.StartStage(ctx, "measure", telemetry.Measure(name))
	defer func() { telemetry.EndStage(span, err) }()

	if _, err := measures.KindOf(name); err != nil {
		return nil, err
	}
	key := cache.Key(prep.Digest, name, opts)
	if cached, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("cache lookup failed", "measure", name, "error", err)
	} else if ok {
		p.logger.Debug("cache hit", "measure", name)
		return cached, nil
	}

	if opts.Logger == nil {
		opts.Logger = p.logger
	}
	if opts.Progress == nil {
		opts.Progress = p.stageProgress(name)
	}
	res, err = measures.Apply(name, prep.Enriched, opts)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, res); err != nil {
		p.logger.Warn("cache store failed", "measure", name, "error", err)
	}
	return res, nil
}

// MeasureAll computes several measures concurrently over the same
// prepared log. Results keep the order of names. Per-path progress is not
// reported.
func (p *Pipeline) MeasureAll(ctx context.Context, prep *Prepared, names []string, opts measures.Options) ([]*measures.Result, error) {
	opts.Progress = func(int, int) {}
	results := make([]*measures.Result, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			res, err := p.Measure(ctx, prep, name, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Invalidate drops cached results for prep.
func (p *Pipeline) Invalidate(ctx context.Context, prep *Prepared) error {
	return p.cache.Invalidate(ctx, prep.Digest)
}

// Decoration turns a graphical result into node labels and colors for the
// graph renderer. Tabular results give an empty decoration.
func Decoration(res *measures.Result) render.Decoration {
	if res == nil || res.Kind != measures.KindGraphical {
		return render.Decoration{}
	}
	return render.Decoration{Labels: res.Labels(), Colors: res.Colors()}
}
