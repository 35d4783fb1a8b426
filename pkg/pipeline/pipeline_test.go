package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/cache"
	"github.com/rpaflow/rpaflow/pkg/errors"
	"github.com/rpaflow/rpaflow/pkg/interval"
	"github.com/rpaflow/rpaflow/pkg/measures"
	"github.com/rpaflow/rpaflow/pkg/xes"
)

var t0 = time.Date(2021, 2, 1, 8, 0, 0, 0, time.UTC)

func fixture(t *testing.T) string {
	t.Helper()
	var events []model.Event
	add := func(caseID, act string, start, end int, bot, success bool) {
		for _, lc := range []struct {
			sec int
			lc  model.Lifecycle
		}{{start, model.LifecycleStart}, {end, model.LifecycleComplete}} {
			events = append(events, model.Event{
				CaseID:    caseID,
				Activity:  act,
				EventID:   caseID + act + string(lc.lc),
				Timestamp: t0.Add(time.Duration(lc.sec) * time.Second),
				Lifecycle: lc.lc,
				Success:   success,
				Bot:       bot,
			})
		}
	}
	add("T1", "A", 0, 10, false, true)
	add("T1", "B", 10, 30, true, true)
	add("T2", "A", 100, 105, false, true)
	add("T2", "C", 105, 120, true, false)

	path := filepath.Join(t.TempDir(), "log.xes")
	require.NoError(t, xes.NewWriter(xes.WriterOptions{IncludeBot: true}).WriteFile(path, model.NewLog(events)))
	return path
}

func TestRun(t *testing.T) {
	var mu sync.Mutex
	stages := map[string]int{}
	p := New(xes.DefaultKeys(), WithProgress(func(stage string) func(done, total int) {
		return func(done, total int) {
			mu.Lock()
			stages[stage]++
			mu.Unlock()
		}
	}))

	prep, err := p.Run(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Equal(t, interval.ModePaired, prep.Mode)
	assert.Zero(t, prep.Dropped)
	assert.Equal(t, 8, prep.Log.Len())
	assert.Equal(t, 4, prep.Enriched.Len())
	assert.Equal(t, 2, prep.Traces())
	assert.Equal(t, prep.Log.Digest(), prep.Digest)
	assert.Equal(t, int64(2), prep.Graph.Activities["A"])
	assert.Equal(t, 1, stages["enriching"], "one final progress call for two traces")
}

func TestMeasureUsesCache(t *testing.T) {
	mem := cache.NewMemory()
	p := New(xes.DefaultKeys(), WithCache(mem))
	ctx := context.Background()
	prep, err := p.Run(ctx, fixture(t))
	require.NoError(t, err)

	first, err := p.Measure(ctx, prep, measures.RelativeFails, measures.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len())

	second, err := p.Measure(ctx, prep, measures.RelativeFails, measures.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, mem.Len())

	require.NoError(t, p.Invalidate(ctx, prep))
	assert.Zero(t, mem.Len())
}

func TestMeasureUndefined(t *testing.T) {
	p := New(xes.DefaultKeys())
	prep, err := p.Run(context.Background(), fixture(t))
	require.NoError(t, err)
	_, err = p.Measure(context.Background(), prep, "nope", measures.DefaultOptions())
	assert.True(t, errors.IsCode(err, errors.CodeUndefinedMeasure))
}

func TestMeasureAll(t *testing.T) {
	p := New(xes.DefaultKeys())
	ctx := context.Background()
	prep, err := p.Run(ctx, fixture(t))
	require.NoError(t, err)

	names := measures.Names()
	results, err := p.MeasureAll(ctx, prep, names, measures.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, results, len(names))
	for i, res := range results {
		assert.Equal(t, names[i], res.Measure)
	}

	_, err = p.MeasureAll(ctx, prep, []string{measures.AutomationRate, "nope"}, measures.DefaultOptions())
	assert.Error(t, err)
}

type fakeFetcher struct{ src string }

func (f fakeFetcher) Fetch(_ context.Context, _, dir string) (string, error) {
	data, err := os.ReadFile(f.src)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, "log.xes")
	return dst, os.WriteFile(dst, data, 0o644)
}

func TestLoadFromObjectStorage(t *testing.T) {
	src := fixture(t)
	_, err := New(xes.DefaultKeys()).Load(context.Background(), "s3://logs/log.xes")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))

	log, err := New(xes.DefaultKeys(), WithFetcher(fakeFetcher{src: src})).Load(context.Background(), "s3://logs/log.xes")
	require.NoError(t, err)
	assert.Equal(t, 8, log.Len())
}

func TestDecoration(t *testing.T) {
	p := New(xes.DefaultKeys())
	ctx := context.Background()
	prep, err := p.Run(ctx, fixture(t))
	require.NoError(t, err)

	res, err := p.Measure(ctx, prep, measures.RelativeFails, measures.DefaultOptions())
	require.NoError(t, err)
	deco := Decoration(res)
	assert.Equal(t, "C\nonly fails", deco.Labels["C"])
	assert.NotEmpty(t, deco.Colors["C"])

	tab, err := p.Measure(ctx, prep, measures.AutomationRate, measures.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, Decoration(tab).Labels)
}
