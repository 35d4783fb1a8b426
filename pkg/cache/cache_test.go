package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/pkg/colorize"
	"github.com/rpaflow/rpaflow/pkg/measures"
)

func sampleResult() *measures.Result {
	return &measures.Result{
		Measure: measures.RelativeFails,
		Title:   "Relative fails",
		Kind:    measures.KindGraphical,
		Nodes: []measures.Node{
			{Activity: "A", Label: "A\n30.00 %", Color: "#ffff00", Value: colorize.Num(0.3), Intensity: 1},
			{Activity: "B", Label: "B\nno data", Color: "#808080", Value: colorize.Mark(colorize.NoData)},
		},
	}
}

func TestKey(t *testing.T) {
	opts := measures.DefaultOptions()
	assert.Equal(t, "abc:automation_rate:r2", Key("abc", measures.AutomationRate, opts))
	opts.RoundDecimals = 4
	assert.NotEqual(t, Key("abc", measures.AutomationRate, measures.DefaultOptions()), Key("abc", measures.AutomationRate, opts))
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "d1:relative_fails:r2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "d1:relative_fails:r2", sampleResult()))
	require.NoError(t, m.Set(ctx, "d1:automation_rate:r2", sampleResult()))
	require.NoError(t, m.Set(ctx, "d10:automation_rate:r2", sampleResult()))

	got, ok, err := m.Get(ctx, "d1:relative_fails:r2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleResult(), got)

	require.NoError(t, m.Invalidate(ctx, "d1"))
	assert.Equal(t, 1, m.Len(), "only the other digest survives")
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}
	require.NoError(t, c.Set(ctx, "k", sampleResult()))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("RPAFLOW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RPAFLOW_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	cfg := DefaultRedisConfig(addr)
	cfg.Prefix = "rpaflow:test:" + time.Now().Format("150405.000") + ":"
	c, err := NewRedisCache(ctx, cfg)
	require.NoError(t, err)
	defer c.Close()

	key := Key("digest", measures.RelativeFails, measures.DefaultOptions())
	require.NoError(t, c.Set(ctx, key, sampleResult()))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleResult(), got)

	require.NoError(t, c.Invalidate(ctx, "digest"))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
