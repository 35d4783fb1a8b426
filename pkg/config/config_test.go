package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/pkg/errors"
	"github.com/rpaflow/rpaflow/pkg/parser"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaults(t *testing.T) {
	m := NewManager(WithHome(t.TempDir()), WithWorkDir(t.TempDir()))
	require.NoError(t, m.Load())
	c := m.Get()

	assert.Equal(t, parser.PolicyStrict, c.Parse.Policy)
	assert.Equal(t, "DisplayName", c.UiPath.ConceptName)
	assert.True(t, c.UiPath.TraceLevelOnly)
	assert.Equal(t, 2, c.Measures.RoundDecimals)
	assert.Equal(t, "caseId", c.Merge.TraceIDKey)
	assert.False(t, c.Cache.Enabled())
	assert.False(t, c.Telemetry.Enabled)
	assert.Empty(t, m.GetPaths())
}

func TestLayering(t *testing.T) {
	home, cwd := t.TempDir(), t.TempDir()
	write(t, filepath.Join(home, ".rpaflow", "config.yaml"), `
measures:
  round_decimals: 4
  max_edges: 50
cache:
  redis:
    ttl: 1h
uipath:
  lifecycle_values: [Faulted, Running, Done]
`)
	write(t, filepath.Join(cwd, ".rpaflow.yaml"), `
measures:
  round_decimals: 3
parse:
  policy: skip
`)
	write(t, filepath.Join(cwd, ".env"), "RPAFLOW_MAX_EDGES=20\nRPAFLOW_REDIS_ADDR=localhost:6379\n")
	t.Cleanup(func() { os.Unsetenv("RPAFLOW_REDIS_ADDR") })
	t.Setenv("RPAFLOW_MAX_EDGES", "10")
	t.Setenv("RPAFLOW_OTLP_ENDPOINT", "collector:4317")

	m := NewManager(WithHome(home), WithWorkDir(cwd))
	require.NoError(t, m.Load())
	c := m.Get()

	assert.Equal(t, 3, c.Measures.RoundDecimals, "project file overrides user file")
	assert.Equal(t, 10, c.Measures.MaxEdges, "environment overrides .env")
	assert.True(t, c.Measures.ShowEdgeLabels, "absent keys keep defaults")
	assert.Equal(t, parser.PolicySkip, c.Parse.Policy)
	assert.Equal(t, time.Hour, c.Cache.Redis.TTL)
	assert.Equal(t, "rpaflow:measures:", c.Cache.Redis.Prefix)
	assert.Equal(t, []string{"Faulted", "Running", "Done"}, c.UiPath.LifecycleValues)
	assert.Equal(t, "DisplayName", c.UiPath.ConceptName)
	assert.True(t, c.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", c.Telemetry.Endpoint)
	assert.Len(t, m.GetPaths(), 3)
	assert.Equal(t, "localhost:6379", c.Cache.Redis.Address, "set by .env")
}

func TestExplicitFileMustExist(t *testing.T) {
	m := NewManager(WithHome(t.TempDir()), WithWorkDir(t.TempDir()), WithFile(filepath.Join(t.TempDir(), "missing.yaml")))
	err := m.Load()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidFormat))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"policy", func(c *Config) { c.Parse.Policy = "retry" }},
		{"decimals", func(c *Config) { c.Measures.RoundDecimals = -1 }},
		{"table format", func(c *Config) { c.Measures.TableFormat = "ods" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			require.NoError(t, c.Validate())
			tt.mutate(c)
			assert.True(t, errors.IsCode(c.Validate(), errors.CodeInvalidArgument))
		})
	}
}

func TestBadEnvInteger(t *testing.T) {
	t.Setenv("RPAFLOW_ROUND_DECIMALS", "two")
	m := NewManager(WithHome(t.TempDir()), WithWorkDir(t.TempDir()))
	assert.True(t, errors.IsCode(m.Load(), errors.CodeInvalidArgument))
}

func TestSave(t *testing.T) {
	home := t.TempDir()
	m := NewManager(WithHome(home), WithWorkDir(t.TempDir()))
	require.NoError(t, m.Load())
	m.Get().Measures.RoundDecimals = 5

	path, err := m.Save()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".rpaflow", "config.yaml"), path)

	again := NewManager(WithHome(home), WithWorkDir(t.TempDir()))
	require.NoError(t, again.Load())
	assert.Equal(t, 5, again.Get().Measures.RoundDecimals)
}
