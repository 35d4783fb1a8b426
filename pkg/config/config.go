// Package config provides hierarchical configuration management.
// Priority: defaults < user < project < explicit file < .env < env < flags
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rpaflow/rpaflow/pkg/cache"
	"github.com/rpaflow/rpaflow/pkg/errors"
	"github.com/rpaflow/rpaflow/pkg/merge"
	"github.com/rpaflow/rpaflow/pkg/parser"
	"github.com/rpaflow/rpaflow/pkg/storage/s3"
	"github.com/rpaflow/rpaflow/pkg/telemetry"
	"github.com/rpaflow/rpaflow/pkg/xes"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RPAFLOW_"

// Config holds all rpaflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Log                LogConfig                       `yaml:"log"`
	Parse              ParseConfig                     `yaml:"parse"`
	UiPath             parser.UiPathConfig             `yaml:"uipath"`
	BluePrism          parser.BluePrismConfig          `yaml:"blueprism"`
	AutomationAnywhere parser.AutomationAnywhereConfig `yaml:"automation_anywhere"`
	Merge              merge.Config                    `yaml:"merge"`
	Attributes         xes.Keys                        `yaml:"attributes"`
	Measures           MeasuresConfig                  `yaml:"measures"`
	Export             ExportConfig                    `yaml:"export"`
	Storage            s3.Config                       `yaml:"storage"`
	Cache              CacheConfig                     `yaml:"cache"`
	Telemetry          telemetry.Config                `yaml:"telemetry"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// ParseConfig controls vendor parsing.
type ParseConfig struct {
	Policy parser.RecordPolicy `yaml:"policy"` // strict | skip
}

// MeasuresConfig controls measure output.
type MeasuresConfig struct {
	RoundDecimals  int    `yaml:"round_decimals"`
	MaxEdges       int    `yaml:"max_edges"`
	ShowEdgeLabels bool   `yaml:"show_edge_labels"`
	OutputDir      string `yaml:"output_dir"`
	TableFormat    string `yaml:"table_format"` // csv | xlsx
	ImageFormat    string `yaml:"image_format"` // dot | svg | png | pdf
}

// ExportConfig controls Parquet and DuckDB export.
type ExportConfig struct {
	Compression string `yaml:"compression"` // snappy | zstd | gzip | lz4 | none
	BatchSize   int    `yaml:"batch_size"`
	TopN        int    `yaml:"top_n"`
}

// CacheConfig selects the measure result cache. An empty address disables
// Redis.
type CacheConfig struct {
	Redis cache.RedisConfig `yaml:"redis"`
}

// Enabled reports whether a Redis server is configured.
func (c CacheConfig) Enabled() bool { return c.Redis.Address != "" }

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version:            1,
		Log:                LogConfig{Level: "info", Format: "text"},
		Parse:              ParseConfig{Policy: parser.PolicyStrict},
		UiPath:             parser.DefaultUiPathConfig(),
		BluePrism:          parser.DefaultBluePrismConfig(),
		AutomationAnywhere: parser.DefaultAutomationAnywhereConfig(),
		Merge:              merge.DefaultConfig(),
		Attributes:         xes.DefaultKeys(),
		Measures: MeasuresConfig{
			RoundDecimals:  2,
			MaxEdges:       200,
			ShowEdgeLabels: true,
			OutputDir:      ".",
			TableFormat:    "csv",
			ImageFormat:    "dot",
		},
		Export: ExportConfig{
			Compression: "snappy",
			BatchSize:   8192,
			TopN:        10,
		},
		Storage:   s3.DefaultConfig(),
		Cache:     CacheConfig{Redis: cache.DefaultRedisConfig("")},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Validate checks values that cannot be fixed by falling back to a default.
func (c *Config) Validate() error {
	switch c.Parse.Policy {
	case parser.PolicyStrict, parser.PolicySkip:
	default:
		return errors.Newf(errors.CodeInvalidArgument, "parse.policy must be strict or skip, got %q", c.Parse.Policy)
	}
	if c.Measures.RoundDecimals < 0 {
		return errors.Newf(errors.CodeInvalidArgument, "measures.round_decimals must not be negative, got %d", c.Measures.RoundDecimals)
	}
	switch c.Measures.TableFormat {
	case "csv", "xlsx":
	default:
		return errors.Newf(errors.CodeInvalidArgument, "measures.table_format must be csv or xlsx, got %q", c.Measures.TableFormat)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Newf(errors.CodeInvalidArgument, "log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithHome overrides the home directory holding .rpaflow/config.yaml.
func WithHome(dir string) Option {
	return func(m *Manager) { m.home = dir }
}

// WithWorkDir overrides the directory holding .rpaflow.yaml and .env.
func WithWorkDir(dir string) Option {
	return func(m *Manager) { m.cwd = dir }
}

// WithFile adds an explicit config file, applied after the project file.
func WithFile(path string) Option {
	return func(m *Manager) { m.file = path }
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
	home   string
	cwd    string
	file   string
}

// NewManager creates a new configuration manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{config: Default()}
	if home, err := os.UserHomeDir(); err == nil {
		m.home = home
	}
	if cwd, err := os.Getwd(); err == nil {
		m.cwd = cwd
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.configPaths() {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) && path != m.file {
				continue
			}
			return errors.Wrap(err, errors.CodeInvalidFormat, "loading config").WithContext("path", path)
		}
		m.paths = append(m.paths, path)
	}

	// .env never overrides variables already set in the environment.
	if m.cwd != "" {
		env := filepath.Join(m.cwd, ".env")
		if err := godotenv.Load(env); err == nil {
			m.paths = append(m.paths, env)
		} else if !os.IsNotExist(err) {
			return errors.Wrap(err, errors.CodeInvalidFormat, "loading .env").WithContext("path", env)
		}
	}

	if err := m.loadEnv(); err != nil {
		return err
	}
	return m.config.Validate()
}

// configPaths returns config file paths in priority order.
func (m *Manager) configPaths() []string {
	var paths []string
	if m.home != "" {
		paths = append(paths, filepath.Join(m.home, ".rpaflow", "config.yaml"))
	}
	if m.cwd != "" {
		paths = append(paths, filepath.Join(m.cwd, ".rpaflow.yaml"))
	}
	if m.file != "" {
		paths = append(paths, m.file)
	}
	return paths
}

// loadFile decodes a YAML file over the current config. Keys absent from
// the file keep their value; lists are replaced as a whole.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, m.config)
}

// loadEnv applies RPAFLOW_* environment variables.
func (m *Manager) loadEnv() error {
	c := m.config
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("OUTPUT_DIR", &c.Measures.OutputDir)
	str("TABLE_FORMAT", &c.Measures.TableFormat)
	str("COMPRESSION", &c.Export.Compression)
	str("TRACE_ID_KEY", &c.Merge.TraceIDKey)
	str("S3_REGION", &c.Storage.Region)
	str("S3_ENDPOINT", &c.Storage.Endpoint)
	str("REDIS_ADDR", &c.Cache.Redis.Address)
	str("REDIS_PASSWORD", &c.Cache.Redis.Password)

	if v := os.Getenv(EnvPrefix + "POLICY"); v != "" {
		c.Parse.Policy = parser.RecordPolicy(v)
	}
	if v := os.Getenv(EnvPrefix + "OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"ROUND_DECIMALS", &c.Measures.RoundDecimals},
		{"MAX_EDGES", &c.Measures.MaxEdges},
		{"BATCH_SIZE", &c.Export.BatchSize},
	}
	for _, e := range ints {
		v := os.Getenv(EnvPrefix + e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Newf(errors.CodeInvalidArgument, "%s%s must be an integer, got %q", EnvPrefix, e.name, v)
		}
		*e.dst = n
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file and returns its
// path.
func (m *Manager) Save() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.home == "" {
		return "", errors.New(errors.CodeInvalidArgument, "no home directory")
	}
	dir := filepath.Join(m.home, ".rpaflow")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.CodeWriteFailed, "creating config directory")
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeWriteFailed, "encoding config")
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, errors.CodeWriteFailed, "writing config").WithContext("path", path)
	}
	return path, nil
}
