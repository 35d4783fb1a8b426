// Package writer stores enriched event tables in columnar and SQL formats.
package writer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/rpaflow/rpaflow/internal/model"
)

// Writer stores event tables.
type Writer interface {
	// Write appends the rows of a table.
	Write(ctx context.Context, log *model.Log) error

	// Close flushes buffered rows and releases resources.
	Close() error
}

// Config holds writer configuration.
type Config struct {
	// BatchSize is the number of rows per record batch or transaction.
	BatchSize int

	// Compression type for Parquet output.
	Compression CompressionType
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   8192,
		Compression: CompressionSnappy,
	}
}

func (c Config) batchSize() int {
	if c.BatchSize <= 0 {
		return DefaultConfig().BatchSize
	}
	return c.BatchSize
}

// column is one field of the stored table. value returns nil for a null
// cell, otherwise a string, bool, int64 or time.Time.
type column struct {
	name  string
	arrow arrow.DataType
	sql   string
	value func(e *model.Event) interface{}
}

func str(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func ts(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func millis(d model.NullDuration) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Duration.Milliseconds()
}

// columns is the layout of the enriched event table.
var columns = []column{
	{"case_id", arrow.BinaryTypes.String, "VARCHAR", func(e *model.Event) interface{} { return str(e.CaseID) }},
	{"activity", arrow.BinaryTypes.String, "VARCHAR", func(e *model.Event) interface{} { return str(e.Activity) }},
	{"event_id", arrow.BinaryTypes.String, "VARCHAR", func(e *model.Event) interface{} { return str(e.EventID) }},
	{"resource", arrow.BinaryTypes.String, "VARCHAR", func(e *model.Event) interface{} { return str(e.Resource) }},
	{"process_name", arrow.BinaryTypes.String, "VARCHAR", func(e *model.Event) interface{} { return str(e.ProcessName) }},
	{"process_version", arrow.BinaryTypes.String, "VARCHAR", func(e *model.Event) interface{} { return str(e.ProcessVersion) }},
	{"lifecycle", arrow.BinaryTypes.String, "VARCHAR", func(e *model.Event) interface{} { return str(string(e.Lifecycle)) }},
	{"timestamp", arrow.FixedWidthTypes.Timestamp_us, "TIMESTAMP", func(e *model.Event) interface{} { return ts(e.Timestamp) }},
	{"start_timestamp", arrow.FixedWidthTypes.Timestamp_us, "TIMESTAMP", func(e *model.Event) interface{} { return ts(e.StartTimestamp) }},
	{"end_timestamp", arrow.FixedWidthTypes.Timestamp_us, "TIMESTAMP", func(e *model.Event) interface{} { return ts(e.EndTimestamp) }},
	{"success", arrow.FixedWidthTypes.Boolean, "BOOLEAN", func(e *model.Event) interface{} { return e.Success }},
	{"bot", arrow.FixedWidthTypes.Boolean, "BOOLEAN", func(e *model.Event) interface{} { return e.Bot }},
	{"path", arrow.BinaryTypes.String, "VARCHAR", func(e *model.Event) interface{} { return str(e.Derived.Path) }},
	{"trace_start", arrow.FixedWidthTypes.Timestamp_us, "TIMESTAMP", func(e *model.Event) interface{} { return ts(e.Derived.TraceStart) }},
	{"trace_end", arrow.FixedWidthTypes.Timestamp_us, "TIMESTAMP", func(e *model.Event) interface{} { return ts(e.Derived.TraceEnd) }},
	{"trace_execution_time_ms", arrow.PrimitiveTypes.Int64, "BIGINT", func(e *model.Event) interface{} { return millis(e.Derived.TraceExecutionTime) }},
	{"is_first_event_in_trace", arrow.FixedWidthTypes.Boolean, "BOOLEAN", func(e *model.Event) interface{} { return e.Derived.IsFirstEventInTrace }},
	{"time_until_end_ms", arrow.PrimitiveTypes.Int64, "BIGINT", func(e *model.Event) interface{} { return e.Derived.TimeUntilEnd.Milliseconds() }},
	{"act_exe_time_ms", arrow.PrimitiveTypes.Int64, "BIGINT", func(e *model.Event) interface{} { return millis(e.Derived.ActExeTime) }},
	{"act_exe_time_appr_ms", arrow.PrimitiveTypes.Int64, "BIGINT", func(e *model.Event) interface{} { return millis(e.Derived.ActExeTimeApprox) }},
	{"followed_by", arrow.BinaryTypes.String, "VARCHAR", func(e *model.Event) interface{} { return str(string(e.Derived.FollowedBy)) }},
	{"attributes", arrow.BinaryTypes.String, "VARCHAR", attributesJSON},
}

// attributesJSON encodes the non-canonical attributes as a JSON object.
func attributesJSON(e *model.Event) interface{} {
	if len(e.Attributes) == 0 {
		return nil
	}
	m := make(map[string]string, len(e.Attributes))
	for _, a := range e.Attributes {
		m[a.Key] = a.Value
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(b)
}

// ColumnNames returns the stored column names in order.
func ColumnNames() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.name
	}
	return out
}
