package writer

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

// ParquetWriter writes event tables to Parquet using Apache Arrow.
type ParquetWriter struct {
	cfg Config

	allocator memory.Allocator
	schema    *arrow.Schema
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder

	mu               sync.Mutex
	rowCount         int
	totalRowsWritten int64
	closed           bool
}

// eventSchema returns the Arrow schema of the enriched event table.
func eventSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = arrow.Field{Name: c.name, Type: c.arrow, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// NewParquetWriter creates a new Parquet writer. The file footer is written
// on Close.
func NewParquetWriter(output io.Writer, cfg Config) (*ParquetWriter, error) {
	allocator := memory.NewGoAllocator()
	schema := eventSchema()

	var codec compress.Compression
	switch cfg.Compression {
	case CompressionSnappy:
		codec = compress.Codecs.Snappy
	case CompressionGzip:
		codec = compress.Codecs.Gzip
	case CompressionZstd:
		codec = compress.Codecs.Zstd
	case CompressionLZ4:
		codec = compress.Codecs.Lz4
	default:
		codec = compress.Codecs.Uncompressed
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024*1024),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, output, writerProps, arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "creating parquet writer")
	}

	return &ParquetWriter{
		cfg:       cfg,
		allocator: allocator,
		schema:    schema,
		writer:    writer,
		builder:   array.NewRecordBuilder(allocator, schema),
	}, nil
}

// Write implements Writer.
func (w *ParquetWriter) Write(ctx context.Context, log *model.Log) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New(errors.CodeWriteFailed, "parquet writer is closed")
	}
	for i := range log.Events {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, errors.CodeCanceled, "writing parquet")
			}
		}
		if err := w.appendEvent(&log.Events[i]); err != nil {
			return err
		}
		w.rowCount++
		if w.rowCount >= w.cfg.batchSize() {
			if err := w.flushBatch(); err != nil {
				return err
			}
		}
	}
	return nil
}

// appendEvent adds one row to the record builder.
func (w *ParquetWriter) appendEvent(e *model.Event) error {
	for i, c := range columns {
		fb := w.builder.Field(i)
		v := c.value(e)
		if v == nil {
			fb.AppendNull()
			continue
		}
		switch b := fb.(type) {
		case *array.StringBuilder:
			b.Append(v.(string))
		case *array.BooleanBuilder:
			b.Append(v.(bool))
		case *array.Int64Builder:
			b.Append(v.(int64))
		case *array.TimestampBuilder:
			b.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
		default:
			return errors.Newf(errors.CodeWriteFailed, "unsupported builder %T for column %s", fb, c.name)
		}
	}
	return nil
}

// flushBatch writes the current batch to Parquet.
func (w *ParquetWriter) flushBatch() error {
	if w.rowCount == 0 {
		return nil
	}

	batch := w.builder.NewRecord()
	defer batch.Release()

	if err := w.writer.Write(batch); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "writing record batch")
	}

	w.totalRowsWritten += int64(w.rowCount)
	w.rowCount = 0
	return nil
}

// Flush flushes any buffered rows.
func (w *ParquetWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBatch()
}

// Close closes the writer and releases resources.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "closing parquet writer")
	}
	w.builder.Release()
	w.closed = true
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}
