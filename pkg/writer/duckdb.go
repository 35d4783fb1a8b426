package writer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

// TableName is the table the DuckDB writer fills.
const TableName = "events"

// DuckDBWriter writes event tables into a DuckDB database file for SQL
// drill-down. An empty path uses an in-memory database.
type DuckDBWriter struct {
	cfg  Config
	path string
	db   *sql.DB

	mu               sync.Mutex
	totalRowsWritten int64
	closed           bool
}

// NewDuckDBWriter opens the database and (re)creates the events table.
func NewDuckDBWriter(ctx context.Context, path string, cfg Config) (*DuckDBWriter, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "opening duckdb").WithContext("path", path)
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%s %s", c.name, c.sql)
	}
	ddl := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", TableName, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "creating events table")
	}

	return &DuckDBWriter{cfg: cfg, path: path, db: db}, nil
}

// Write implements Writer. Rows are inserted in one transaction per batch.
func (w *DuckDBWriter) Write(ctx context.Context, log *model.Log) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New(errors.CodeWriteFailed, "duckdb writer is closed")
	}
	size := w.cfg.batchSize()
	for start := 0; start < log.Len(); start += size {
		end := start + size
		if end > log.Len() {
			end = log.Len()
		}
		if err := w.insertBatch(ctx, log.Events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *DuckDBWriter) insertBatch(ctx context.Context, batch []model.Event) error {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", TableName, strings.Join(ColumnNames(), ", "), marks)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "beginning transaction")
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.CodeWriteFailed, "preparing insert")
	}
	defer stmt.Close()

	args := make([]interface{}, len(columns))
	for i := range batch {
		for k, c := range columns {
			args[k] = c.value(&batch[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return errors.Wrap(err, errors.CodeWriteFailed, "inserting event").WithContext("event_id", batch[i].EventID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "committing transaction")
	}
	w.totalRowsWritten += int64(len(batch))
	return nil
}

// ExportParquet copies the events table to a Parquet file.
func (w *DuckDBWriter) ExportParquet(ctx context.Context, path string) error {
	compression := "snappy"
	switch w.cfg.Compression {
	case CompressionGzip:
		compression = "gzip"
	case CompressionZstd:
		compression = "zstd"
	case CompressionNone:
		compression = "uncompressed"
	}
	query := fmt.Sprintf("COPY %s TO '%s' (FORMAT PARQUET, COMPRESSION '%s')",
		TableName, strings.ReplaceAll(path, "'", "''"), compression)
	if _, err := w.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "exporting parquet").WithContext("path", path)
	}
	return nil
}

// Summary describes a stored table.
type Summary struct {
	Events        int64          `json:"events"`
	Traces        int64          `json:"traces"`
	Activities    int64          `json:"activities"`
	BotEvents     int64          `json:"bot_events"`
	FailedEvents  int64          `json:"failed_events"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	TopActivities []CountPercent `json:"top_activities"`
	TopPaths      []CountPercent `json:"top_paths"`
}

// CountPercent is a frequency with its share.
type CountPercent struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// Summarize queries headline numbers from the events table.
func (w *DuckDBWriter) Summarize(ctx context.Context, top int) (*Summary, error) {
	s := &Summary{}
	row := w.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(DISTINCT case_id),
			COUNT(DISTINCT activity),
			COUNT(*) FILTER (WHERE bot),
			COUNT(*) FILTER (WHERE NOT success)
		FROM %s`, TableName))
	if err := row.Scan(&s.Events, &s.Traces, &s.Activities, &s.BotEvents, &s.FailedEvents); err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "summarizing events")
	}

	var start, end sql.NullTime
	row = w.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT
			MIN(COALESCE(start_timestamp, end_timestamp, timestamp)),
			MAX(COALESCE(end_timestamp, start_timestamp, timestamp))
		FROM %s`, TableName))
	if err := row.Scan(&start, &end); err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "summarizing time range")
	}
	s.Start, s.End = start.Time, end.Time

	var err error
	s.TopActivities, err = w.counts(ctx, fmt.Sprintf(`
		SELECT activity, COUNT(*) AS cnt, COUNT(*) * 100.0 / SUM(COUNT(*)) OVER () AS pct
		FROM %s
		GROUP BY activity
		ORDER BY cnt DESC, activity
		LIMIT %d`, TableName, top))
	if err != nil {
		return nil, err
	}
	s.TopPaths, err = w.counts(ctx, fmt.Sprintf(`
		SELECT path, COUNT(*) AS cnt, COUNT(*) * 100.0 / SUM(COUNT(*)) OVER () AS pct
		FROM %s
		WHERE is_first_event_in_trace
		GROUP BY path
		ORDER BY cnt DESC, path
		LIMIT %d`, TableName, top))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (w *DuckDBWriter) counts(ctx context.Context, query string) ([]CountPercent, error) {
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "querying frequencies")
	}
	defer rows.Close()

	var out []CountPercent
	for rows.Next() {
		var c CountPercent
		var name sql.NullString
		if err := rows.Scan(&name, &c.Count, &c.Percent); err != nil {
			return nil, errors.Wrap(err, errors.CodeWriteFailed, "scanning frequencies")
		}
		c.Name = name.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (w *DuckDBWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.db.Close(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "closing duckdb")
	}
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *DuckDBWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}
