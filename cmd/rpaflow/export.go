package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/cache"
	"github.com/rpaflow/rpaflow/pkg/errors"
	"github.com/rpaflow/rpaflow/pkg/telemetry"
	"github.com/rpaflow/rpaflow/pkg/writer"
)

// Export flags
var (
	compressionFlag string
	batchSize       int
	parquetCopy     string
	topN            int
)

var exportCmd = &cobra.Command{
	Use:   "export <log.xes>",
	Short: "Export the enriched event table to Parquet or DuckDB",
	Long: `Export the enriched event table (intervals, trace paths, execution times,
followed-by) for BI tools. The output format follows the file extension:
.parquet writes a Parquet file, .duckdb or .db a DuckDB database with an
"events" table and prints a summary.

Examples:
  rpaflow export merged.xes -o events.parquet --compression zstd
  rpaflow export merged.xes -o events.duckdb --parquet events.parquet`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file, .parquet or .duckdb (required)")
	exportCmd.Flags().StringVar(&compressionFlag, "compression", "", "Parquet compression (none, snappy, gzip, zstd, lz4)")
	exportCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows per batch")
	exportCmd.Flags().StringVar(&parquetCopy, "parquet", "", "With a DuckDB output, also copy the table to this Parquet file")
	exportCmd.Flags().IntVar(&topN, "top", 0, "Activities and paths listed in the summary")
	exportCmd.Flags().StringVar(&uploadURI, "upload", "", "Upload the output to an s3:// location")
	exportCmd.MarkFlagRequired("output")
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	cfg := app.cfg.Export
	if compressionFlag != "" {
		cfg.Compression = compressionFlag
	}
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}
	if topN > 0 {
		cfg.TopN = topN
	}
	wcfg := writer.Config{BatchSize: cfg.BatchSize, Compression: writer.ParseCompression(cfg.Compression)}

	start := time.Now()
	prep, err := newPipeline(cache.Nop{}).Run(ctx, args[0])
	if err != nil {
		return err
	}

	ctx, span := telemetry.StartStage(ctx, "export", telemetry.Events(prep.Enriched.Len()))
	defer func() { telemetry.EndStage(span, err) }()

	switch strings.ToLower(filepath.Ext(outputFile)) {
	case ".parquet":
		err = exportParquet(ctx, prep.Enriched, wcfg)
	case ".duckdb", ".db":
		err = exportDuckDB(ctx, prep.Enriched, wcfg, cfg.TopN)
	default:
		err = errors.Newf(errors.CodeInvalidArgument, "unsupported export format %q, use .parquet or .duckdb", filepath.Ext(outputFile))
	}
	if err != nil {
		return err
	}
	if err := upload(ctx, outputFile); err != nil {
		return err
	}
	printer().PrintLogReport(logReport(args[0], outputFile, prep.Enriched, prep.Dropped, time.Since(start)))
	return nil
}

func exportParquet(ctx context.Context, log *model.Log, cfg writer.Config) error {
	f, err := os.Create(outputFile)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "creating output").WithContext("path", outputFile)
	}
	defer f.Close()

	w, err := writer.NewParquetWriter(f, cfg)
	if err != nil {
		return err
	}
	if err := w.Write(ctx, log); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	app.logger.Info("wrote parquet", "path", outputFile, "rows", w.RowsWritten())
	return nil
}

func exportDuckDB(ctx context.Context, log *model.Log, cfg writer.Config, top int) error {
	w, err := writer.NewDuckDBWriter(ctx, outputFile, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Write(ctx, log); err != nil {
		return err
	}
	if parquetCopy != "" {
		if err := w.ExportParquet(ctx, parquetCopy); err != nil {
			return err
		}
		app.logger.Info("copied table to parquet", "path", parquetCopy)
	}
	summary, err := w.Summarize(ctx, top)
	if err != nil {
		return err
	}
	printer().Summary(summary)
	return w.Close()
}
