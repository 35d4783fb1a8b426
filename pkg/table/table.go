// Package table exports tabular measure results as semicolon-separated text
// or as an Excel workbook.
package table

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpaflow/rpaflow/pkg/errors"
	"github.com/rpaflow/rpaflow/pkg/measures"
)

// Separator is the field separator of exported text tables.
const Separator = ';'

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// FileName returns the export file name of a tabular measure, e.g.
// "df_automation_rate.csv".
func FileName(measure, ext string) string {
	return "df_" + measure + "." + strings.TrimPrefix(ext, ".")
}

// WriteCSV writes the header row and one line per table row.
func WriteCSV(w io.Writer, t *measures.Table) error {
	cw := csv.NewWriter(w)
	cw.Comma = Separator
	if err := cw.Write(t.Columns); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "writing table header")
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "writing table row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "flushing table")
	}
	return nil
}

// WriteXLSX writes the table to a single-sheet workbook named after the
// measure. The header row is bold and frozen.
func WriteXLSX(w io.Writer, sheet string, t *measures.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet = sheetName(sheet)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "naming sheet")
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "writing header")
	}
	for r, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "addressing row")
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "writing row").WithContext("row", r+1)
		}
	}

	if len(t.Columns) > 0 {
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "creating header style")
		}
		last, err := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "addressing header")
		}
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "styling header")
		}
		if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "freezing header")
		}
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "writing workbook")
	}
	return nil
}

// Save writes the table of a result into dir, choosing the format from ext
// ("csv" or "xlsx"). It returns the written path.
func Save(dir string, res *measures.Result, ext string) (string, error) {
	if res.Table == nil {
		return "", errors.Newf(errors.CodeInvalidArgument, "measure %s has no table", res.Measure)
	}
	var write func(io.Writer) error
	switch strings.TrimPrefix(ext, ".") {
	case "xlsx":
		write = func(w io.Writer) error { return WriteXLSX(w, res.Measure, res.Table) }
	case "csv":
		write = func(w io.Writer) error { return WriteCSV(w, res.Table) }
	default:
		return "", errors.Newf(errors.CodeInvalidArgument, "unsupported table format %q", ext)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.CodeWriteFailed, "creating output directory").WithContext("dir", dir)
	}
	path := filepath.Join(dir, FileName(res.Measure, ext))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeWriteFailed, "creating table file").WithContext("path", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, errors.CodeWriteFailed, "closing table file").WithContext("path", path)
	}
	return path, nil
}

func sheetName(s string) string {
	s = strings.NewReplacer(":", "_", `\`, "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_").Replace(s)
	if s == "" {
		return "Sheet1"
	}
	if len(s) > maxSheetName {
		s = s[:maxSheetName]
	}
	return s
}
