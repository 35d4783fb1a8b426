package parser

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

// Roles used only by the delimited vendor formats.
const (
	RoleStartTimestamp Role = "startTimestamp"
	RoleEndTimestamp   Role = "endTimestamp"
)

// listCSV returns the .csv files of dir in lexical order.
func listCSV(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(dir)
		}
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "list log directory")
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func openCSV(path string, delim rune) (*os.File, *csv.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInvalidFormat, "open csv").WithContext("path", path)
	}
	r := csv.NewReader(f)
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return f, r, nil
}

func delimiter(s string, def rune) rune {
	if s == "" {
		return def
	}
	if s == `\t` {
		return '\t'
	}
	return []rune(s)[0]
}

// rowLayout describes how a delimited row maps onto an event. Column indexes
// are -1 when the role is not configured.
type rowLayout struct {
	source        string
	caseID        string
	caseCol       int
	activity      int
	start         int
	end           int
	success       int
	resourceCol   int
	correlation   int
	correlationAs string
	failure       string
	layout        string
	loc           *time.Location
	resource      string
	processName   string
	version       string
}

func (s *rowLayout) field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// event converts one delimited row. The timestamp comes from the start
// column when populated, else the end column. A success cell containing
// the failure marker yields ate:abort.
func (s *rowLayout) event(row []string, rowNo int) (model.Event, error) {
	ev := model.Event{
		CaseID:         s.caseID,
		Activity:       s.field(row, s.activity),
		EventID:        syntheticEventID(filepath.Base(s.source), rowNo),
		Resource:       s.resource,
		ProcessName:    s.processName,
		ProcessVersion: s.version,
	}
	if s.caseCol >= 0 {
		ev.CaseID = s.field(row, s.caseCol)
	}
	if s.resourceCol >= 0 {
		ev.Resource = s.field(row, s.resourceCol)
	}
	if ev.CaseID == "" || ev.Activity == "" {
		return ev, errors.New(errors.CodeMalformedRecord, "empty case id or activity")
	}

	start, end := s.field(row, s.start), s.field(row, s.end)
	raw, fromStart := start, true
	if raw == "" {
		raw, fromStart = end, false
	}
	if raw == "" {
		return ev, errors.New(errors.CodeMalformedRecord, "neither start nor end timestamp populated")
	}
	ts, err := parseLayout(s.layout, raw, s.loc)
	if err != nil {
		return ev, err
	}
	ev.Timestamp = ts

	ev.Success = s.failure == "" || !strings.Contains(s.field(row, s.success), s.failure)
	switch {
	case !ev.Success:
		ev.Lifecycle = model.LifecycleAbort
	case fromStart:
		ev.Lifecycle = model.LifecycleStart
	default:
		ev.Lifecycle = model.LifecycleComplete
	}

	if s.correlation >= 0 {
		ev.SetAttr(s.correlationAs, s.field(row, s.correlation), model.AttrTypeString)
	}
	return ev, nil
}

// readRows feeds every record of r to fn with its 1-based row number.
// Records the csv reader rejects arrive with a non-nil readErr.
func readRows(ctx context.Context, r *csv.Reader, firstRow int, fn func(row []string, rowNo int, readErr error) error) error {
	rowNo := firstRow
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		rowNo++
		if rowNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, errors.CodeCanceled, "parse canceled")
			}
		}
		if err == nil && len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		if ferr := fn(row, rowNo, err); ferr != nil {
			return ferr
		}
	}
}

// collectRows converts every row of r with layout, applying the record
// policy to bad rows.
func collectRows(ctx context.Context, r *csv.Reader, layout *rowLayout, firstRow int, o options) ([]model.Event, error) {
	var events []model.Event
	err := readRows(ctx, r, firstRow, func(row []string, rowNo int, readErr error) error {
		if readErr != nil {
			return o.handle(errors.MalformedRecord(layout.source, rowNo, readErr), layout.source, rowNo)
		}
		ev, err := layout.event(row, rowNo)
		if err != nil {
			return o.handle(errors.MalformedRecord(layout.source, rowNo, err), layout.source, rowNo)
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

func headerNames(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return out
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}
	return idx
}

func indexOr(idx map[string]int, col string) int {
	if col == "" {
		return -1
	}
	if i, ok := idx[col]; ok {
		return i
	}
	return -1
}

func caseNumber(i int) string { return strconv.Itoa(i) }
