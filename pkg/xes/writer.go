package xes

import (
	"bufio"
	"encoding/xml"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>
<log xes.version="1.0" xes.features="nested-attributes" xmlns="http://www.xes-standard.org/">
	<extension name="Lifecycle" prefix="lifecycle" uri="http://www.xes-standard.org/lifecycle.xesext"/>
	<extension name="Organizational" prefix="org" uri="http://www.xes-standard.org/org.xesext"/>
	<extension name="Time" prefix="time" uri="http://www.xes-standard.org/time.xesext"/>
	<extension name="Concept" prefix="concept" uri="http://www.xes-standard.org/concept.xesext"/>
`

// WriterOptions controls XES serialization.
type WriterOptions struct {
	// TraceIDKey, when set to something other than model.KeyCaseID, also
	// writes the case id on every event under this key.
	TraceIDKey string
	// IncludeBot writes the bot flag on every event.
	IncludeBot bool
	Logger     *slog.Logger
}

// Writer encodes the canonical table as XES.
type Writer struct {
	opts WriterOptions
}

// NewWriter creates a writer.
func NewWriter(opts WriterOptions) *Writer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Writer{opts: opts}
}

// WriteFile writes log to path, replacing any existing file.
func (w *Writer) WriteFile(path string, log *model.Log) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "create xes").WithContext("path", path)
	}
	if err := w.Write(f, log); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "close xes").WithContext("path", path)
	}
	return nil
}

// Write groups events into traces by case id, in order of first
// appearance. Attributes prefixed "case:" are written once per trace,
// taken from its first event. Events without a case id are skipped.
func (w *Writer) Write(out io.Writer, log *model.Log) error {
	bw := bufio.NewWriter(out)
	ids, rows := log.CaseOrder()
	if skipped := log.Len() - countRows(rows); skipped > 0 {
		w.opts.Logger.Warn("events without case id are not exported", "count", skipped)
	}

	bw.WriteString(header)
	for _, id := range ids {
		idx := rows[id]
		bw.WriteString("\t<trace>\n")
		writeAttr(bw, 2, xmlString, model.KeyActivity, id)
		for _, a := range log.Events[idx[0]].Attributes {
			if strings.HasPrefix(a.Key, casePrefix) {
				writeAttr(bw, 2, typeElement(a.Type), strings.TrimPrefix(a.Key, casePrefix), a.Value)
			}
		}
		for _, i := range idx {
			w.writeEvent(bw, &log.Events[i])
		}
		bw.WriteString("\t</trace>\n")
	}
	bw.WriteString("</log>\n")
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "write xes")
	}
	return nil
}

func (w *Writer) writeEvent(bw *bufio.Writer, ev *model.Event) {
	bw.WriteString("\t\t<event>\n")
	writeAttr(bw, 3, xmlString, model.KeyActivity, ev.Activity)
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = ev.EndTimestamp
	}
	if !ts.IsZero() {
		writeAttr(bw, 3, xmlDate, model.KeyTimestamp, formatTime(ts))
	}
	if !ev.StartTimestamp.IsZero() {
		writeAttr(bw, 3, xmlDate, model.KeyStartTimestamp, formatTime(ev.StartTimestamp))
	}
	optional := []struct{ key, value string }{
		{model.KeyLifecycle, string(ev.Lifecycle)},
		{model.KeyResource, ev.Resource},
		{model.KeyEventID, ev.EventID},
		{model.KeyProcessName, ev.ProcessName},
		{model.KeyProcessVersion, ev.ProcessVersion},
	}
	for _, o := range optional {
		if o.value != "" {
			writeAttr(bw, 3, xmlString, o.key, o.value)
		}
	}
	writeAttr(bw, 3, xmlBool, model.KeySuccess, strconv.FormatBool(ev.Success))
	if w.opts.IncludeBot {
		writeAttr(bw, 3, xmlBool, model.KeyBot, strconv.FormatBool(ev.Bot))
	}
	if k := w.opts.TraceIDKey; k != "" && k != model.KeyCaseID {
		writeAttr(bw, 3, xmlString, k, ev.CaseID)
	}
	for _, a := range ev.Attributes {
		if strings.HasPrefix(a.Key, casePrefix) || a.Key == w.opts.TraceIDKey {
			continue
		}
		writeAttr(bw, 3, typeElement(a.Type), a.Key, a.Value)
	}
	bw.WriteString("\t\t</event>\n")
}

func writeAttr(bw *bufio.Writer, indent int, element, key, value string) {
	bw.WriteString(strings.Repeat("\t", indent))
	bw.WriteString("<")
	bw.WriteString(element)
	bw.WriteString(` key="`)
	xml.EscapeText(bw, []byte(key))
	bw.WriteString(`" value="`)
	xml.EscapeText(bw, []byte(value))
	bw.WriteString("\"/>\n")
}

func typeElement(t model.AttrType) string {
	switch t {
	case model.AttrTypeInt:
		return xmlInt
	case model.AttrTypeFloat:
		return xmlFloat
	case model.AttrTypeBool:
		return xmlBool
	case model.AttrTypeTimestamp:
		return xmlDate
	default:
		return xmlString
	}
}

func formatTime(t time.Time) string {
	return t.Format(model.TimestampLayout)
}

func countRows(rows map[string][]int) int {
	n := 0
	for _, r := range rows {
		n += len(r)
	}
	return n
}
