// Package xes reads and writes the canonical event table as XES.
package xes

import (
	"context"
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

// XML element names
const (
	xmlLog     = "log"
	xmlTrace   = "trace"
	xmlEvent   = "event"
	xmlString  = "string"
	xmlDate    = "date"
	xmlInt     = "int"
	xmlFloat   = "float"
	xmlBool    = "boolean"
	xmlID      = "id"
	casePrefix = "case:"
)

// Keys names the attributes that feed the canonical columns. TraceID equal
// to model.KeyCaseID selects the trace's concept:name; any other value
// selects an event attribute.
type Keys struct {
	TraceID   string `yaml:"trace_id"`
	Activity  string `yaml:"activity"`
	Timestamp string `yaml:"timestamp"`
	Lifecycle string `yaml:"lifecycle"`
	Resource  string `yaml:"resource"`
	EventID   string `yaml:"event_id"`
	Success   string `yaml:"success"`
	Bot       string `yaml:"bot"`
}

// DefaultKeys returns the standard XES keys.
func DefaultKeys() Keys {
	return Keys{
		TraceID:   model.KeyCaseID,
		Activity:  model.KeyActivity,
		Timestamp: model.KeyTimestamp,
		Lifecycle: model.KeyLifecycle,
		Resource:  model.KeyResource,
		EventID:   model.KeyEventID,
		Success:   model.KeySuccess,
		Bot:       model.KeyBot,
	}
}

func (k Keys) withDefaults() Keys {
	d := DefaultKeys()
	if k.TraceID == "" {
		k.TraceID = d.TraceID
	}
	if k.Activity == "" {
		k.Activity = d.Activity
	}
	if k.Timestamp == "" {
		k.Timestamp = d.Timestamp
	}
	if k.Lifecycle == "" {
		k.Lifecycle = d.Lifecycle
	}
	if k.Resource == "" {
		k.Resource = d.Resource
	}
	if k.EventID == "" {
		k.EventID = d.EventID
	}
	if k.Success == "" {
		k.Success = d.Success
	}
	if k.Bot == "" {
		k.Bot = d.Bot
	}
	return k
}

// Reader decodes XES documents into the canonical table.
type Reader struct {
	keys Keys
}

// NewReader creates a reader; zero-valued keys fall back to DefaultKeys.
func NewReader(keys Keys) *Reader {
	return &Reader{keys: keys.withDefaults()}
}

// ReadFile reads an XES file from disk.
func (r *Reader) ReadFile(ctx context.Context, path string) (*model.Log, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(path)
		}
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "open xes")
	}
	defer f.Close()
	return r.Read(ctx, f)
}

type attr struct {
	key, value string
	typ        model.AttrType
}

// Read decodes one XES document. Events are emitted trace by trace in
// document order. A missing success attribute reads as true.
func (r *Reader) Read(ctx context.Context, in io.Reader) (*model.Log, error) {
	dec := xml.NewDecoder(in)
	var (
		events     []model.Event
		traceAttrs []attr
		eventAttrs []attr
		inTrace    bool
		inEvent    bool
		count      int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidFormat, "decode xes")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case xmlLog:
			case xmlTrace:
				inTrace, traceAttrs = true, nil
			case xmlEvent:
				if !inTrace {
					if err := dec.Skip(); err != nil {
						return nil, errors.Wrap(err, errors.CodeInvalidFormat, "decode xes")
					}
					continue
				}
				inEvent, eventAttrs = true, nil
			default:
				a, ok := attribute(t)
				// nested attribute children and log-level metadata are ignored
				if err := dec.Skip(); err != nil {
					return nil, errors.Wrap(err, errors.CodeInvalidFormat, "decode xes")
				}
				if !ok {
					continue
				}
				switch {
				case inEvent:
					eventAttrs = append(eventAttrs, a)
				case inTrace:
					traceAttrs = append(traceAttrs, a)
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case xmlEvent:
				ev, err := r.build(traceAttrs, eventAttrs)
				if err != nil {
					return nil, err
				}
				events = append(events, ev)
				inEvent = false
				count++
				if count%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return nil, errors.Wrap(err, errors.CodeCanceled, "read canceled")
					}
				}
			case xmlTrace:
				inTrace = false
			}
		}
	}
	return model.NewLog(events), nil
}

func attribute(el xml.StartElement) (attr, bool) {
	var typ model.AttrType
	switch el.Name.Local {
	case xmlString, xmlID:
		typ = model.AttrTypeString
	case xmlDate:
		typ = model.AttrTypeTimestamp
	case xmlInt:
		typ = model.AttrTypeInt
	case xmlFloat:
		typ = model.AttrTypeFloat
	case xmlBool:
		typ = model.AttrTypeBool
	default:
		return attr{}, false
	}
	a := attr{typ: typ}
	for _, xa := range el.Attr {
		switch xa.Name.Local {
		case "key":
			a.key = xa.Value
		case "value":
			a.value = xa.Value
		}
	}
	return a, a.key != ""
}

func (r *Reader) build(traceAttrs, eventAttrs []attr) (model.Event, error) {
	ev := model.Event{Success: true}
	k := r.keys
	for _, a := range traceAttrs {
		if a.key == model.KeyActivity {
			if k.TraceID == model.KeyCaseID {
				ev.CaseID = a.value
			}
			continue
		}
		ev.SetAttr(casePrefix+a.key, a.value, a.typ)
	}
	for _, a := range eventAttrs {
		var err error
		switch a.key {
		case k.TraceID:
			ev.CaseID = a.value
		case k.Activity:
			ev.Activity = a.value
		case k.Timestamp:
			ev.Timestamp, err = parseTimestamp(a.value)
		case model.KeyStartTimestamp:
			ev.StartTimestamp, err = parseTimestamp(a.value)
		case k.Lifecycle:
			ev.Lifecycle = model.Lifecycle(a.value)
		case k.Resource:
			ev.Resource = a.value
		case k.EventID:
			ev.EventID = a.value
		case k.Success:
			ev.Success, err = parseBool(a.value)
		case k.Bot:
			ev.Bot, err = parseBool(a.value)
		case model.KeyProcessName:
			ev.ProcessName = a.value
		case model.KeyProcessVersion:
			ev.ProcessVersion = a.value
		default:
			ev.SetAttr(a.key, a.value, a.typ)
		}
		if err != nil {
			return ev, errors.Wrapf(err, errors.CodeInvalidFormat, "attribute %q", a.key)
		}
	}
	return ev, nil
}

// Timestamp layouts seen in XES files, most common first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-07:00",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.InvalidTimestamp(s)
}

func parseBool(s string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(s))
}
