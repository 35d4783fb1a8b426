package parser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

// UiPathConfig maps UiPath log fields onto canonical roles. Every field
// name is matched as a substring of the flattened JSON path.
type UiPathConfig struct {
	ConnectingAttribute string `yaml:"connecting_attribute"`
	ConceptName         string `yaml:"concept_name"`
	Timestamp           string `yaml:"timestamp"`
	Lifecycle           string `yaml:"lifecycle"`
	// LifecycleValues are the raw abort, start and complete markers in
	// that order. The abort marker is not mapped; it only documents the
	// vendor vocabulary.
	LifecycleValues  []string `yaml:"lifecycle_values"`
	LifecycleDefault string   `yaml:"lifecycle_default"`
	EventID          string   `yaml:"event_id"`
	CaseID           string   `yaml:"case_id"`
	Resource         string   `yaml:"resource"`
	ProcessName      string   `yaml:"process_name"`
	ProcessVersion   string   `yaml:"process_version"`
	Success          string   `yaml:"success"`
	FailureValue     string   `yaml:"failure_value"`
	TraceLevelOnly   bool     `yaml:"trace_level_only"`
}

// DefaultUiPathConfig returns the mapping for the BPI challenge UiPath log.
func DefaultUiPathConfig() UiPathConfig {
	return UiPathConfig{
		ConnectingAttribute: "businessActivityId",
		ConceptName:         "DisplayName",
		Timestamp:           "timeStamp",
		Lifecycle:           "State",
		LifecycleValues:     []string{"Faulted", "Executing", "Closed"},
		LifecycleDefault:    string(model.LifecycleComplete),
		EventID:             "fingerprint",
		CaseID:              "jobId",
		Resource:            "robotName",
		ProcessName:         "processName",
		ProcessVersion:      "processVersion",
		Success:             "State",
		FailureValue:        "Faulted",
		TraceLevelOnly:      true,
	}
}

// Normalizer returns the column binding rules for this config.
func (c UiPathConfig) Normalizer() *Normalizer {
	return &Normalizer{
		Chain: []Rule{
			{RoleCorrelation, Substring(c.ConnectingAttribute)},
			{RoleActivity, Substring(c.ConceptName)},
			{RoleTimestamp, Substring(c.Timestamp)},
			{RoleEventID, Substring(c.EventID)},
			{RoleCaseID, Substring(c.CaseID)},
			{RoleResource, Substring(c.Resource)},
			{RoleProcessName, Substring(c.ProcessName)},
			{RoleProcessVersion, Substring(c.ProcessVersion)},
		},
		Independent: []Rule{
			{RoleLifecycle, Substring(c.Lifecycle)},
			{RoleSuccess, Substring(c.Success)},
		},
	}
}

func (c UiPathConfig) lifecycle(raw string, present bool) model.Lifecycle {
	if present && len(c.LifecycleValues) == 3 {
		switch raw {
		case c.LifecycleValues[1]:
			return model.LifecycleStart
		case c.LifecycleValues[2]:
			return model.LifecycleComplete
		}
	}
	return model.Lifecycle(c.LifecycleDefault)
}

// record is one flattened JSON log line.
type record struct {
	line   int
	fields map[string]string
}

// ParseUiPathFile parses a UiPath execution log from disk.
func ParseUiPathFile(ctx context.Context, path string, cfg UiPathConfig, opts ...Option) (*model.Log, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound(path)
		}
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "open uipath log")
	}
	defer f.Close()
	return ParseUiPath(ctx, f, path, cfg, opts...)
}

// ParseUiPath parses a UiPath execution log. Each line holds one JSON object,
// optionally preceded by a non-JSON prefix that ends at the first '{'.
// source names the input in error messages.
func ParseUiPath(ctx context.Context, r io.Reader, source string, cfg UiPathConfig, opts ...Option) (*model.Log, error) {
	o := buildOptions(opts)
	if len(cfg.LifecycleValues) != 3 {
		return nil, errors.CardinalityMismatch("lifecycle_values", 3, len(cfg.LifecycleValues))
	}

	var (
		records []record
		columns []string
		seen    = make(map[string]bool)
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, errors.CodeCanceled, "parse canceled")
			}
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		fields, keys, err := decodeLine(line)
		if err != nil {
			if err := o.handle(errors.MalformedRecord(source, lineNo, err), source, lineNo); err != nil {
				return nil, err
			}
			continue
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
		records = append(records, record{line: lineNo, fields: fields})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "read uipath log")
	}

	if cfg.TraceLevelOnly {
		if !seen["level"] {
			return nil, errors.SchemaMismatch([]string{"level"})
		}
		kept := records[:0]
		for _, rec := range records {
			if rec.fields["level"] == "Trace" {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	binding, err := cfg.Normalizer().Bind(columns)
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0, len(records))
	for _, rec := range records {
		ev, err := cfg.toEvent(rec, binding)
		if err != nil {
			if err := o.handle(errors.MalformedRecord(source, rec.line, err), source, rec.line); err != nil {
				return nil, err
			}
			continue
		}
		events = append(events, ev)
	}
	o.logger.Debug("parsed uipath log", "source", source, "lines", lineNo, "events", len(events))
	return model.NewLog(events), nil
}

func (c UiPathConfig) toEvent(rec record, b Binding) (model.Event, error) {
	get := func(role Role) string { return rec.fields[b[role]] }

	ev := model.Event{
		CaseID:         get(RoleCaseID),
		Activity:       get(RoleActivity),
		EventID:        get(RoleEventID),
		Resource:       get(RoleResource),
		ProcessName:    get(RoleProcessName),
		ProcessVersion: get(RoleProcessVersion),
	}
	for _, role := range []Role{RoleCaseID, RoleActivity, RoleEventID} {
		if get(role) == "" {
			return ev, fmt.Errorf("empty %s in column %q", role, b[role])
		}
	}

	ts, err := ParseTimestamp(get(RoleTimestamp), nil)
	if err != nil {
		return ev, err
	}
	ev.Timestamp = ts

	raw, ok := rec.fields[b[RoleSuccess]]
	ev.Success = !ok || raw != c.FailureValue
	raw, ok = rec.fields[b[RoleLifecycle]]
	ev.Lifecycle = c.lifecycle(raw, ok)

	if v, ok := rec.fields[b[RoleCorrelation]]; ok {
		ev.SetAttr(c.ConnectingAttribute, v, model.AttrTypeString)
	}
	return ev, nil
}

// decodeLine strips the prefix before the first '{' and flattens the JSON
// object into dotted paths. keys preserves document order.
func decodeLine(line []byte) (map[string]string, []string, error) {
	i := bytes.IndexByte(line, '{')
	if i < 0 {
		return nil, nil, fmt.Errorf("no JSON object on line")
	}
	fields := make(map[string]string)
	var keys []string
	if err := flatten(line[i:], "", fields, &keys); err != nil {
		return nil, nil, err
	}
	return fields, keys, nil
}

func flatten(raw []byte, prefix string, fields map[string]string, keys *[]string) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key")
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return err
		}
		val = bytes.TrimSpace(val)
		if len(val) == 0 {
			continue
		}
		switch val[0] {
		case '{':
			if err := flatten(val, key, fields, keys); err != nil {
				return err
			}
			continue
		case 'n':
			// null keeps the column but leaves the field absent
			*keys = append(*keys, key)
			continue
		case '"':
			var s string
			if err := json.Unmarshal(val, &s); err != nil {
				return err
			}
			fields[key] = s
		default:
			fields[key] = string(val)
		}
		*keys = append(*keys, key)
	}
	_, err = dec.Token()
	return err
}
