package parser

import (
	"context"
	"time"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

// BluePrismConfig describes a directory of BluePrism session exports, one
// CSV with a header row per trace.
type BluePrismConfig struct {
	ActivityColumn string `yaml:"activity_column"`
	StartColumn    string `yaml:"start_column"`
	EndColumn      string `yaml:"end_column"`
	SuccessColumn  string `yaml:"success_column"`
	// CorrelationColumn optionally carries the business correlation value;
	// it is stored under CorrelationAttribute.
	CorrelationColumn    string `yaml:"correlation_column"`
	CorrelationAttribute string `yaml:"correlation_attribute"`
	FailureMarker        string `yaml:"failure_marker"`
	TimestampLayout      string `yaml:"timestamp_layout"`
	Timezone             string `yaml:"timezone"`
	Delimiter            string `yaml:"delimiter"`
	ProcessName          string `yaml:"process_name"`
	// Resources and Versions are assigned positionally, one per file in
	// enumeration order.
	Resources []string `yaml:"resources"`
	Versions  []string `yaml:"versions"`
}

// DefaultBluePrismConfig returns the column names of a BluePrism session
// log export.
func DefaultBluePrismConfig() BluePrismConfig {
	return BluePrismConfig{
		ActivityColumn:       "Stage Name",
		StartColumn:          "Resource Start",
		EndColumn:            "Resource End",
		SuccessColumn:        "Result",
		CorrelationAttribute: "businessActivityId",
		FailureMarker:        "ERROR",
		TimestampLayout:      "02/01/2006 15:04:05",
		Timezone:             "Europe/Berlin",
		Delimiter:            ",",
	}
}

func (c BluePrismConfig) normalizer() *Normalizer {
	return &Normalizer{Chain: []Rule{
		{RoleActivity, Exact(c.ActivityColumn)},
		{RoleStartTimestamp, Exact(c.StartColumn)},
		{RoleEndTimestamp, Exact(c.EndColumn)},
		{RoleSuccess, Exact(c.SuccessColumn)},
	}}
}

// ParseBluePrism parses every CSV in dir. Files are enumerated in lexical
// order and each becomes one trace whose case id is its zero-based position.
func ParseBluePrism(ctx context.Context, dir string, cfg BluePrismConfig, opts ...Option) (*model.Log, error) {
	o := buildOptions(opts)
	files, err := listCSV(dir)
	if err != nil {
		return nil, err
	}
	if len(cfg.Resources) != len(files) {
		return nil, errors.CardinalityMismatch("resources", len(files), len(cfg.Resources))
	}
	if len(cfg.Versions) != len(files) {
		return nil, errors.CardinalityMismatch("versions", len(files), len(cfg.Versions))
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for i, path := range files {
		evs, err := cfg.parseFile(ctx, path, i, loc, o)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	o.logger.Debug("parsed blueprism logs", "dir", dir, "files", len(files), "events", len(events))
	return model.NewLog(events), nil
}

func (c BluePrismConfig) parseFile(ctx context.Context, path string, idx int, loc *time.Location, o options) ([]model.Event, error) {
	f, r, err := openCSV(path, delimiter(c.Delimiter, ','))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if err != nil {
		return nil, errors.MalformedRecord(path, 1, err)
	}
	cols := columnIndex(header)
	if _, err := c.normalizer().Bind(headerNames(header)); err != nil {
		return nil, err
	}

	layout := &rowLayout{
		source:        path,
		caseID:        caseNumber(idx),
		caseCol:       -1,
		activity:      cols[c.ActivityColumn],
		start:         cols[c.StartColumn],
		end:           cols[c.EndColumn],
		success:       cols[c.SuccessColumn],
		resourceCol:   -1,
		correlation:   indexOr(cols, c.CorrelationColumn),
		correlationAs: c.CorrelationAttribute,
		failure:       c.FailureMarker,
		layout:        c.TimestampLayout,
		loc:           loc,
		resource:      c.Resources[idx],
		processName:   c.ProcessName,
		version:       c.Versions[idx],
	}
	return collectRows(ctx, r, layout, 1, o)
}
