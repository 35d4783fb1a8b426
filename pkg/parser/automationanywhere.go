package parser

import (
	"context"
	"time"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

// AutomationAnywhereConfig describes a directory of headerless,
// semicolon-delimited Automation Anywhere task logs. Columns names the
// fields positionally; the other column settings refer to those names.
type AutomationAnywhereConfig struct {
	Columns              []string `yaml:"columns"`
	ActivityColumn       string   `yaml:"activity_column"`
	StartColumn          string   `yaml:"start_column"`
	EndColumn            string   `yaml:"end_column"`
	SuccessColumn        string   `yaml:"success_column"`
	CaseIDColumn         string   `yaml:"case_id_column"`
	ResourceColumn       string   `yaml:"resource_column"`
	CorrelationColumn    string   `yaml:"correlation_column"`
	CorrelationAttribute string   `yaml:"correlation_attribute"`
	FailureMarker        string   `yaml:"failure_marker"`
	TimestampLayout      string   `yaml:"timestamp_layout"`
	Timezone             string   `yaml:"timezone"`
	Delimiter            string   `yaml:"delimiter"`
	ProcessName          string   `yaml:"process_name"`
	ProcessVersion       string   `yaml:"process_version"`
}

// DefaultAutomationAnywhereConfig returns the layout of an Automation
// Anywhere task log export.
func DefaultAutomationAnywhereConfig() AutomationAnywhereConfig {
	return AutomationAnywhereConfig{
		Columns:              []string{"Timestamp", "Task", "Action", "Status", "Machine"},
		ActivityColumn:       "Action",
		StartColumn:          "Timestamp",
		SuccessColumn:        "Status",
		ResourceColumn:       "Machine",
		CorrelationAttribute: "businessActivityId",
		FailureMarker:        "ERROR",
		TimestampLayout:      "(2006-01-02 15:04:05)",
		Timezone:             "UTC",
		Delimiter:            ";",
	}
}

func (c AutomationAnywhereConfig) normalizer() *Normalizer {
	rules := []Rule{
		{RoleActivity, Exact(c.ActivityColumn)},
		{RoleStartTimestamp, Exact(c.StartColumn)},
		{RoleSuccess, Exact(c.SuccessColumn)},
	}
	if c.EndColumn != "" {
		rules = append(rules, Rule{RoleEndTimestamp, Exact(c.EndColumn)})
	}
	if c.CaseIDColumn != "" {
		rules = append(rules, Rule{RoleCaseID, Exact(c.CaseIDColumn)})
	}
	if c.ResourceColumn != "" {
		rules = append(rules, Rule{RoleResource, Exact(c.ResourceColumn)})
	}
	if c.CorrelationColumn != "" {
		rules = append(rules, Rule{RoleCorrelation, Exact(c.CorrelationColumn)})
	}
	return &Normalizer{Chain: rules}
}

// ParseAutomationAnywhere parses every CSV in dir. Without a case id column
// each file is one trace numbered by its zero-based position.
func ParseAutomationAnywhere(ctx context.Context, dir string, cfg AutomationAnywhereConfig, opts ...Option) (*model.Log, error) {
	o := buildOptions(opts)
	if len(cfg.Columns) == 0 {
		return nil, errors.CardinalityMismatch("columns", 1, 0)
	}
	if _, err := cfg.normalizer().Bind(cfg.Columns); err != nil {
		return nil, err
	}
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	files, err := listCSV(dir)
	if err != nil {
		return nil, err
	}

	cols := columnIndex(cfg.Columns)
	var events []model.Event
	for i, path := range files {
		evs, err := cfg.parseFile(ctx, path, i, cols, loc, o)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	o.logger.Debug("parsed automation anywhere logs", "dir", dir, "files", len(files), "events", len(events))
	return model.NewLog(events), nil
}

func (c AutomationAnywhereConfig) parseFile(ctx context.Context, path string, idx int, cols map[string]int, loc *time.Location, o options) ([]model.Event, error) {
	f, r, err := openCSV(path, delimiter(c.Delimiter, ';'))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	layout := &rowLayout{
		source:        path,
		caseID:        caseNumber(idx),
		caseCol:       indexOr(cols, c.CaseIDColumn),
		activity:      cols[c.ActivityColumn],
		start:         cols[c.StartColumn],
		end:           indexOr(cols, c.EndColumn),
		success:       cols[c.SuccessColumn],
		resourceCol:   indexOr(cols, c.ResourceColumn),
		correlation:   indexOr(cols, c.CorrelationColumn),
		correlationAs: c.CorrelationAttribute,
		failure:       c.FailureMarker,
		layout:        c.TimestampLayout,
		loc:           loc,
		processName:   c.ProcessName,
		version:       c.ProcessVersion,
	}
	return collectRows(ctx, r, layout, 0, o)
}
