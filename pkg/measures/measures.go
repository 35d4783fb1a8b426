// Package measures computes RPA analysis measures over an enriched event
// table.
//
// Graphical measures produce a label, a value and a fill color per
// activity, to be drawn on a directly-follows graph. Tabular measures
// produce a table with one row per path or activity.
package measures

import (
	"log/slog"
	"sort"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/colorize"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

// Kind separates graph-decorating measures from table measures.
type Kind string

const (
	KindGraphical Kind = "graphical"
	KindTabular   Kind = "tabular"
)

// Measure names.
const (
	RelativeFails                       = "relative_fails"
	ExceptionTimeImpact                 = "exception_time_impact"
	ExceptionTimeVariance               = "exception_time_variance"
	RelativeExecutionTime               = "relative_execution_time"
	ExecutionTimeVariance               = "execution_time_variance"
	BotHumanHandoverCount               = "bot_human_handover_count"
	BotHumanHandoverImpact              = "bot_human_handover_impact"
	BotHumanHandoverVariance            = "bot_human_handover_variance"
	RelativeCaseFails                   = "relative_case_fails"
	AutomationRate                      = "automation_rate"
	CaseActivitiesExecutionTime         = "case_activities_execution_time"
	CaseActivitiesExecutionTimeVariance = "case_activities_execution_time_variance"
)

// DefaultRoundDecimals is the number of decimals in percentage output.
const DefaultRoundDecimals = 2

// Options tune a measure run.
type Options struct {
	RoundDecimals int
	Logger        *slog.Logger
	// Progress is called every 100 paths by the per-path tabular measures.
	Progress func(done, total int)
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{RoundDecimals: DefaultRoundDecimals}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Node is the decoration of one activity.
type Node struct {
	Activity    string            `json:"activity"`
	Label       string            `json:"label"`
	Color       string            `json:"color"`
	Value       colorize.Value    `json:"value"`
	Intensity   float64           `json:"intensity"`
	PerformedBy model.PerformedBy `json:"performed_by"`
}

// Table is a tabular measure result. Rows hold formatted cells; an empty
// cell means the row has no value for that column.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Result is the output of one measure.
type Result struct {
	Measure string `json:"measure"`
	Title   string `json:"title"`
	Kind    Kind   `json:"kind"`
	Nodes   []Node `json:"nodes,omitempty"`
	Table   *Table `json:"table,omitempty"`
}

// Labels returns the node labels keyed by activity.
func (r *Result) Labels() map[string]string {
	out := make(map[string]string, len(r.Nodes))
	for _, n := range r.Nodes {
		out[n.Activity] = n.Label
	}
	return out
}

// Colors returns the node fill colors keyed by activity.
func (r *Result) Colors() map[string]string {
	out := make(map[string]string, len(r.Nodes))
	for _, n := range r.Nodes {
		out[n.Activity] = n.Color
	}
	return out
}

type measureFunc func(t *table, opts Options) *Result

type entry struct {
	kind  Kind
	title string
	fn    measureFunc
}

var registry = map[string]entry{
	RelativeFails:                       {KindGraphical, "relative fails", relativeFails},
	ExceptionTimeImpact:                 {KindGraphical, "exception time impact", exceptionTimeImpact},
	ExceptionTimeVariance:               {KindGraphical, "exception time variance", exceptionTimeVariance},
	RelativeExecutionTime:               {KindGraphical, "relative execution time", relativeExecutionTime},
	ExecutionTimeVariance:               {KindGraphical, "execution time variance", executionTimeVariance},
	BotHumanHandoverCount:               {KindGraphical, "bot human handover count", handoverCount},
	BotHumanHandoverImpact:              {KindGraphical, "bot human handover impact", handoverImpact},
	BotHumanHandoverVariance:            {KindGraphical, "bot human handover variance", handoverVariance},
	RelativeCaseFails:                   {KindTabular, "relative case fails", relativeCaseFails},
	AutomationRate:                      {KindTabular, "automation rate", automationRate},
	CaseActivitiesExecutionTime:         {KindTabular, "case activities execution time", caseActivitiesMean},
	CaseActivitiesExecutionTimeVariance: {KindTabular, "case activities execution time variance", caseActivitiesStd},
}

var order = []string{
	RelativeFails, ExceptionTimeImpact, ExceptionTimeVariance, RelativeExecutionTime,
	ExecutionTimeVariance, BotHumanHandoverCount, BotHumanHandoverImpact, BotHumanHandoverVariance,
	RelativeCaseFails, AutomationRate, CaseActivitiesExecutionTime, CaseActivitiesExecutionTimeVariance,
}

// Names returns every measure name, graphical ones first.
func Names() []string {
	return append([]string(nil), order...)
}

// KindOf returns the kind of a measure.
func KindOf(name string) (Kind, error) {
	e, ok := registry[name]
	if !ok {
		return "", errors.UndefinedMeasure(name)
	}
	return e.kind, nil
}

// Apply computes a measure over an enriched log. Unknown names return an
// UndefinedMeasure error without computing anything.
func Apply(name string, log *model.Log, opts Options) (*Result, error) {
	e, ok := registry[name]
	if !ok {
		return nil, errors.UndefinedMeasure(name)
	}
	if opts.RoundDecimals < 0 {
		return nil, errors.Newf(errors.CodeInvalidArgument, "round decimals must not be negative, got %d", opts.RoundDecimals)
	}
	res := e.fn(newTable(log), opts)
	res.Measure = name
	res.Title = e.title
	res.Kind = e.kind
	opts.logger().Debug("measure applied", "measure", name, "nodes", len(res.Nodes), "rows", rowCount(res))
	return res, nil
}

func rowCount(r *Result) int {
	if r.Table == nil {
		return 0
	}
	return len(r.Table.Rows)
}

// table indexes an enriched log by activity and path.
type table struct {
	log        *model.Log
	activities []string
	byActivity map[string][]int
	performed  map[string]model.PerformedBy
}

func newTable(log *model.Log) *table {
	t := &table{
		log:        log,
		activities: log.Activities(),
		byActivity: make(map[string][]int),
		performed:  log.PerformedByActivity(),
	}
	for i := range log.Events {
		a := log.Events[i].Activity
		t.byActivity[a] = append(t.byActivity[a], i)
	}
	return t
}

func (t *table) event(i int) *model.Event { return &t.log.Events[i] }

// paths returns the distinct paths of traced rows in first-appearance
// order, with their row indexes.
func (t *table) paths() ([]string, map[string][]int) {
	var order []string
	rows := make(map[string][]int)
	for i := range t.log.Events {
		d := &t.log.Events[i].Derived
		if !d.InTrace {
			continue
		}
		if _, ok := rows[d.Path]; !ok {
			order = append(order, d.Path)
		}
		rows[d.Path] = append(rows[d.Path], i)
	}
	return order, rows
}

// graphical assembles nodes from per-activity values and labels.
func (t *table) graphical(values map[string]colorize.Value, labels map[string]string, fixed *float64) *Result {
	intensities := colorize.Intensities(values)
	if fixed != nil {
		for _, a := range t.activities {
			intensities[a] = *fixed
		}
	}
	colors := colorize.Colors(t.performed, intensities)
	res := &Result{Nodes: make([]Node, 0, len(t.activities))}
	for _, a := range t.activities {
		in := intensities[a]
		p := t.performed[a]
		res.Nodes = append(res.Nodes, Node{
			Activity:    a,
			Label:       a + "\n" + labels[a],
			Color:       colors[a],
			Value:       values[a],
			Intensity:   in,
			PerformedBy: p,
		})
	}
	return res
}

// sortDescending orders rows by the numeric value of column col, highest
// first, keeping table order for ties.
func sortDescending(rows [][]string, col int) {
	sort.SliceStable(rows, func(i, j int) bool {
		return parseCell(rows[i][col]) > parseCell(rows[j][col])
	})
}

func progress(opts Options, done, total int) {
	if opts.Progress != nil && done%100 == 0 {
		opts.Progress(done, total)
	}
}
