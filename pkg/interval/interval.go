// Package interval converts a lifecycle-tagged event table into interval
// records carrying a start and an end timestamp.
package interval

import (
	"log/slog"
	"sort"
	"time"

	"github.com/rpaflow/rpaflow/internal/model"
)

// Mode reports which conversion was applied.
type Mode string

const (
	// ModePaired joins each start with the next complete of the same
	// activity in the same case.
	ModePaired Mode = "paired"
	// ModeSplit keeps start-only or complete-only tables as half-open
	// intervals.
	ModeSplit Mode = "split"
	// ModeEmpty is used when the table has neither start nor complete
	// events.
	ModeEmpty Mode = "empty"
)

// Result is a converted table plus what happened to it.
type Result struct {
	Log     *model.Log
	Mode    Mode
	Dropped int
}

// Converter turns lifecycle events into intervals.
type Converter struct {
	logger *slog.Logger
}

// NewConverter creates a converter. A nil logger means slog.Default().
func NewConverter(logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{logger: logger}
}

// Convert returns a new table in interval form. The input is not modified.
//
// When both start and complete events exist they are paired per case and
// activity, first-in first-out; the interval keeps the complete event's
// attributes and traces are ordered by start time. Unpaired events and
// events with any other lifecycle are dropped.
//
// Otherwise start events become records with only a start timestamp,
// complete events records with only an end timestamp, and everything else
// is dropped.
func (c *Converter) Convert(log *model.Log) Result {
	var hasStart, hasComplete bool
	for i := range log.Events {
		switch log.Events[i].Lifecycle {
		case model.LifecycleStart:
			hasStart = true
		case model.LifecycleComplete:
			hasComplete = true
		}
	}

	var res Result
	switch {
	case hasStart && hasComplete:
		res = paired(log)
	case hasStart || hasComplete:
		res = split(log)
	default:
		res = Result{Log: model.NewLog(nil), Mode: ModeEmpty, Dropped: log.Len()}
	}
	if res.Dropped > 0 {
		c.logger.Warn("interval conversion dropped events", "mode", string(res.Mode), "count", res.Dropped)
	}
	return res
}

func split(log *model.Log) Result {
	out := make([]model.Event, 0, log.Len())
	for i := range log.Events {
		ev := log.Events[i].Clone()
		switch ev.Lifecycle {
		case model.LifecycleStart:
			ev.StartTimestamp = ev.Timestamp
		case model.LifecycleComplete:
			ev.EndTimestamp = ev.Timestamp
		default:
			continue
		}
		ev.Timestamp = time.Time{}
		out = append(out, ev)
	}
	return Result{Log: model.NewLog(out), Mode: ModeSplit, Dropped: log.Len() - len(out)}
}

func paired(log *model.Log) Result {
	ids, rows := log.CaseOrder()
	out := make([]model.Event, 0, log.Len()/2)
	for _, id := range ids {
		open := make(map[string][]int)
		var trace []model.Event
		for _, i := range rows[id] {
			ev := &log.Events[i]
			switch ev.Lifecycle {
			case model.LifecycleStart:
				open[ev.Activity] = append(open[ev.Activity], i)
			case model.LifecycleComplete:
				starts := open[ev.Activity]
				if len(starts) == 0 {
					continue
				}
				start := &log.Events[starts[0]]
				open[ev.Activity] = starts[1:]

				iv := ev.Clone()
				iv.StartTimestamp = start.Timestamp
				iv.EndTimestamp = ev.Timestamp
				iv.Timestamp = time.Time{}
				trace = append(trace, iv)
			}
		}
		sort.SliceStable(trace, func(a, b int) bool {
			return trace[a].StartTimestamp.Before(trace[b].StartTimestamp)
		})
		out = append(out, trace...)
	}
	return Result{Log: model.NewLog(out), Mode: ModePaired, Dropped: log.Len() - 2*len(out)}
}
