// Package enrich derives per-trace and per-event columns from an interval
// event table: path, trace bounds, time until the trace ends, activity
// execution times and who performs the next event.
package enrich

import (
	"log/slog"
	"strings"
	"time"

	"github.com/rpaflow/rpaflow/internal/model"
)

// PathSeparator joins activity names into a trace path.
const PathSeparator = ","

// ProgressFunc receives the number of traces processed.
type ProgressFunc func(done, total int)

// Option configures an Enricher.
type Option func(*Enricher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProgress reports progress every `every` traces.
func WithProgress(every int, fn ProgressFunc) Option {
	return func(e *Enricher) {
		e.progress = fn
		e.every = every
	}
}

// Enricher computes model.Derived for every event.
type Enricher struct {
	logger   *slog.Logger
	progress ProgressFunc
	every    int
}

// New creates an Enricher.
func New(opts ...Option) *Enricher {
	e := &Enricher{logger: slog.Default(), every: 100}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type bounds struct {
	start, end time.Time
	path       string
}

// Enrich returns a copy of log with Derived filled in. Row order is kept;
// traces are the groups of rows sharing a valid case id, in table order.
func (e *Enricher) Enrich(log *model.Log) *model.Log {
	out := log.Clone()
	ids, rows := out.CaseOrder()

	traces := make(map[string]bounds, len(ids))
	for n, id := range ids {
		if e.progress != nil && e.every > 0 && n > 0 && n%e.every == 0 {
			e.progress(n, len(ids))
		}
		idx := rows[id]
		names := make([]string, len(idx))
		var minStart, minEnd, maxStart, maxEnd time.Time
		for k, i := range idx {
			ev := &out.Events[i]
			names[k] = ev.Activity
			minStart = minTime(minStart, ev.StartTimestamp)
			maxStart = maxTime(maxStart, ev.StartTimestamp)
			minEnd = minTime(minEnd, ev.EndTimestamp)
			maxEnd = maxTime(maxEnd, ev.EndTimestamp)
		}
		b := bounds{start: minStart, end: maxEnd, path: strings.Join(names, PathSeparator)}
		if b.start.IsZero() {
			b.start = minEnd
		}
		if b.end.IsZero() {
			b.end = maxStart
		}
		traces[id] = b
		out.Events[idx[0]].Derived.IsFirstEventInTrace = true
	}
	if e.progress != nil {
		e.progress(len(ids), len(ids))
	}

	useStart := false
	for i := range out.Events {
		if !out.Events[i].StartTimestamp.IsZero() {
			useStart = true
			break
		}
	}

	for i := range out.Events {
		ev := &out.Events[i]
		d := &ev.Derived
		if b, ok := traces[ev.CaseID]; ok && model.IsTraceID(ev.CaseID) {
			d.InTrace = true
			d.Path = b.path
			d.TraceStart = b.start
			d.TraceEnd = b.end
			d.TraceExecutionTime = model.Sub(b.end, b.start)

			ref := ev.EndTimestamp
			if ref.IsZero() {
				ref = ev.StartTimestamp
			}
			if tue := model.Sub(b.end, ref); tue.Valid && tue.Duration > 0 {
				d.TimeUntilEnd = tue.Duration
			}
		}

		d.ActExeTime = model.Sub(ev.EndTimestamp, ev.StartTimestamp)
		if i > 0 && !d.IsFirstEventInTrace {
			prev := &out.Events[i-1]
			if useStart {
				d.ActExeTimeApprox = model.Sub(ev.StartTimestamp, prev.StartTimestamp)
			} else {
				d.ActExeTimeApprox = model.Sub(ev.EndTimestamp, prev.EndTimestamp)
			}
		}

		d.FollowedBy = model.FollowedByEnd
		if i+1 < len(out.Events) && model.IsTraceID(ev.CaseID) {
			next := &out.Events[i+1]
			if next.CaseID == ev.CaseID {
				if next.Bot {
					d.FollowedBy = model.FollowedByBot
				} else {
					d.FollowedBy = model.FollowedByHuman
				}
			}
		}
	}
	e.logger.Debug("enriched log", "events", out.Len(), "traces", len(ids), "approx_from_start", useStart)
	return out
}

func minTime(a, b time.Time) time.Time {
	if b.IsZero() {
		return a
	}
	if a.IsZero() || b.Before(a) {
		return b
	}
	return a
}

func maxTime(a, b time.Time) time.Time {
	if b.IsZero() {
		return a
	}
	if a.IsZero() || b.After(a) {
		return b
	}
	return a
}
