package model

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"time"
)

// FollowedBy says who performs the next event of the same trace.
type FollowedBy string

const (
	FollowedByBot   FollowedBy = "bot"
	FollowedByHuman FollowedBy = "human"
	FollowedByEnd   FollowedBy = "end_of_trace"
	FollowedByUnset FollowedBy = ""
)

// PerformedBy classifies who executes an activity across the whole table.
type PerformedBy string

const (
	PerformedByManualAndBot PerformedBy = "manual_and_bot"
	PerformedByBotOnly      PerformedBy = "bot_only"
	PerformedByManualOnly   PerformedBy = "manual_only"
)

// PerformedByActivity classifies every activity by the bot flag of its rows.
func (l *Log) PerformedByActivity() map[string]PerformedBy {
	type seen struct{ bot, human bool }
	acc := make(map[string]*seen)
	for i := range l.Events {
		e := &l.Events[i]
		s := acc[e.Activity]
		if s == nil {
			s = &seen{}
			acc[e.Activity] = s
		}
		if e.Bot {
			s.bot = true
		} else {
			s.human = true
		}
	}
	out := make(map[string]PerformedBy, len(acc))
	for a, s := range acc {
		switch {
		case s.bot && s.human:
			out[a] = PerformedByManualAndBot
		case s.bot:
			out[a] = PerformedByBotOnly
		default:
			out[a] = PerformedByManualOnly
		}
	}
	return out
}

// NullDuration is a duration that may be undefined.
type NullDuration struct {
	Duration time.Duration
	Valid    bool
}

// Sub returns a-b, undefined when either side is missing.
func Sub(a, b time.Time) NullDuration {
	if a.IsZero() || b.IsZero() {
		return NullDuration{}
	}
	return NullDuration{Duration: a.Sub(b), Valid: true}
}

// Derived holds the per-trace and per-event columns computed by the
// trace enricher. InTrace is false for events without a usable case id;
// the trace-level fields are zero for them.
type Derived struct {
	InTrace             bool
	Path                string
	TraceStart          time.Time
	TraceEnd            time.Time
	TraceExecutionTime  NullDuration
	IsFirstEventInTrace bool

	TimeUntilEnd     time.Duration
	ActExeTime       NullDuration
	ActExeTimeApprox NullDuration
	FollowedBy       FollowedBy
}

// Log is the in-memory event table. Row order is meaningful: stages that
// depend on order (merge, enrichment) use the slice order as table order.
type Log struct {
	Events []Event
}

// NewLog wraps events in a Log without copying.
func NewLog(events []Event) *Log {
	return &Log{Events: events}
}

// Len returns the number of rows.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Events)
}

// Clone returns a deep copy of the table.
func (l *Log) Clone() *Log {
	out := &Log{Events: make([]Event, len(l.Events))}
	for i := range l.Events {
		out.Events[i] = l.Events[i].Clone()
	}
	return out
}

// Columns returns the set of columns present in the table. A canonical
// string column is present when at least one row has a value for it;
// boolean columns are always present; attributes are present when any row
// carries them. Order is canonical columns first, then attributes in
// first-appearance order.
func (l *Log) Columns() []string {
	var (
		cols []string
		seen = make(map[string]bool)
	)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			cols = append(cols, k)
		}
	}
	canonical := []string{KeyCaseID, KeyActivity, KeyTimestamp, KeyStartTimestamp, KeyEventID,
		KeyResource, KeyProcessName, KeyProcessVersion, KeyLifecycle}
	for _, k := range canonical {
		for i := range l.Events {
			if _, ok := l.Events[i].Value(k); ok {
				add(k)
				break
			}
		}
	}
	add(KeySuccess)
	add(KeyBot)
	for i := range l.Events {
		for _, a := range l.Events[i].Attributes {
			add(a.Key)
		}
	}
	return cols
}

// CaseOrder returns the distinct valid case ids in first-appearance order
// and, for each, the row indexes of its events in table order.
func (l *Log) CaseOrder() ([]string, map[string][]int) {
	var ids []string
	rows := make(map[string][]int)
	for i := range l.Events {
		id := l.Events[i].CaseID
		if !IsTraceID(id) {
			continue
		}
		if _, ok := rows[id]; !ok {
			ids = append(ids, id)
		}
		rows[id] = append(rows[id], i)
	}
	return ids, rows
}

// Activities returns the distinct activity names in first-appearance order.
func (l *Log) Activities() []string {
	var out []string
	seen := make(map[string]bool)
	for i := range l.Events {
		a := l.Events[i].Activity
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// Lifecycles returns the distinct lifecycle values in first-appearance order.
func (l *Log) Lifecycles() []Lifecycle {
	var out []Lifecycle
	seen := make(map[Lifecycle]bool)
	for i := range l.Events {
		lc := l.Events[i].Lifecycle
		if !seen[lc] {
			seen[lc] = true
			out = append(out, lc)
		}
	}
	return out
}

// Digest returns a stable content hash of the canonical columns, used to
// key cached measure results.
func (l *Log) Digest() string {
	h := sha256.New()
	for i := range l.Events {
		e := &l.Events[i]
		for _, s := range []string{e.CaseID, e.Activity, e.EventID, e.Resource, e.ProcessName,
			e.ProcessVersion, string(e.Lifecycle), formatTime(e.Timestamp),
			formatTime(e.StartTimestamp), formatTime(e.EndTimestamp),
			strconv.FormatBool(e.Success), strconv.FormatBool(e.Bot)} {
			io.WriteString(h, s)
			h.Write([]byte{0})
		}
		for _, a := range e.Attributes {
			io.WriteString(h, a.Key)
			h.Write([]byte{1})
			io.WriteString(h, a.Value)
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
