// Package model defines the canonical event table shared by every stage of
// the RPA log pipeline.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Canonical attribute keys. These are the names used on the XES boundary and
// the names the merger, normalizer and measures use to address columns.
const (
	KeyCaseID         = "case:concept:name"
	KeyActivity       = "concept:name"
	KeyTimestamp      = "time:timestamp"
	KeyStartTimestamp = "start_timestamp"
	KeyResource       = "org:resource"
	KeyLifecycle      = "lifecycle:transition"
	KeyEventID        = "eventId"
	KeyProcessName    = "botProcessName"
	KeyProcessVersion = "botProcessVersionNumber"
	KeySuccess        = "success"
	KeyBot            = "bot"
)

// TimestampLayout is the serialization layout for timestamps on every
// text boundary (XES, tables). It keeps nanoseconds and the zone offset.
const TimestampLayout = time.RFC3339Nano

// Lifecycle is the lifecycle:transition value of an event.
type Lifecycle string

const (
	LifecycleStart    Lifecycle = "start"
	LifecycleComplete Lifecycle = "complete"
	LifecycleAbort    Lifecycle = "ate:abort"
)

// Event is one row of the canonical event table.
//
// Before interval conversion an event carries a single Timestamp. After
// conversion Timestamp is zero and StartTimestamp / EndTimestamp hold the
// interval; either side may be zero (missing).
type Event struct {
	CaseID         string
	Activity       string
	EventID        string
	Resource       string
	ProcessName    string
	ProcessVersion string

	Timestamp      time.Time
	StartTimestamp time.Time
	EndTimestamp   time.Time

	Success   bool
	Lifecycle Lifecycle

	// Bot marks events that originate from a bot log.
	Bot bool

	// Attributes holds every non-canonical column, including the
	// correlation attribute used by the merger.
	Attributes []Attribute

	// Derived is filled by the trace enricher.
	Derived Derived
}

// Attribute represents a key-value pair for event metadata.
type Attribute struct {
	Key   string
	Value string
	Type  AttrType
}

// AttrType indicates the semantic type of an attribute value.
type AttrType uint8

const (
	AttrTypeString AttrType = iota
	AttrTypeInt
	AttrTypeFloat
	AttrTypeBool
	AttrTypeTimestamp
)

// Attr returns the value of a non-canonical attribute.
func (e *Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets a non-canonical attribute, replacing any previous value.
func (e *Event) SetAttr(key, value string, typ AttrType) {
	for i := range e.Attributes {
		if e.Attributes[i].Key == key {
			e.Attributes[i].Value = value
			e.Attributes[i].Type = typ
			return
		}
	}
	e.Attributes = append(e.Attributes, Attribute{Key: key, Value: value, Type: typ})
}

// DeleteAttr removes a non-canonical attribute.
func (e *Event) DeleteAttr(key string) {
	for i := range e.Attributes {
		if e.Attributes[i].Key == key {
			e.Attributes = append(e.Attributes[:i], e.Attributes[i+1:]...)
			return
		}
	}
}

// Value resolves any column, canonical or not, to its string form.
// The second result is false when the column is absent for this event.
func (e *Event) Value(key string) (string, bool) {
	switch key {
	case KeyCaseID:
		return e.CaseID, e.CaseID != ""
	case KeyActivity:
		return e.Activity, e.Activity != ""
	case KeyEventID:
		return e.EventID, e.EventID != ""
	case KeyResource:
		return e.Resource, e.Resource != ""
	case KeyProcessName:
		return e.ProcessName, e.ProcessName != ""
	case KeyProcessVersion:
		return e.ProcessVersion, e.ProcessVersion != ""
	case KeyLifecycle:
		return string(e.Lifecycle), e.Lifecycle != ""
	case KeyTimestamp:
		return formatTime(e.Timestamp), !e.Timestamp.IsZero()
	case KeyStartTimestamp:
		return formatTime(e.StartTimestamp), !e.StartTimestamp.IsZero()
	case KeySuccess:
		return strconv.FormatBool(e.Success), true
	case KeyBot:
		return strconv.FormatBool(e.Bot), true
	}
	return e.Attr(key)
}

// Set assigns a column by key. Canonical keys update the typed fields;
// anything else becomes a string attribute. Boolean and timestamp columns
// that fail to parse are left unchanged and reported as false.
func (e *Event) Set(key, value string) bool {
	switch key {
	case KeyCaseID:
		e.CaseID = value
	case KeyActivity:
		e.Activity = value
	case KeyEventID:
		e.EventID = value
	case KeyResource:
		e.Resource = value
	case KeyProcessName:
		e.ProcessName = value
	case KeyProcessVersion:
		e.ProcessVersion = value
	case KeyLifecycle:
		e.Lifecycle = Lifecycle(value)
	case KeyTimestamp, KeyStartTimestamp:
		t, err := time.Parse(TimestampLayout, value)
		if err != nil {
			return false
		}
		if key == KeyTimestamp {
			e.Timestamp = t
		} else {
			e.StartTimestamp = t
		}
	case KeySuccess, KeyBot:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false
		}
		if key == KeySuccess {
			e.Success = b
		} else {
			e.Bot = b
		}
	default:
		e.SetAttr(key, value, AttrTypeString)
	}
	return true
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() Event {
	c := *e
	if e.Attributes != nil {
		c.Attributes = make([]Attribute, len(e.Attributes))
		copy(c.Attributes, e.Attributes)
	}
	return c
}

// IsTraceID reports whether id identifies a trace. Empty ids and the
// textual "nan" left behind by dataframe exports do not.
func IsTraceID(id string) bool {
	return id != "" && !strings.EqualFold(id, "nan")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}
