package xes

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/internal/model"
)

func sampleLog() *model.Log {
	berlin := time.FixedZone("CET", 3600)
	base := time.Date(2021, 2, 1, 8, 0, 0, 123456789, berlin)
	ev := func(caseID, act, id string, offset time.Duration, lc model.Lifecycle, success bool) model.Event {
		return model.Event{
			CaseID:         caseID,
			Activity:       act,
			EventID:        id,
			Resource:       "Robot & Co <1>",
			ProcessName:    "Invoices",
			ProcessVersion: "1.0.3",
			Timestamp:      base.Add(offset),
			Success:        success,
			Lifecycle:      lc,
		}
	}
	events := []model.Event{
		ev("job-1", "Open \"invoice\"", "e1", 0, model.LifecycleStart, true),
		ev("job-1", "Open \"invoice\"", "e2", time.Second, model.LifecycleComplete, true),
		ev("job-2", "Book\ninvoice", "e3", 2*time.Second, model.LifecycleComplete, false),
	}
	events[0].SetAttr("businessActivityId", "ev-7", model.AttrTypeString)
	events[1].SetAttr("businessActivityId", "ev-7", model.AttrTypeString)
	events[2].SetAttr("amount", "12.5", model.AttrTypeFloat)
	return model.NewLog(events)
}

func TestRoundTrip(t *testing.T) {
	in := sampleLog()

	var buf bytes.Buffer
	require.NoError(t, NewWriter(WriterOptions{}).Write(&buf, in))

	out, err := NewReader(DefaultKeys()).Read(context.Background(), &buf)
	require.NoError(t, err)
	require.Equal(t, in.Len(), out.Len())

	for i := range in.Events {
		want, got := in.Events[i], out.Events[i]
		assert.Equal(t, want.CaseID, got.CaseID)
		assert.Equal(t, want.Activity, got.Activity)
		assert.Equal(t, want.EventID, got.EventID)
		assert.Equal(t, want.Resource, got.Resource)
		assert.Equal(t, want.ProcessName, got.ProcessName)
		assert.Equal(t, want.ProcessVersion, got.ProcessVersion)
		assert.Equal(t, want.Success, got.Success)
		assert.Equal(t, want.Lifecycle, got.Lifecycle)
		assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", want.Timestamp, got.Timestamp)
		_, wantOff := want.Timestamp.Zone()
		_, gotOff := got.Timestamp.Zone()
		assert.Equal(t, wantOff, gotOff, "offset survives")
		assert.Equal(t, want.Attributes, got.Attributes)
	}
}

func TestMergedExport(t *testing.T) {
	in := sampleLog()
	in.Events[0].Bot = true

	path := filepath.Join(t.TempDir(), "merged.xes")
	require.NoError(t, NewWriter(WriterOptions{TraceIDKey: "caseId", IncludeBot: true}).WriteFile(path, in))

	keys := DefaultKeys()
	keys.TraceID = "caseId"
	out, err := NewReader(keys).ReadFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, "job-1", out.Events[0].CaseID)
	assert.True(t, out.Events[0].Bot)
	assert.False(t, out.Events[1].Bot)
	_, dup := out.Events[0].Attr("caseId")
	assert.False(t, dup, "trace id key is not duplicated as an attribute")
}

func TestWriterGroupsTraces(t *testing.T) {
	in := sampleLog()
	// interleave: job-2 event between two job-1 events
	in.Events[1], in.Events[2] = in.Events[2], in.Events[1]

	var buf bytes.Buffer
	require.NoError(t, NewWriter(WriterOptions{}).Write(&buf, in))
	assert.Equal(t, 2, strings.Count(buf.String(), "<trace>"))

	out, err := NewReader(Keys{}).Read(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{out.Events[0].EventID, out.Events[1].EventID, out.Events[2].EventID})
}

func TestReadBusinessLog(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<log xes.version="1.0">
	<global scope="event"><string key="concept:name" value="__INVALID__"/></global>
	<trace>
		<string key="concept:name" value="T1"/>
		<string key="channel" value="mail"/>
		<event>
			<string key="concept:name" value="Receive invoice"/>
			<string key="docid_uuid" value="doc-1"/>
			<string key="eventid" value="100"/>
			<date key="time:timestamp" value="2021-02-01T08:00:00.000+01:00"/>
			<string key="lifecycle:transition" value="complete"/>
		</event>
	</trace>
</log>`
	keys := Keys{TraceID: "docid_uuid", EventID: "eventid"}
	out, err := NewReader(keys).Read(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())

	ev := out.Events[0]
	assert.Equal(t, "doc-1", ev.CaseID)
	assert.Equal(t, "100", ev.EventID)
	assert.Equal(t, "Receive invoice", ev.Activity)
	assert.True(t, ev.Success, "absent success reads as true")
	assert.False(t, ev.Bot)
	channel, ok := ev.Attr("case:channel")
	require.True(t, ok)
	assert.Equal(t, "mail", channel)
}

func TestReadRejectsBadTimestamp(t *testing.T) {
	doc := `<log><trace><string key="concept:name" value="T"/><event><date key="time:timestamp" value="yesterday"/></event></trace></log>`
	_, err := NewReader(Keys{}).Read(context.Background(), strings.NewReader(doc))
	require.Error(t, err)
}
