package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValueAndSet(t *testing.T) {
	var ev Event
	ts := time.Date(2021, 3, 4, 10, 0, 0, 500, time.FixedZone("CET", 3600))

	assert.True(t, ev.Set(KeyCaseID, "c1"))
	assert.True(t, ev.Set(KeyTimestamp, ts.Format(TimestampLayout)))
	assert.True(t, ev.Set(KeySuccess, "false"))
	assert.True(t, ev.Set("channel", "mail"))
	assert.False(t, ev.Set(KeyBot, "maybe"))
	assert.False(t, ev.Set(KeyStartTimestamp, "yesterday"))

	assert.Equal(t, "c1", ev.CaseID)
	assert.True(t, ts.Equal(ev.Timestamp))
	assert.False(t, ev.Success)

	v, ok := ev.Value(KeyTimestamp)
	require.True(t, ok)
	assert.Equal(t, "2021-03-04T10:00:00.0000005+01:00", v)

	_, ok = ev.Value(KeyResource)
	assert.False(t, ok)
	v, ok = ev.Value("channel")
	assert.True(t, ok)
	assert.Equal(t, "mail", v)
}

func TestAttributes(t *testing.T) {
	var ev Event
	ev.SetAttr("a", "1", AttrTypeInt)
	ev.SetAttr("b", "x", AttrTypeString)
	ev.SetAttr("a", "2", AttrTypeInt)
	assert.Len(t, ev.Attributes, 2)

	c := ev.Clone()
	c.SetAttr("b", "changed", AttrTypeString)
	v, _ := ev.Attr("b")
	assert.Equal(t, "x", v, "clone does not share attributes")

	ev.DeleteAttr("a")
	_, ok := ev.Attr("a")
	assert.False(t, ok)
}

func TestIsTraceID(t *testing.T) {
	assert.True(t, IsTraceID("0"))
	assert.False(t, IsTraceID(""))
	assert.False(t, IsTraceID("NaN"))
}

func TestLogOrderHelpers(t *testing.T) {
	log := NewLog([]Event{
		{CaseID: "b", Activity: "X", Lifecycle: LifecycleStart},
		{CaseID: "", Activity: "Y", Lifecycle: LifecycleComplete},
		{CaseID: "a", Activity: "X", Lifecycle: LifecycleComplete},
		{CaseID: "b", Activity: "Z", Lifecycle: LifecycleStart, Bot: true},
	})

	ids, rows := log.CaseOrder()
	assert.Equal(t, []string{"b", "a"}, ids)
	assert.Equal(t, []int{0, 3}, rows["b"])
	assert.Equal(t, []string{"X", "Y", "Z"}, log.Activities())
	assert.Equal(t, []Lifecycle{LifecycleStart, LifecycleComplete}, log.Lifecycles())
	assert.Equal(t, []string{KeyCaseID, KeyActivity, KeyLifecycle, KeySuccess, KeyBot}, log.Columns())

	assert.Equal(t, map[string]PerformedBy{
		"X": PerformedByManualOnly,
		"Y": PerformedByManualOnly,
		"Z": PerformedByBotOnly,
	}, log.PerformedByActivity())
}

func TestDigest(t *testing.T) {
	a := NewLog([]Event{{CaseID: "c", Activity: "A"}})
	b := a.Clone()
	assert.Equal(t, a.Digest(), b.Digest())

	b.Events[0].SetAttr("k", "v", AttrTypeString)
	assert.NotEqual(t, a.Digest(), b.Digest())
	assert.Zero(t, (*Log)(nil).Len())
}

func TestSub(t *testing.T) {
	t0 := time.Unix(100, 0)
	assert.Equal(t, NullDuration{Duration: 5 * time.Second, Valid: true}, Sub(t0.Add(5*time.Second), t0))
	assert.False(t, Sub(time.Time{}, t0).Valid)
}
