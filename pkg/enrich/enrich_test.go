package enrich

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/internal/model"
)

var t0 = time.Date(2021, 2, 1, 8, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	if sec < 0 {
		return time.Time{}
	}
	return t0.Add(time.Duration(sec) * time.Second)
}

func iv(caseID, act string, start, end int, bot bool) model.Event {
	return model.Event{CaseID: caseID, Activity: act, StartTimestamp: at(start), EndTimestamp: at(end), Bot: bot, Success: true}
}

func TestEnrichIntervals(t *testing.T) {
	in := model.NewLog([]model.Event{
		iv("T1", "A", 0, 10, false),
		iv("T1", "B", 12, 20, true),
		iv("T1", "C", 25, 30, false),
		iv("T2", "A", 100, 110, true),
	})
	out := New().Enrich(in)
	require.Equal(t, 4, out.Len())

	first := out.Events[0].Derived
	assert.True(t, first.InTrace)
	assert.True(t, first.IsFirstEventInTrace)
	assert.Equal(t, "A,B,C", first.Path)
	assert.Equal(t, at(0), first.TraceStart)
	assert.Equal(t, at(30), first.TraceEnd)
	assert.Equal(t, model.NullDuration{Duration: 30 * time.Second, Valid: true}, first.TraceExecutionTime)
	assert.Equal(t, 20*time.Second, first.TimeUntilEnd)
	assert.Equal(t, 10*time.Second, first.ActExeTime.Duration)
	assert.False(t, first.ActExeTimeApprox.Valid, "undefined on the first event of a trace")
	assert.Equal(t, model.FollowedByBot, first.FollowedBy)

	second := out.Events[1].Derived
	assert.False(t, second.IsFirstEventInTrace)
	assert.Equal(t, model.NullDuration{Duration: 12 * time.Second, Valid: true}, second.ActExeTimeApprox)
	assert.Equal(t, model.FollowedByHuman, second.FollowedBy)

	third := out.Events[2].Derived
	assert.Equal(t, time.Duration(0), third.TimeUntilEnd)
	assert.Equal(t, model.FollowedByEnd, third.FollowedBy)

	last := out.Events[3].Derived
	assert.True(t, last.IsFirstEventInTrace)
	assert.Equal(t, "A", last.Path)
	assert.Equal(t, model.FollowedByEnd, last.FollowedBy)

	assert.False(t, in.Events[0].Derived.InTrace, "input is not modified")
}

func TestEnrichCompleteOnly(t *testing.T) {
	in := model.NewLog([]model.Event{
		iv("T1", "A", -1, 5, false),
		iv("T1", "B", -1, 9, false),
		iv("T1", "C", -1, 20, false),
	})
	out := New().Enrich(in)

	d := out.Events[0].Derived
	assert.Equal(t, at(5), d.TraceStart, "falls back to the earliest end")
	assert.Equal(t, at(20), d.TraceEnd)
	assert.False(t, d.ActExeTime.Valid)
	assert.Equal(t, 15*time.Second, d.TimeUntilEnd)

	assert.Equal(t, model.NullDuration{Duration: 4 * time.Second, Valid: true}, out.Events[1].Derived.ActExeTimeApprox)
	assert.Equal(t, model.NullDuration{Duration: 11 * time.Second, Valid: true}, out.Events[2].Derived.ActExeTimeApprox)
}

func TestEnrichStartOnly(t *testing.T) {
	in := model.NewLog([]model.Event{
		iv("T1", "A", 0, -1, false),
		iv("T1", "B", 7, -1, false),
	})
	out := New().Enrich(in)

	d := out.Events[0].Derived
	assert.Equal(t, at(0), d.TraceStart)
	assert.Equal(t, at(7), d.TraceEnd, "falls back to the latest start")
	assert.Equal(t, 7*time.Second, d.TimeUntilEnd)
	assert.Equal(t, model.NullDuration{Duration: 7 * time.Second, Valid: true}, out.Events[1].Derived.ActExeTimeApprox)
}

func TestEnrichEventsWithoutTrace(t *testing.T) {
	in := model.NewLog([]model.Event{
		iv("T1", "A", 0, 1, false),
		iv("nan", "B", 2, 3, true),
		iv("", "C", 4, 5, false),
	})
	out := New().Enrich(in)

	assert.Equal(t, model.FollowedByEnd, out.Events[0].Derived.FollowedBy)
	for _, ev := range out.Events[1:] {
		assert.False(t, ev.Derived.InTrace)
		assert.Empty(t, ev.Derived.Path)
		assert.Zero(t, ev.Derived.TimeUntilEnd)
		assert.Equal(t, model.FollowedByEnd, ev.Derived.FollowedBy)
	}
}

func TestEnrichProgress(t *testing.T) {
	var events []model.Event
	for i := 0; i < 250; i++ {
		events = append(events, iv(fmt.Sprintf("T%d", i), "A", i, i+1, false))
	}
	var calls []int
	New(WithProgress(100, func(done, total int) {
		assert.Equal(t, 250, total)
		calls = append(calls, done)
	})).Enrich(model.NewLog(events))
	assert.Equal(t, []int{100, 200, 250}, calls)
}
