package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/internal/model"
)

var t0 = time.Date(2021, 2, 1, 8, 0, 0, 0, time.UTC)

func ev(caseID, act string, sec int, lc model.Lifecycle) model.Event {
	return model.Event{CaseID: caseID, Activity: act, EventID: act + caseID, Timestamp: t0.Add(time.Duration(sec) * time.Second), Lifecycle: lc, Success: true}
}

func TestConvertPaired(t *testing.T) {
	in := model.NewLog([]model.Event{
		ev("c1", "A", 0, model.LifecycleStart),
		ev("c1", "B", 1, model.LifecycleStart),
		ev("c1", "B", 3, model.LifecycleComplete),
		ev("c1", "A", 5, model.LifecycleComplete),
		ev("c1", "C", 6, model.LifecycleStart),    // unmatched
		ev("c2", "A", 7, model.LifecycleComplete), // unmatched
		ev("c2", "A", 8, model.LifecycleAbort),
	})

	res := NewConverter(nil).Convert(in)
	assert.Equal(t, ModePaired, res.Mode)
	require.Equal(t, 2, res.Log.Len())
	assert.Equal(t, 3, res.Dropped)

	a, b := res.Log.Events[0], res.Log.Events[1]
	assert.Equal(t, "A", a.Activity, "trace ordered by start")
	assert.Equal(t, t0, a.StartTimestamp)
	assert.Equal(t, t0.Add(5*time.Second), a.EndTimestamp)
	assert.True(t, a.Timestamp.IsZero())
	assert.Equal(t, "B", b.Activity)
	assert.Equal(t, 2*time.Second, b.EndTimestamp.Sub(b.StartTimestamp))

	assert.False(t, in.Events[0].Timestamp.IsZero(), "input is not modified")
}

func TestConvertPairsFirstInFirstOut(t *testing.T) {
	in := model.NewLog([]model.Event{
		ev("c1", "A", 0, model.LifecycleStart),
		ev("c1", "A", 1, model.LifecycleStart),
		ev("c1", "A", 2, model.LifecycleComplete),
		ev("c1", "A", 4, model.LifecycleComplete),
	})
	res := NewConverter(nil).Convert(in)
	require.Equal(t, 2, res.Log.Len())
	assert.Equal(t, t0, res.Log.Events[0].StartTimestamp)
	assert.Equal(t, t0.Add(2*time.Second), res.Log.Events[0].EndTimestamp)
	assert.Equal(t, t0.Add(1*time.Second), res.Log.Events[1].StartTimestamp)
	assert.Equal(t, t0.Add(4*time.Second), res.Log.Events[1].EndTimestamp)
}

func TestConvertSplit(t *testing.T) {
	tests := []struct {
		name      string
		lifecycle model.Lifecycle
		wantStart bool
	}{
		{"start only", model.LifecycleStart, true},
		{"complete only", model.LifecycleComplete, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := model.NewLog([]model.Event{
				ev("c1", "A", 0, tt.lifecycle),
				ev("c1", "B", 1, model.LifecycleAbort),
				ev("c1", "C", 2, tt.lifecycle),
			})
			res := NewConverter(nil).Convert(in)
			assert.Equal(t, ModeSplit, res.Mode)
			require.Equal(t, 2, res.Log.Len())
			assert.Equal(t, 1, res.Dropped)
			for _, e := range res.Log.Events {
				assert.True(t, e.Timestamp.IsZero())
				assert.Equal(t, tt.wantStart, !e.StartTimestamp.IsZero())
				assert.Equal(t, !tt.wantStart, !e.EndTimestamp.IsZero())
			}
		})
	}
}

func TestConvertNeitherStartNorComplete(t *testing.T) {
	in := model.NewLog([]model.Event{
		ev("c1", "A", 0, model.LifecycleAbort),
		ev("c1", "B", 1, "schedule"),
	})
	res := NewConverter(nil).Convert(in)
	assert.Equal(t, ModeEmpty, res.Mode)
	assert.Equal(t, 0, res.Log.Len())
	assert.Equal(t, 2, res.Dropped)
}
