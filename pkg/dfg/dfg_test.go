package dfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpaflow/rpaflow/internal/model"
)

func trace(id string, acts ...string) []model.Event {
	out := make([]model.Event, len(acts))
	for i, a := range acts {
		out[i] = model.Event{CaseID: id, Activity: a}
	}
	return out
}

func TestDiscover(t *testing.T) {
	var events []model.Event
	events = append(events, trace("1", "A", "B", "C")...)
	events = append(events, trace("2", "A", "C")...)
	events = append(events, model.Event{Activity: "X"})
	g := Discover(model.NewLog(events))

	assert.Equal(t, map[Edge]int64{{"A", "B"}: 1, {"B", "C"}: 1, {"A", "C"}: 1}, g.Edges)
	assert.Equal(t, map[string]int64{"A": 2, "B": 1, "C": 2, "X": 1}, g.Activities)
	assert.Equal(t, map[string]int64{"A": 2}, g.StartActivities)
	assert.Equal(t, map[string]int64{"C": 2}, g.EndActivities)
	assert.Equal(t, []string{"A", "B", "C"}, g.Nodes())
}

func TestPrune(t *testing.T) {
	tests := []struct {
		name  string
		edges map[Edge]int64
		max   int
		want  map[Edge]int64
	}{
		{
			name:  "top by count",
			edges: map[Edge]int64{{"A", "B"}: 5, {"B", "C"}: 3, {"A", "C"}: 9},
			max:   2,
			want:  map[Edge]int64{{"A", "C"}: 9, {"A", "B"}: 5},
		},
		{
			name:  "ties keep the greater source and target",
			edges: map[Edge]int64{{"B", "A"}: 4, {"A", "C"}: 4, {"A", "B"}: 4, {"C", "A"}: 7},
			max:   3,
			want:  map[Edge]int64{{"C", "A"}: 7, {"B", "A"}: 4, {"A", "C"}: 4},
		},
		{
			name:  "tie at the limit",
			edges: map[Edge]int64{{"A", "B"}: 5, {"C", "D"}: 5, {"A", "C"}: 9},
			max:   2,
			want:  map[Edge]int64{{"A", "C"}: 9, {"C", "D"}: 5},
		},
		{
			name:  "under the limit",
			edges: map[Edge]int64{{"A", "B"}: 1},
			max:   200,
			want:  map[Edge]int64{{"A", "B"}: 1},
		},
		{
			name:  "no limit",
			edges: map[Edge]int64{{"A", "B"}: 1, {"B", "C"}: 2},
			max:   0,
			want:  map[Edge]int64{{"A", "B"}: 1, {"B", "C"}: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			for e, c := range tt.edges {
				g.Edges[e] = c
			}
			for i := 0; i < 20; i++ {
				assert.Equal(t, tt.want, g.Prune(tt.max).Edges)
			}
			assert.Len(t, g.Edges, len(tt.edges), "input is not modified")
		})
	}
}

func TestNodesWithoutEdges(t *testing.T) {
	g := Discover(model.NewLog(trace("1", "Z")))
	require.Empty(t, g.Edges)
	assert.Equal(t, []string{"Z"}, g.Nodes())
}

func TestPenwidth(t *testing.T) {
	g := New()
	g.Edges[Edge{"A", "B"}] = 1
	g.Edges[Edge{"B", "C"}] = 11
	pw := g.Penwidth()
	assert.InDelta(t, 1.0, pw[Edge{"A", "B"}], 1e-9)
	assert.InDelta(t, 2.6, pw[Edge{"B", "C"}], 1e-5)
}
