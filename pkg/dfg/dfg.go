// Package dfg discovers a directly-follows graph from an event table.
//
// An edge (A, B) counts how often activity B immediately follows activity A
// inside one trace. Start and end activities count how often an activity
// opens or closes a trace.
package dfg

import (
	"sort"

	"github.com/rpaflow/rpaflow/internal/model"
)

// Edge is a directly-follows pair.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// WeightedEdge is an edge with its frequency.
type WeightedEdge struct {
	Edge
	Count int64 `json:"count"`
}

// Graph is a directly-follows graph.
type Graph struct {
	Edges           map[Edge]int64
	Activities      map[string]int64
	StartActivities map[string]int64
	EndActivities   map[string]int64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		Edges:           make(map[Edge]int64),
		Activities:      make(map[string]int64),
		StartActivities: make(map[string]int64),
		EndActivities:   make(map[string]int64),
	}
}

// Discover builds the graph from a log. Traces are the rows sharing a valid
// case id, taken in table order; rows without a case id only contribute to
// activity counts.
func Discover(log *model.Log) *Graph {
	g := New()
	for i := range log.Events {
		g.Activities[log.Events[i].Activity]++
	}

	ids, rows := log.CaseOrder()
	for _, id := range ids {
		idx := rows[id]
		g.StartActivities[log.Events[idx[0]].Activity]++
		g.EndActivities[log.Events[idx[len(idx)-1]].Activity]++
		for k := 0; k+1 < len(idx); k++ {
			e := Edge{Source: log.Events[idx[k]].Activity, Target: log.Events[idx[k+1]].Activity}
			g.Edges[e]++
		}
	}
	return g
}

// Sorted returns the edges ordered by (source, target).
func (g *Graph) Sorted() []WeightedEdge {
	out := make([]WeightedEdge, 0, len(g.Edges))
	for e, c := range g.Edges {
		out = append(out, WeightedEdge{Edge: e, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Edge, out[j].Edge) })
	return out
}

// Prune returns a copy of the graph holding at most limit edges: the most
// frequent ones, ties broken by descending (source, target). A limit of zero
// or less keeps every edge. Activity, start and end counts are copied
// unchanged.
func (g *Graph) Prune(limit int) *Graph {
	out := New()
	for k, v := range g.Activities {
		out.Activities[k] = v
	}
	for k, v := range g.StartActivities {
		out.StartActivities[k] = v
	}
	for k, v := range g.EndActivities {
		out.EndActivities[k] = v
	}

	edges := g.Sorted()
	if limit > 0 && len(edges) > limit {
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].Count != edges[j].Count {
				return edges[i].Count > edges[j].Count
			}
			return less(edges[j].Edge, edges[i].Edge)
		})
		edges = edges[:limit]
	}
	for _, e := range edges {
		out.Edges[e.Edge] = e.Count
	}
	return out
}

// Nodes returns the activities that appear on an edge, sorted. When the graph
// has no edges every counted activity is returned instead.
func (g *Graph) Nodes() []string {
	set := make(map[string]bool)
	for e := range g.Edges {
		set[e.Source] = true
		set[e.Target] = true
	}
	if len(set) == 0 {
		for a := range g.Activities {
			set[a] = true
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Penwidth scales edge counts to line widths between 1.0 and 2.6.
func (g *Graph) Penwidth() map[Edge]float64 {
	out := make(map[Edge]float64, len(g.Edges))
	if len(g.Edges) == 0 {
		return out
	}
	lo, hi := int64(-1), int64(-1)
	for _, c := range g.Edges {
		if lo < 0 || c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	for e, c := range g.Edges {
		out[e] = 1.0 + 1.6*float64(c-lo)/(float64(hi-lo)+1e-5)
	}
	return out
}

func less(a, b Edge) bool {
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.Target < b.Target
}
