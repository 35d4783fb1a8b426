// Package render draws a decorated directly-follows graph as Graphviz DOT.
package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rpaflow/rpaflow/pkg/dfg"
	"github.com/rpaflow/rpaflow/pkg/errors"
)

const (
	startColor = "#32CD32"
	endColor   = "#FFA500"
)

// Options controls the drawing.
type Options struct {
	// MaxEdges prunes the graph to its most frequent edges. Zero keeps all.
	MaxEdges       int
	ShowEdgeLabels bool
}

// DefaultOptions returns the default drawing options.
func DefaultOptions() Options {
	return Options{MaxEdges: 200, ShowEdgeLabels: true}
}

// Decoration is the per-activity look of the graph.
type Decoration struct {
	Labels map[string]string
	Colors map[string]string
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func quote(s string) string { return `"` + escaper.Replace(s) + `"` }

// DOT writes the graph to w. Counted activities get their decoration label
// and fill color; other nodes are labeled with the activity name. Start and
// end pseudo-nodes are linked to the start and end activities still on the
// drawing.
func DOT(w io.Writer, g *dfg.Graph, deco Decoration, opts Options) error {
	g = g.Prune(opts.MaxEdges)
	penwidth := g.Penwidth()

	var b bytes.Buffer
	b.WriteString("digraph {\n")
	b.WriteString("\tgraph [bgcolor=transparent fontsize=11 overlap=false]\n")
	b.WriteString("\tnode [shape=box]\n")

	ids := make(map[string]string)
	for i, act := range g.Nodes() {
		id := "n" + strconv.Itoa(i)
		ids[act] = id
		if _, counted := g.Activities[act]; counted {
			label, ok := deco.Labels[act]
			if !ok {
				label = act
			}
			fmt.Fprintf(&b, "\t%s [label=%s style=filled fillcolor=%s]\n", id, quote(label), quote(deco.Colors[act]))
		} else {
			fmt.Fprintf(&b, "\t%s [label=%s]\n", id, quote(act))
		}
	}

	for _, e := range g.Sorted() {
		label := ""
		if opts.ShowEdgeLabels {
			label = strconv.FormatInt(e.Count, 10)
		}
		fmt.Fprintf(&b, "\t%s -> %s [label=%s penwidth=%s]\n", ids[e.Source], ids[e.Target], quote(label),
			strconv.FormatFloat(penwidth[e.Edge], 'f', -1, 64))
	}

	pseudo(&b, "start", "@@S", startColor, g.StartActivities, ids, true)
	pseudo(&b, "end", "@@E", endColor, g.EndActivities, ids, false)
	b.WriteString("}\n")

	if _, err := w.Write(b.Bytes()); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "writing dot graph")
	}
	return nil
}

func pseudo(b *bytes.Buffer, id, label, color string, acts map[string]int64, ids map[string]string, outgoing bool) {
	var linked []string
	for _, act := range sortedKeys(acts) {
		if n, ok := ids[act]; ok {
			linked = append(linked, n)
		}
	}
	if len(linked) == 0 {
		return
	}
	fmt.Fprintf(b, "\t%s [label=%s shape=circle style=filled fillcolor=%s fontcolor=%s]\n",
		id, quote(label), quote(color), quote(color))
	for _, n := range linked {
		if outgoing {
			fmt.Fprintf(b, "\t%s -> %s\n", id, n)
		} else {
			fmt.Fprintf(b, "\t%s -> %s\n", n, id)
		}
	}
}

// Image runs the Graphviz dot binary to turn DOT source into an image of
// the given format, such as "png" or "svg".
func Image(ctx context.Context, dot []byte, format string) ([]byte, error) {
	bin, err := exec.LookPath("dot")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgument, "graphviz dot binary not found")
	}
	cmd := exec.CommandContext(ctx, bin, "-T"+format)
	cmd.Stdin = bytes.NewReader(dot)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "rendering graph").
			WithContext("format", format).
			WithContext("stderr", strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

// FileName returns the file name of a graph drawing, "dfg_<name>.<format>".
func FileName(name, format string) string {
	return "dfg_" + name + "." + format
}

// Save draws the graph into dir as DOT source, or as an image when format
// is anything other than "dot". It returns the written path.
func Save(ctx context.Context, dir, name string, g *dfg.Graph, deco Decoration, opts Options, format string) (string, error) {
	var buf bytes.Buffer
	if err := DOT(&buf, g, deco, opts); err != nil {
		return "", err
	}
	data := buf.Bytes()
	if format != "dot" {
		img, err := Image(ctx, data, format)
		if err != nil {
			return "", err
		}
		data = img
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.CodeWriteFailed, "creating output directory").WithContext("dir", dir)
	}
	path := filepath.Join(dir, FileName(name, format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, errors.CodeWriteFailed, "writing graph").WithContext("path", path)
	}
	return path, nil
}

func sortedKeys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
