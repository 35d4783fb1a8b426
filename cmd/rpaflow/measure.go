package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/pkg/cache"
	"github.com/rpaflow/rpaflow/pkg/measures"
	"github.com/rpaflow/rpaflow/pkg/pipeline"
	"github.com/rpaflow/rpaflow/pkg/render"
	"github.com/rpaflow/rpaflow/pkg/table"
)

// Measure flags
var (
	outputDir     string
	roundDecimals int
	maxEdges      int
	noEdgeLabels  bool
	tableFormat   string
	imageFormat   string
)

var measureCmd = &cobra.Command{
	Use:   "measure <log.xes> <measure>",
	Short: "Compute one measure",
	Long: `Compute one measure over an enriched log. Graphical measures are drawn
on the directly-follows graph (dfg_<measure>.dot); tabular measures are
saved as df_<measure>.csv or .xlsx.

Examples:
  rpaflow measure merged.xes relative_fails
  rpaflow measure merged.xes automation_rate --table-format xlsx -o results
  rpaflow measure s3://logs/merged.xes execution_time_variance --image svg`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMeasures(cmd, args[0], args[1:])
	},
}

var measuresCmd = &cobra.Command{
	Use:   "measures <log.xes> [measure...]",
	Short: "Compute several measures concurrently",
	Long: `Compute several measures over the same enriched log in parallel. Without
measure names every measure is computed.

Examples:
  rpaflow measures merged.xes
  rpaflow measures merged.xes relative_fails automation_rate`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names := args[1:]
		if len(names) == 0 {
			names = measures.Names()
		}
		return runMeasures(cmd, args[0], names)
	},
}

var dfgCmd = &cobra.Command{
	Use:   "dfg <log.xes>",
	Short: "Draw the plain directly-follows graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runDFG,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available measures",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MEASURE\tKIND")
		for _, name := range measures.Names() {
			kind, _ := measures.KindOf(name)
			fmt.Fprintf(tw, "%s\t%s\n", name, kind)
		}
		return tw.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{measureCmd, measuresCmd, dfgCmd, watchCmd} {
		c.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for graphs and tables")
		c.Flags().IntVar(&maxEdges, "max-edges", 0, "Keep only the most frequent edges (0 = config)")
		c.Flags().BoolVar(&noEdgeLabels, "no-edge-labels", false, "Hide edge counts")
		c.Flags().StringVar(&imageFormat, "image", "", "Graph format (dot, svg, png, pdf)")
		c.Flags().StringVar(&uploadURI, "upload", "", "Upload outputs to an s3:// prefix")
	}
	for _, c := range []*cobra.Command{measureCmd, measuresCmd, watchCmd} {
		c.Flags().IntVar(&roundDecimals, "round-decimals", 0, "Decimals in percentages")
		c.Flags().StringVar(&tableFormat, "table-format", "", "Table format (csv, xlsx)")
	}
}

// measureSettings merges flags into the configured measure settings.
func measureSettings(cmd *cobra.Command) (measures.Options, render.Options) {
	cfg := app.cfg.Measures
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if cmd.Flags().Changed("round-decimals") {
		cfg.RoundDecimals = roundDecimals
	}
	if cmd.Flags().Changed("max-edges") {
		cfg.MaxEdges = maxEdges
	}
	if noEdgeLabels {
		cfg.ShowEdgeLabels = false
	}
	if tableFormat != "" {
		cfg.TableFormat = tableFormat
	}
	if imageFormat != "" {
		cfg.ImageFormat = imageFormat
	}
	app.cfg.Measures = cfg

	mopts := measures.DefaultOptions()
	mopts.RoundDecimals = cfg.RoundDecimals
	mopts.Logger = app.logger
	return mopts, render.Options{MaxEdges: cfg.MaxEdges, ShowEdgeLabels: cfg.ShowEdgeLabels}
}

func runMeasures(cmd *cobra.Command, input string, names []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	mopts, ropts := measureSettings(cmd)
	uploadURI = asPrefix(uploadURI)
	for _, name := range names {
		if _, err := measures.KindOf(name); err != nil {
			return err
		}
	}

	c := resultCache(ctx, cache.Nop{})
	defer c.Close()
	p := newPipeline(c)

	prep, err := p.Run(ctx, input)
	if err != nil {
		return err
	}

	var results []*measures.Result
	if len(names) == 1 {
		res, err := p.Measure(ctx, prep, names[0], mopts)
		if err != nil {
			return err
		}
		results = []*measures.Result{res}
	} else {
		results, err = p.MeasureAll(ctx, prep, names, mopts)
		if err != nil {
			return err
		}
	}

	out := printer()
	for _, res := range results {
		path, err := saveResult(ctx, prep, res, ropts)
		if err != nil {
			return err
		}
		out.Result(res)
		out.Done(path)
		if err := upload(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// saveResult writes a graphical result as a decorated graph and a tabular
// result as a table.
func saveResult(ctx context.Context, prep *pipeline.Prepared, res *measures.Result, ropts render.Options) (string, error) {
	cfg := app.cfg.Measures
	if res.Kind == measures.KindTabular {
		return table.Save(cfg.OutputDir, res, cfg.TableFormat)
	}
	return render.Save(ctx, cfg.OutputDir, res.Measure, prep.Graph, pipeline.Decoration(res), ropts, cfg.ImageFormat)
}

func runDFG(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	_, ropts := measureSettings(cmd)
	uploadURI = asPrefix(uploadURI)
	prep, err := newPipeline(cache.Nop{}).Run(ctx, args[0])
	if err != nil {
		return err
	}
	path, err := render.Save(ctx, app.cfg.Measures.OutputDir, "plain", prep.Graph, render.Decoration{}, ropts, app.cfg.Measures.ImageFormat)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, path)
	return upload(ctx, path)
}

// asPrefix makes an upload location a key prefix so that several outputs
// keep their file names.
func asPrefix(uri string) string {
	if uri == "" || strings.HasSuffix(uri, "/") {
		return uri
	}
	return uri + "/"
}
