// Package tui prints measure results, log summaries and progress bars to
// the terminal.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/schollz/progressbar/v3"

	"github.com/rpaflow/rpaflow/pkg/measures"
	"github.com/rpaflow/rpaflow/pkg/writer"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Printer writes styled output to w.
type Printer struct {
	w io.Writer
}

// New creates a printer.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Header prints a section title.
func (p *Printer) Header(title, subtitle string) {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, accentStyle.Render("▸ "+strings.ToUpper(title)))
	if subtitle != "" {
		fmt.Fprintln(p.w, mutedStyle.Render("  "+subtitle))
	}
	fmt.Fprintln(p.w)
}

// Done prints a success line.
func (p *Printer) Done(msg string) {
	fmt.Fprintln(p.w, successStyle.Render("  ✓ "+msg))
}

// Field prints an aligned "name: value" line.
func (p *Printer) Field(name string, value interface{}) {
	fmt.Fprintf(p.w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-12s", name+":")), titleStyle.Render(fmt.Sprint(value)))
}

// Result prints a measure result: graphical measures as one row per
// activity with a color swatch, tabular measures as their table.
func (p *Printer) Result(res *measures.Result) {
	p.Header(res.Title, res.Measure)
	switch res.Kind {
	case measures.KindGraphical:
		rows := make([][]string, 0, len(res.Nodes))
		for _, n := range res.Nodes {
			value := n.Label
			if _, rest, ok := strings.Cut(n.Label, "\n"); ok {
				value = rest
			}
			swatch := lipgloss.NewStyle().Background(lipgloss.Color(n.Color)).Render("  ")
			rows = append(rows, []string{n.Activity, value, swatch + " " + n.Color})
		}
		fmt.Fprintln(p.w, render([]string{"activity", "value", "color"}, rows))
	case measures.KindTabular:
		if res.Table != nil {
			fmt.Fprintln(p.w, render(res.Table.Columns, res.Table.Rows))
		}
	}
}

func render(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// LogReport describes a parsed or merged log.
type LogReport struct {
	Source     string
	Output     string
	Events     int
	Traces     int
	Activities int
	Skipped    int
	Duration   time.Duration
}

// PrintLogReport prints a report after a parse, merge or export.
func (p *Printer) PrintLogReport(r *LogReport) {
	fmt.Fprintln(p.w)
	p.Done("LOG WRITTEN")
	fmt.Fprintln(p.w)
	if r.Source != "" {
		p.Field("Source", r.Source)
	}
	if r.Output != "" {
		p.Field("Output", r.Output)
	}
	p.Field("Events", formatNumber(int64(r.Events)))
	p.Field("Traces", formatNumber(int64(r.Traces)))
	p.Field("Activities", r.Activities)
	if r.Skipped > 0 {
		fmt.Fprintf(p.w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-12s", "Skipped:")), accentStyle.Render(fmt.Sprint(r.Skipped)))
	}
	if r.Duration > 0 {
		throughput := float64(r.Events) / r.Duration.Seconds()
		fmt.Fprintf(p.w, "  %s %s %s\n",
			mutedStyle.Render(fmt.Sprintf("%-12s", "Time:")),
			titleStyle.Render(formatDuration(r.Duration)),
			mutedStyle.Render(fmt.Sprintf("(%s events/sec)", formatNumber(int64(throughput)))))
	}
	fmt.Fprintln(p.w)
}

// Summary prints the headline numbers of an exported table.
func (p *Printer) Summary(s *writer.Summary) {
	p.Header("Summary", "")
	p.Field("Events", formatNumber(s.Events))
	p.Field("Traces", formatNumber(s.Traces))
	p.Field("Activities", s.Activities)
	p.Field("Bot events", formatNumber(s.BotEvents))
	p.Field("Failed", formatNumber(s.FailedEvents))
	if !s.Start.IsZero() {
		p.Field("From", s.Start.Format(time.RFC3339))
		p.Field("To", s.End.Format(time.RFC3339))
	}
	for _, part := range []struct {
		title string
		rows  []writer.CountPercent
	}{{"activity", s.TopActivities}, {"path", s.TopPaths}} {
		if len(part.rows) == 0 {
			continue
		}
		rows := make([][]string, len(part.rows))
		for i, cp := range part.rows {
			rows[i] = []string{cp.Name, fmt.Sprint(cp.Count), fmt.Sprintf("%.2f %%", cp.Percent)}
		}
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, render([]string{part.title, "count", "share"}, rows))
	}
	fmt.Fprintln(p.w)
}

// Progress returns a callback that drives a progress bar on w. The bar is
// created on the first call, once the total is known.
func Progress(w io.Writer, description string) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription(description),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "█",
					SaucerHead:    "█",
					SaucerPadding: "░",
					BarStart:      "",
					BarEnd:        "",
				}),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)
		}
		bar.Set(done)
		if done >= total {
			bar.Finish()
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
