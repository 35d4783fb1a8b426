package measures

import (
	"strconv"

	"github.com/rpaflow/rpaflow/pkg/colorize"
)

// relativeCaseFails reports, per path, the share of traces with at least one
// failed event and the share of events performed by a bot. Rows are sorted
// by fail rate, highest first.
func relativeCaseFails(t *table, opts Options) *Result {
	paths, rows := t.paths()
	tab := &Table{Columns: []string{"path", "fail rate in %", "bot share in %"}}
	for n, p := range paths {
		var (
			traces  []string
			seen    = make(map[string]bool)
			failing = make(map[string]bool)
			bots    int
		)
		for _, i := range rows[p] {
			e := t.event(i)
			if !seen[e.CaseID] {
				seen[e.CaseID] = true
				traces = append(traces, e.CaseID)
			}
			if !e.Success {
				failing[e.CaseID] = true
			}
			if e.Bot {
				bots++
			}
		}
		failRate := float64(len(failing)) / float64(len(traces))
		botShare := float64(bots) / float64(len(rows[p]))
		tab.Rows = append(tab.Rows, []string{
			p,
			colorize.Percent(failRate, opts.RoundDecimals),
			colorize.Percent(botShare, opts.RoundDecimals),
		})
		progress(opts, n+1, len(paths))
	}
	sortDescending(tab.Rows, 1)
	return &Result{Table: tab}
}

// automationRate reports, per activity, how many events a bot and a human
// performed. Rows are sorted by bot share, highest first.
func automationRate(t *table, opts Options) *Result {
	tab := &Table{Columns: []string{
		"activity", "performed by bot", "performed by bot in %", "performed manually", "performed manually in %",
	}}
	for _, a := range t.activities {
		rows := t.byActivity[a]
		var bot int
		for _, i := range rows {
			if t.event(i).Bot {
				bot++
			}
		}
		human := len(rows) - bot
		total := float64(len(rows))
		tab.Rows = append(tab.Rows, []string{
			a,
			strconv.Itoa(bot),
			colorize.Percent(float64(bot)/total, opts.RoundDecimals),
			strconv.Itoa(human),
			colorize.Percent(float64(human)/total, opts.RoundDecimals),
		})
	}
	sortDescending(tab.Rows, 2)
	return &Result{Table: tab}
}

func caseActivitiesMean(t *table, opts Options) *Result {
	return t.caseActivities(opts, sample.mean)
}

func caseActivitiesStd(t *table, opts Options) *Result {
	return t.caseActivities(opts, sample.std)
}

// caseActivities builds a path by activity matrix of aggregated execution
// times. Cells of activities that do not occur on a path stay empty; cells
// without any defined execution time read "no data".
func (t *table) caseActivities(opts Options, agg func(sample) float64) *Result {
	paths, rows := t.paths()
	col := make(map[string]int, len(t.activities))
	tab := &Table{Columns: append([]string{"path"}, t.activities...)}
	for k, a := range t.activities {
		col[a] = k + 1
	}

	for n, p := range paths {
		row := make([]string, len(tab.Columns))
		row[0] = p

		var acts []string
		byAct := make(map[string][]int)
		for _, i := range rows[p] {
			a := t.event(i).Activity
			if _, ok := byAct[a]; !ok {
				acts = append(acts, a)
			}
			byAct[a] = append(byAct[a], i)
		}
		for _, a := range acts {
			s, _ := t.executionTimes(byAct[a])
			row[col[a]] = colorize.FormatSeconds(agg(s))
		}
		tab.Rows = append(tab.Rows, row)
		progress(opts, n+1, len(paths))
	}
	return &Result{Table: tab}
}
