package measures

import (
	"math"
	"strconv"

	"github.com/rpaflow/rpaflow/internal/model"
	"github.com/rpaflow/rpaflow/pkg/colorize"
)

const approxPrefix = "appr. "

func failed(e *model.Event) bool { return !e.Success }

func percentLabel(v colorize.Value, decimals int) string {
	if v.IsSentinel() {
		return string(v.Sentinel)
	}
	return colorize.Percent(v.Num, decimals) + " %"
}

func secondsLabel(v colorize.Value) string {
	if v.IsSentinel() {
		return string(v.Sentinel)
	}
	return colorize.FormatSeconds(v.Num)
}

// relativeFails is the share of failed events per activity.
func relativeFails(t *table, opts Options) *Result {
	values := make(map[string]colorize.Value)
	labels := make(map[string]string)
	for _, a := range t.activities {
		rows := t.byActivity[a]
		fails, _ := t.partition(rows, failed)
		switch len(fails) {
		case 0:
			values[a] = colorize.Mark(colorize.NoFails)
		case len(rows):
			values[a] = colorize.Mark(colorize.OnlyFails)
		default:
			values[a] = colorize.Num(float64(len(fails)) / float64(len(rows)))
		}
		labels[a] = percentLabel(values[a], opts.RoundDecimals)
	}
	return t.graphical(values, labels, nil)
}

// exceptionTimeImpact is the mean remaining trace time when the activity
// fails minus the mean when it succeeds.
func exceptionTimeImpact(t *table, _ Options) *Result {
	values := make(map[string]colorize.Value)
	labels := make(map[string]string)
	for _, a := range t.activities {
		fails, ok := t.partition(t.byActivity[a], failed)
		switch {
		case len(fails) == 0:
			values[a] = colorize.Mark(colorize.NoFails)
		case len(ok) == 0:
			values[a] = colorize.Mark(colorize.OnlyFails)
		default:
			values[a] = colorize.Num(t.timeUntilEnd(fails).mean() - t.timeUntilEnd(ok).mean())
		}
		labels[a] = secondsLabel(values[a])
	}
	return t.graphical(values, labels, nil)
}

// exceptionTimeVariance compares the standard deviation of the remaining
// trace time between failed and successful executions.
func exceptionTimeVariance(t *table, _ Options) *Result {
	values := make(map[string]colorize.Value)
	labels := make(map[string]string)
	for _, a := range t.activities {
		fails, ok := t.partition(t.byActivity[a], failed)
		var okSide, failSide colorize.Value
		switch {
		case len(fails) == 0:
			okSide = colorize.Num(t.timeUntilEnd(ok).std())
			failSide = colorize.Mark(colorize.NoFails)
			values[a] = failSide
		case len(ok) == 0:
			okSide = colorize.Mark(colorize.OnlyFails)
			failSide = colorize.Num(t.timeUntilEnd(fails).std())
			values[a] = okSide
		default:
			f, s := t.timeUntilEnd(fails).std(), t.timeUntilEnd(ok).std()
			okSide, failSide = colorize.Num(s), colorize.Num(f)
			values[a] = colorize.Num(f - s)
		}
		labels[a] = "no fail: " + secondsLabel(okSide) + "\nfail: " + secondsLabel(failSide)
	}
	return t.graphical(values, labels, nil)
}

// relativeExecutionTime is the mean execution time of the activity over the
// mean trace execution time of the whole log.
func relativeExecutionTime(t *table, opts Options) *Result {
	var traces sample
	for i := range t.log.Events {
		if d := t.log.Events[i].Derived.TraceExecutionTime; d.Valid {
			traces = append(traces, d.Duration.Seconds())
		}
	}
	process := traces.mean()

	values := make(map[string]colorize.Value)
	labels := make(map[string]string)
	for _, a := range t.activities {
		s, approx := t.executionTimes(t.byActivity[a])
		ratio := s.mean() / process
		if math.IsInf(ratio, 0) {
			ratio = math.NaN()
		}
		values[a] = colorize.Num(ratio)
		labels[a] = withApprox(percentLabel(values[a], opts.RoundDecimals), approx, values[a])
	}
	return t.graphical(values, labels, nil)
}

// executionTimeVariance is the standard deviation of the activity's
// execution time.
func executionTimeVariance(t *table, _ Options) *Result {
	values := make(map[string]colorize.Value)
	labels := make(map[string]string)
	for _, a := range t.activities {
		s, approx := t.executionTimes(t.byActivity[a])
		values[a] = colorize.Num(s.std())
		labels[a] = withApprox(secondsLabel(values[a]), approx, values[a])
	}
	return t.graphical(values, labels, nil)
}

func withApprox(label string, approx bool, v colorize.Value) string {
	if approx && v.Sentinel != colorize.NoData {
		return approxPrefix + label
	}
	return label
}

// handoverCount counts how often the activity is followed by a bot or a
// human. Every node gets the middle intensity.
func handoverCount(t *table, _ Options) *Result {
	values := make(map[string]colorize.Value)
	labels := make(map[string]string)
	for _, a := range t.activities {
		var bot, human int
		for _, i := range t.byActivity[a] {
			switch t.event(i).Derived.FollowedBy {
			case model.FollowedByBot:
				bot++
			case model.FollowedByHuman:
				human++
			}
		}
		switch {
		case bot == 0:
			values[a] = colorize.Mark(colorize.AlwaysFollowedByHuman)
		case human == 0:
			values[a] = colorize.Mark(colorize.AlwaysFollowedByBot)
		default:
			values[a] = colorize.Num(float64(bot))
		}
		if values[a].IsSentinel() {
			labels[a] = string(values[a].Sentinel)
		} else {
			labels[a] = "followed by bot: " + strconv.Itoa(bot) + "\nfollowed by human: " + strconv.Itoa(human)
		}
	}
	mid := 0.5
	return t.graphical(values, labels, &mid)
}

// handoverSides splits the activity's rows by who performs the next event.
// Rows at the end of a trace belong to neither side.
func (t *table) handoverSides(a string) (bot, human []int) {
	for _, i := range t.byActivity[a] {
		switch t.event(i).Derived.FollowedBy {
		case model.FollowedByBot:
			bot = append(bot, i)
		case model.FollowedByHuman:
			human = append(human, i)
		}
	}
	return bot, human
}

// handoverImpact is the mean remaining trace time when the activity is
// followed by a bot minus the mean when it is followed by a human.
func handoverImpact(t *table, _ Options) *Result {
	values := make(map[string]colorize.Value)
	labels := make(map[string]string)
	for _, a := range t.activities {
		bot, human := t.handoverSides(a)
		switch {
		case len(bot) == 0:
			values[a] = colorize.Mark(colorize.AlwaysFollowedByHuman)
		case len(human) == 0:
			values[a] = colorize.Mark(colorize.AlwaysFollowedByBot)
		default:
			values[a] = colorize.Num(t.timeUntilEnd(bot).mean() - t.timeUntilEnd(human).mean())
		}
		labels[a] = secondsLabel(values[a])
	}
	return t.graphical(values, labels, nil)
}

// handoverVariance compares the standard deviation of the remaining trace
// time between bot and human successors.
func handoverVariance(t *table, _ Options) *Result {
	values := make(map[string]colorize.Value)
	labels := make(map[string]string)
	for _, a := range t.activities {
		bot, human := t.handoverSides(a)
		var botSide, humanSide colorize.Value
		switch {
		case len(bot) == 0 && len(human) == 0:
			botSide = colorize.Mark(colorize.NoData)
			humanSide = botSide
			values[a] = botSide
		case len(bot) == 0:
			humanSide = colorize.Num(t.timeUntilEnd(human).std())
			botSide = colorize.Mark(colorize.AlwaysFollowedByHuman)
			values[a] = botSide
		case len(human) == 0:
			humanSide = colorize.Mark(colorize.AlwaysFollowedByBot)
			botSide = colorize.Num(t.timeUntilEnd(bot).std())
			values[a] = humanSide
		case len(bot) == 1:
			humanSide = colorize.Num(t.timeUntilEnd(human).std())
			botSide = colorize.Mark(colorize.OnceFollowedByBot)
			values[a] = botSide
		case len(human) == 1:
			humanSide = colorize.Mark(colorize.OnceFollowedByHuman)
			botSide = colorize.Num(t.timeUntilEnd(bot).std())
			values[a] = humanSide
		default:
			b, h := t.timeUntilEnd(bot).std(), t.timeUntilEnd(human).std()
			botSide, humanSide = colorize.Num(b), colorize.Num(h)
			values[a] = colorize.Num(b - h)
		}
		labels[a] = "followed by human: " + secondsLabel(humanSide) + "\nfollowed by bot: " + secondsLabel(botSide)
	}
	return t.graphical(values, labels, nil)
}
