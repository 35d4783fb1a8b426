package measures

import (
	"math"
	"strconv"
	"strings"

	"github.com/rpaflow/rpaflow/internal/model"
)

// sample collects seconds and reports the mean and the sample standard
// deviation. Both are NaN when undefined.
type sample []float64

func (s sample) mean() float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

func (s sample) std() float64 {
	if len(s) < 2 {
		return math.NaN()
	}
	m := s.mean()
	var sq float64
	for _, v := range s {
		sq += (v - m) * (v - m)
	}
	return math.Sqrt(sq / float64(len(s)-1))
}

// timeUntilEnd collects the remaining trace time of the given rows.
func (t *table) timeUntilEnd(rows []int) sample {
	out := make(sample, 0, len(rows))
	for _, i := range rows {
		out = append(out, t.event(i).Derived.TimeUntilEnd.Seconds())
	}
	return out
}

// executionTimes collects exact execution times of the given rows, or the
// approximated ones when no exact time is defined for any of them.
func (t *table) executionTimes(rows []int) (s sample, approx bool) {
	for _, i := range rows {
		if d := t.event(i).Derived.ActExeTime; d.Valid {
			s = append(s, d.Duration.Seconds())
		}
	}
	if len(s) > 0 {
		return s, false
	}
	for _, i := range rows {
		if d := t.event(i).Derived.ActExeTimeApprox; d.Valid {
			s = append(s, d.Duration.Seconds())
		}
	}
	return s, true
}

// partition splits rows by a predicate.
func (t *table) partition(rows []int, pred func(*model.Event) bool) (yes, no []int) {
	for _, i := range rows {
		if pred(t.event(i)) {
			yes = append(yes, i)
		} else {
			no = append(no, i)
		}
	}
	return yes, no
}

func parseCell(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), " %"), 64)
	if err != nil {
		return math.Inf(-1)
	}
	return v
}
