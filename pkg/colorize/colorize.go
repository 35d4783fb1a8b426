// Package colorize turns per-activity measure values into node colors and
// labels.
package colorize

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rpaflow/rpaflow/internal/model"
)

// Sentinel is a categorical measure value that replaces a number when the
// data for an activity is degenerate.
type Sentinel string

const (
	NoFails               Sentinel = "no fails"
	OnlyFails             Sentinel = "only fails"
	AlwaysFollowedByHuman Sentinel = "always followed by human"
	AlwaysFollowedByBot   Sentinel = "always followed by bot"
	OnceFollowedByBot     Sentinel = "once followed by bot"
	OnceFollowedByHuman   Sentinel = "once followed by human"
	NoData                Sentinel = "no data"
)

// intensity forced by each sentinel.
var sentinelIntensity = map[Sentinel]float64{
	NoFails:               0,
	AlwaysFollowedByHuman: 0,
	OnceFollowedByBot:     0,
	NoData:                0,
	OnlyFails:             1,
	AlwaysFollowedByBot:   1,
	OnceFollowedByHuman:   1,
}

// Value is either a number or a sentinel.
type Value struct {
	Num      float64  `json:"num,omitempty"`
	Sentinel Sentinel `json:"sentinel,omitempty"`
}

// Num wraps a number. NaN becomes NoData.
func Num(v float64) Value {
	if math.IsNaN(v) {
		return Value{Sentinel: NoData}
	}
	return Value{Num: v}
}

// Mark wraps a sentinel.
func Mark(s Sentinel) Value { return Value{Sentinel: s} }

// IsSentinel reports whether v carries a sentinel instead of a number.
func (v Value) IsSentinel() bool { return v.Sentinel != "" }

// Intensities maps every value to [0, 1]. Numbers scale linearly between the
// minimum and maximum number; when they are all equal each gets 0.5.
// Sentinels get their fixed intensity.
func Intensities(values map[string]Value) map[string]float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if v.IsSentinel() {
			continue
		}
		lo = math.Min(lo, v.Num)
		hi = math.Max(hi, v.Num)
	}

	out := make(map[string]float64, len(values))
	for k, v := range values {
		switch {
		case v.IsSentinel():
			out[k] = sentinelIntensity[v.Sentinel]
		case lo == hi:
			out[k] = 0.5
		default:
			out[k] = (v.Num - lo) / (hi - lo)
		}
	}
	return out
}

// Family is a hue family.
type Family string

const (
	Yellow Family = "yellow"
	Blue   Family = "blue"
	Green  Family = "green"
	Grey   Family = "grey"
)

// FamilyFor picks the hue family for an activity's performer class.
func FamilyFor(p model.PerformedBy) Family {
	switch p {
	case model.PerformedByManualAndBot:
		return Yellow
	case model.PerformedByBotOnly:
		return Blue
	case model.PerformedByManualOnly:
		return Green
	}
	return Grey
}

// Hex returns "#rrggbb" for a family at the given intensity. Used channels
// run from 155 (intensity 0) to 255 (intensity 1).
func Hex(f Family, intensity float64) string {
	c := int(intensity*100 + 155)
	var r, g, b int
	switch f {
	case Yellow:
		r, g = c, c
	case Blue:
		b = c
	case Green:
		g = c
	default:
		r, g, b = 128, 128, 128
	}
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// Colors combines performer classes and intensities into fill colors. An
// activity without an intensity is colored at 0.
func Colors(performed map[string]model.PerformedBy, intensities map[string]float64) map[string]string {
	out := make(map[string]string, len(performed))
	for a, p := range performed {
		out[a] = Hex(FamilyFor(p), intensities[a])
	}
	return out
}

// FormatSeconds renders seconds as "DDDdays HHh MMm SSs" using floor
// division, so negative values carry the sign on the day count. NaN renders
// as "no data".
func FormatSeconds(total float64) string {
	if math.IsNaN(total) {
		return string(NoData)
	}
	days := math.Floor(total / 86400)
	rem := total - days*86400
	hours := math.Floor(rem / 3600)
	rem -= hours * 3600
	minutes := math.Floor(rem / 60)
	seconds := rem - minutes*60
	return fmt.Sprintf("%03ddays %02dh %02dm %02ds", int(days), int(hours), int(minutes), int(seconds))
}

// FormatDuration renders a duration like FormatSeconds.
func FormatDuration(d time.Duration) string {
	return FormatSeconds(d.Seconds())
}

// Percent renders a ratio as a percentage with the given decimals, without
// the percent sign.
func Percent(ratio float64, decimals int) string {
	return strconv.FormatFloat(ratio*100, 'f', decimals, 64)
}
