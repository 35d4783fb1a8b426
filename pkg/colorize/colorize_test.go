package colorize

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/rpaflow/rpaflow/internal/model"
)

func TestIntensities(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]Value
		want   map[string]float64
	}{
		{
			name:   "linear scaling",
			values: map[string]Value{"a": Num(0.1), "b": Num(0.3), "c": Num(0.2)},
			want:   map[string]float64{"a": 0, "b": 1, "c": 0.5},
		},
		{
			name:   "no variation",
			values: map[string]Value{"a": Num(4), "b": Num(4)},
			want:   map[string]float64{"a": 0.5, "b": 0.5},
		},
		{
			name:   "no fails alone",
			values: map[string]Value{"a": Mark(NoFails)},
			want:   map[string]float64{"a": 0},
		},
		{
			name:   "only fails alone",
			values: map[string]Value{"a": Mark(OnlyFails)},
			want:   map[string]float64{"a": 1},
		},
		{
			name: "sentinels ignored for bounds",
			values: map[string]Value{
				"a": Num(2), "b": Num(6),
				"c": Mark(AlwaysFollowedByBot), "d": Mark(OnceFollowedByBot),
				"e": Mark(OnceFollowedByHuman), "f": Mark(AlwaysFollowedByHuman),
				"g": Mark(NoData), "h": Num(math.NaN()),
			},
			want: map[string]float64{"a": 0, "b": 1, "c": 1, "d": 0, "e": 1, "f": 0, "g": 0, "h": 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Intensities(tt.values)
			assert.Len(t, got, len(tt.want))
			for k, w := range tt.want {
				assert.InDelta(t, w, got[k], 1e-12, k)
			}
		})
	}
}

func TestIntensityProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("identical numbers all map to 0.5", prop.ForAll(
		func(v float64, n int) bool {
			values := make(map[string]Value)
			for i := 0; i < n; i++ {
				values[string(rune('a'+i))] = Num(v)
			}
			for _, got := range Intensities(values) {
				if got != 0.5 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-1e6, 1e6),
		gen.IntRange(1, 20),
	))

	properties.Property("intensities stay within [0, 1]", prop.ForAll(
		func(nums []float64) bool {
			values := make(map[string]Value)
			for i, v := range nums {
				values[string(rune('a'+i%26))+string(rune('a'+i/26))] = Num(v)
			}
			for _, got := range Intensities(values) {
				if got < 0 || got > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
	))

	properties.TestingRun(t)
}

func TestHex(t *testing.T) {
	tests := []struct {
		family    Family
		intensity float64
		want      string
	}{
		{Yellow, 0, "#9b9b00"},
		{Yellow, 1, "#ffff00"},
		{Blue, 0.5, "#0000cd"},
		{Green, 1, "#00ff00"},
		{Grey, 1, "#808080"},
		{Grey, 0, "#808080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Hex(tt.family, tt.intensity), "%s %v", tt.family, tt.intensity)
	}
}

func TestColors(t *testing.T) {
	got := Colors(
		map[string]model.PerformedBy{"a": model.PerformedByManualAndBot, "b": model.PerformedByBotOnly, "c": model.PerformedByManualOnly, "d": ""},
		map[string]float64{"a": 1, "b": 1, "c": 0},
	)
	assert.Equal(t, map[string]string{"a": "#ffff00", "b": "#0000ff", "c": "#009b00", "d": "#808080"}, got)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "000days 00h 00m 00s"},
		{90 * time.Second, "000days 00h 01m 30s"},
		{26*time.Hour + 3*time.Minute + 4*time.Second + 500*time.Millisecond, "001days 02h 03m 04s"},
		{-30 * time.Second, "-01days 23h 59m 30s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
	assert.Equal(t, "no data", FormatSeconds(math.NaN()))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "30.00", Percent(0.3, 2))
	assert.Equal(t, "33.3", Percent(1.0/3, 1))
	assert.Equal(t, "100", Percent(1, 0))
}
