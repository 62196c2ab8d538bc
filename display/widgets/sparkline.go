package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// blocks contains 8 unicode block characters ordered from lowest to highest.
var blocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// SparklineConfig controls a single-row sparkline.
type SparklineConfig struct {
	// Values to render (most recent last).
	Values []int64
	// Lead is the number of blank columns before Values, used for the part
	// of the window older than the oldest sample.
	Lead int
	// Width is the number of characters to render. If 0, uses Lead+len(Values).
	Width int
	// Min and Max fix the scale. If Max <= Min the scale is the data range.
	Min, Max int64
	// Label is optional text shown before the sparkline.
	Label string
	// Color is the lipgloss color for the sparkline characters.
	Color lipgloss.Color
}

// valueRange returns the scale for values, honoring a fixed range when set.
func valueRange(values []int64, lo, hi int64) (int64, int64) {
	if hi > lo || len(values) == 0 {
		return lo, hi
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// eighths maps v onto [0, levels] within [lo, hi], rounding to nearest.
func eighths(v, lo, hi int64, levels int) int {
	if hi <= lo {
		return 1
	}
	f := float64(v-lo) / float64(hi-lo)
	n := int(f*float64(levels) + 0.5)
	return max(0, min(levels, n))
}

// RenderSparkline renders a unicode sparkline from the given configuration.
func RenderSparkline(cfg SparklineConfig) string {
	if len(cfg.Values) == 0 && cfg.Lead == 0 {
		return ""
	}

	lo, hi := valueRange(cfg.Values, cfg.Min, cfg.Max)

	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", cfg.Lead))
	for _, v := range cfg.Values {
		level := eighths(v, lo, hi, len(blocks)-1)
		sb.WriteRune(blocks[level])
	}
	spark := []rune(sb.String())

	width := cfg.Width
	if width <= 0 {
		width = len(spark)
	}
	if width < len(spark) {
		spark = spark[len(spark)-width:]
	}
	out := strings.Repeat(" ", width-len(spark)) + string(spark)

	if cfg.Color != "" {
		out = lipgloss.NewStyle().Foreground(cfg.Color).Render(out)
	}
	if cfg.Label != "" {
		out = cfg.Label + " " + out
	}
	return out
}
