package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gitlab.com/tinyland/lab/loadgraph/display/color"
)

// GaugeConfig controls a horizontal bar gauge.
type GaugeConfig struct {
	// Width is the total character width of the bar (default 20).
	Width int
	// Percent is the value from 0 to 100.
	Percent float64
	// Label is optional text shown to the left of the bar.
	Label string
	// ShowPercent controls whether "XX%" is shown to the right.
	ShowPercent bool
}

// PercentTenths converts a percent-tenths series value (425 = 42.5%) into
// a gauge percentage.
func PercentTenths(v int64) float64 {
	return float64(v) / 10
}

// RenderGauge renders a horizontal bar gauge.
// Format: [Label] [████████░░░░] [XX%]
func RenderGauge(cfg GaugeConfig) string {
	percent := math.Max(0, math.Min(100, cfg.Percent))
	width := cfg.Width
	if width <= 0 {
		width = 20
	}

	filled := int(math.Round(percent / 100 * float64(width)))
	bar := lipgloss.NewStyle().
		Foreground(color.Threshold(percent/100)).
		Render(strings.Repeat("█", filled)) +
		strings.Repeat("░", width-filled)

	var sb strings.Builder
	if cfg.Label != "" {
		sb.WriteString(cfg.Label)
		sb.WriteString(" ")
	}
	sb.WriteString(bar)
	if cfg.ShowPercent {
		sb.WriteString(fmt.Sprintf(" %3.0f%%", percent))
	}
	return sb.String()
}
