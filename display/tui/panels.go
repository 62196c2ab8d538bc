package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"gitlab.com/tinyland/lab/loadgraph/display/color"
	"gitlab.com/tinyland/lab/loadgraph/display/layout"
	"gitlab.com/tinyland/lab/loadgraph/display/widgets"
	"gitlab.com/tinyland/lab/loadgraph/history"
	"gitlab.com/tinyland/lab/loadgraph/internal/format"
)

func seriesColor(name string) lipgloss.Color {
	return color.Series(name)
}

// windowStep spreads the series' full retention window over columns.
func windowStep(sum history.Summary, columns int) time.Duration {
	window := sum.Window()
	if window <= 0 || columns <= 0 {
		return time.Second
	}
	return max(window/time.Duration(columns), time.Microsecond)
}

// labelLines returns the plain-text label column for a panel.
func labelLines(sum history.Summary) []string {
	if sum.Count == 0 {
		return []string{sum.Name, "-"}
	}
	return []string{
		sum.Name,
		sum.Unit.Format(sum.Latest),
		"↓" + sum.Unit.Format(sum.Min) + " ↑" + sum.Unit.Format(sum.Max),
	}
}

func (m Model) renderPanel(name string, end time.Time, focused bool) string {
	sum, ok := m.source.Summary(name)
	if !ok {
		return ""
	}
	columns := layout.GraphColumns(m.width)
	grid, _ := m.source.Grid(name, end, columns, windowStep(sum, columns))
	lo, hi := sum.Range()
	c := seriesColor(name)

	graph := widgets.RenderGraph(widgets.GraphConfig{
		Grid:   grid,
		Height: m.graphHeight,
		Min:    lo,
		Max:    hi,
		Color:  c,
	})

	lines := labelLines(sum)
	var body string
	if layout.DetectMode(m.width) == layout.Compact {
		head := format.TruncateWithEllipsis(strings.Join(lines, " "), columns)
		body = styleLabel.Foreground(c).Render(head) + "\n" + graph
	} else {
		for i := range lines {
			lines[i] = format.PadRight(lines[i], layout.LabelWidth-1)
		}
		lines[0] = styleLabel.Foreground(c).Render(lines[0])
		if sum.Unit == history.UnitPercentTenths && sum.Count > 0 {
			lines = append(lines, widgets.RenderGauge(widgets.GaugeConfig{
				Width:   layout.LabelWidth - 2,
				Percent: widgets.PercentTenths(sum.Latest),
			}))
		}
		lines = lines[:min(len(lines), m.graphHeight)]
		label := lipgloss.NewStyle().Width(layout.LabelWidth).Render(strings.Join(lines, "\n"))
		body = lipgloss.JoinHorizontal(lipgloss.Top, label, graph)
	}

	if focused {
		return stylePanelFocused.Render(body)
	}
	return stylePanel.Render(body)
}
