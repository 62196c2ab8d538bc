package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gitlab.com/tinyland/lab/loadgraph/history"
)

// GraphConfig controls a multi-row bar graph.
type GraphConfig struct {
	// Grid holds one value per column. Its first Lead columns are drawn blank.
	Grid history.Grid
	// Height is the number of rows. Each row resolves 8 levels.
	Height int
	// Min and Max fix the scale. If Max <= Min the scale is the data range.
	Min, Max int64
	// Color is the lipgloss color for the bars.
	Color lipgloss.Color
}

// RenderGraph renders the grid as Height rows of eighth-block bars, top row
// first. The result always has exactly Height lines of len(Grid.Values)
// columns.
func RenderGraph(cfg GraphConfig) string {
	height := max(cfg.Height, 1)
	values := cfg.Grid.Values
	lead := min(max(cfg.Grid.Lead, 0), len(values))
	lo, hi := valueRange(values[lead:], cfg.Min, cfg.Max)

	levels := make([]int, len(values))
	for i := lead; i < len(values); i++ {
		levels[i] = eighths(values[i], lo, hi, height*8)
	}

	rows := make([]string, height)
	for r := 0; r < height; r++ {
		floor := (height - 1 - r) * 8
		var sb strings.Builder
		for i, level := range levels {
			fill := level - floor
			switch {
			case i < lead || fill <= 0:
				sb.WriteByte(' ')
			case fill >= 8:
				sb.WriteRune(blocks[7])
			default:
				sb.WriteRune(blocks[fill-1])
			}
		}
		rows[r] = sb.String()
	}

	out := strings.Join(rows, "\n")
	if cfg.Color != "" {
		out = lipgloss.NewStyle().Foreground(cfg.Color).Render(out)
	}
	return out
}
