// Package layout sizes loadgraph's terminal output.
package layout

import (
	"os"
	"strconv"

	"github.com/charmbracelet/x/term"
)

// DetectTerminalSize returns the current terminal dimensions.
// It attempts TTY detection first via the term package, then falls back
// to COLUMNS/LINES environment variables, and finally to 80x24 defaults.
func DetectTerminalSize() (width, height int) {
	w, h, err := term.GetSize(os.Stdout.Fd())
	if err == nil && w > 0 && h > 0 {
		return w, h
	}

	if cols := os.Getenv("COLUMNS"); cols != "" {
		if w, err := strconv.Atoi(cols); err == nil && w > 0 {
			width = w
		}
	}
	if lines := os.Getenv("LINES"); lines != "" {
		if h, err := strconv.Atoi(lines); err == nil && h > 0 {
			height = h
		}
	}

	if width == 0 {
		width = 80
	}
	if height == 0 {
		height = 24
	}
	return width, height
}

// Mode is a width breakpoint.
type Mode int

const (
	// Compact stacks the label above the graph (narrower than 60 columns).
	Compact Mode = iota
	// Normal puts the label beside the graph.
	Normal
)

// String returns the human-readable name of the mode.
func (m Mode) String() string {
	switch m {
	case Compact:
		return "compact"
	case Normal:
		return "normal"
	default:
		return "unknown"
	}
}

// CompactBelow is the width under which the layout switches to Compact.
const CompactBelow = 60

// LabelWidth is the width of the label column in Normal mode.
const LabelWidth = 22

// MinGraphColumns is the narrowest graph ever drawn.
const MinGraphColumns = 10

// chrome is the horizontal space taken by the panel border and padding.
const chrome = 4

// DetectMode returns the Mode for a terminal width.
func DetectMode(width int) Mode {
	if width < CompactBelow {
		return Compact
	}
	return Normal
}

// GraphColumns returns how many graph columns fit in a terminal of the given
// width. Each column is one ValueAt evaluation.
func GraphColumns(width int) int {
	cols := width - chrome
	if DetectMode(width) == Normal {
		cols -= LabelWidth
	}
	return max(cols, MinGraphColumns)
}

// PanelHeight returns the rows one series panel occupies.
func PanelHeight(width, graphHeight int) int {
	h := graphHeight + 2 // border
	if DetectMode(width) == Compact {
		h++ // label row
	}
	return h
}

// VisiblePanels returns how many of n panels fit below the header and
// footer, never less than one.
func VisiblePanels(width, height, graphHeight, n int) int {
	const headerFooter = 4
	fit := (height - headerFooter) / PanelHeight(width, graphHeight)
	return max(1, min(fit, n))
}
