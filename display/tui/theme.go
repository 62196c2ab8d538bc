package tui

import (
	"github.com/charmbracelet/lipgloss"

	"gitlab.com/tinyland/lab/loadgraph/display/color"
)

// Styles used throughout the TUI.
var (
	styleHeader       lipgloss.Style
	styleHeaderValue  lipgloss.Style
	stylePaused       lipgloss.Style
	styleFooter       lipgloss.Style
	stylePanel        lipgloss.Style
	stylePanelFocused lipgloss.Style
	styleLabel        lipgloss.Style
	styleMuted        lipgloss.Style
	styleError        lipgloss.Style
)

func init() {
	styleHeader = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(color.Muted)

	styleHeaderValue = lipgloss.NewStyle().
		Bold(true).
		Foreground(color.Accent)

	stylePaused = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(color.Warning).
		Padding(0, 1)

	styleFooter = lipgloss.NewStyle().
		Foreground(color.Muted)

	stylePanel = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color.Grid).
		Padding(0, 1)

	stylePanelFocused = stylePanel.
		BorderForeground(color.Primary)

	styleLabel = lipgloss.NewStyle().
		Bold(true)

	styleMuted = lipgloss.NewStyle().
		Foreground(color.Muted)

	styleError = lipgloss.NewStyle().
		Foreground(color.Danger)
}
