// Package tui is the interactive loadgraph dashboard: one live graph per
// series, redrawn on every sampling tick.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"gitlab.com/tinyland/lab/loadgraph/collectors"
	"gitlab.com/tinyland/lab/loadgraph/display/layout"
	"gitlab.com/tinyland/lab/loadgraph/display/plot"
	"gitlab.com/tinyland/lab/loadgraph/history"
	"gitlab.com/tinyland/lab/loadgraph/internal/format"
)

// IntervalSetter is implemented by the runner to allow dynamic interval changes.
type IntervalSetter interface {
	SetInterval(d time.Duration) error
	Interval() time.Duration
}

// Source is the read side of the series store. *history.Store implements it.
type Source interface {
	Names() []string
	Summary(name string) (history.Summary, bool)
	Grid(name string, end time.Time, columns int, step time.Duration) (history.Grid, bool)
}

// DefaultPresets are the interval steps +/- walk through (fastest first).
var DefaultPresets = []time.Duration{
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// UpdateMsg delivers a runner update to the UI.
type UpdateMsg collectors.Update

// savedMsg reports the outcome of a PNG save.
type savedMsg struct {
	path string
	err  error
}

// WaitForUpdate returns a tea.Cmd that waits for the next runner update.
// Returns tea.Quit if the channel is closed (runner stopped).
func WaitForUpdate(ch <-chan collectors.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return tea.Quit()
		}
		return UpdateMsg(u)
	}
}

// Options configures a Model.
type Options struct {
	// Presets are the interval steps. Empty uses DefaultPresets.
	Presets []time.Duration
	// GraphHeight is the rows per graph (default 4).
	GraphHeight int
	// Series restricts and orders the graphs shown. Empty shows every series.
	Series []string
	// SaveDir is where the save key writes PNGs. Empty disables saving.
	SaveDir string
	// Now is the clock used for the graph's right edge (default time.Now).
	Now func() time.Time
}

// Model is the top-level Bubbletea model for the loadgraph TUI.
type Model struct {
	width  int
	height int
	ready  bool

	source  Source
	setter  IntervalSetter
	updates <-chan collectors.Update

	presets     []time.Duration
	intervalIdx int

	graphHeight int
	filter      []string
	focus       int
	offset      int

	paused     bool
	pausedAt   time.Time
	lastUpdate time.Time
	lastErrors []collectors.CollectorFail

	flash   string
	saveDir string
	now     func() time.Time

	help  help.Model
	zones *zone.Manager
}

// New returns an initialized Model reading from source and redrawing on
// every value received from updates.
func New(source Source, updates <-chan collectors.Update, opts Options) Model {
	presets := opts.Presets
	if len(presets) == 0 {
		presets = DefaultPresets
	}
	height := opts.GraphHeight
	if height <= 0 {
		height = 4
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return Model{
		source:      source,
		updates:     updates,
		presets:     presets,
		intervalIdx: nearestPreset(presets, time.Second),
		graphHeight: height,
		filter:      opts.Series,
		saveDir:     opts.SaveDir,
		now:         now,
		help:        help.New(),
		zones:       zone.New(),
	}
}

// SetIntervalSetter sets the runner reference for dynamic interval changes
// and aligns the preset index with its current interval.
func (m *Model) SetIntervalSetter(s IntervalSetter) {
	m.setter = s
	if s != nil {
		m.intervalIdx = nearestPreset(m.presets, s.Interval())
	}
}

// nearestPreset returns the index of the preset closest to d.
func nearestPreset(presets []time.Duration, d time.Duration) int {
	best := 0
	for i, p := range presets {
		if absDuration(p-d) < absDuration(presets[best]-d) {
			best = i
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return WaitForUpdate(m.updates)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true
		m.clampScroll()
		return m, nil

	case UpdateMsg:
		m.lastUpdate = msg.Timestamp
		m.lastErrors = msg.Errors
		if msg.Interval > 0 {
			m.intervalIdx = nearestPreset(m.presets, msg.Interval)
		}
		if m.updates == nil {
			return m, nil
		}
		return m, WaitForUpdate(m.updates)

	case savedMsg:
		if msg.err != nil {
			m.flash = "save failed: " + msg.err.Error()
		} else {
			m.flash = "saved " + msg.path
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Next):
		m.moveFocus(1)
	case key.Matches(msg, keys.Prev):
		m.moveFocus(-1)
	case key.Matches(msg, keys.Faster):
		m.changeInterval(-1)
	case key.Matches(msg, keys.Slower):
		m.changeInterval(1)
	case key.Matches(msg, keys.Pause):
		m.paused = !m.paused
		if m.paused {
			m.pausedAt = m.now()
		}
	case key.Matches(msg, keys.Save):
		return m, m.saveFocused()
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionPress {
		return m, nil
	}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.moveFocus(-1)
	case tea.MouseButtonWheelDown:
		m.moveFocus(1)
	case tea.MouseButtonLeft:
		for i, name := range m.names() {
			if m.zones.Get(panelZone(name)).InBounds(msg) {
				m.focus = i
				break
			}
		}
	}
	return m, nil
}

// changeInterval steps through the presets and applies the new interval.
func (m *Model) changeInterval(delta int) {
	idx := max(0, min(len(m.presets)-1, m.intervalIdx+delta))
	if idx == m.intervalIdx {
		return
	}
	if m.setter != nil {
		if err := m.setter.SetInterval(m.presets[idx]); err != nil {
			m.flash = "interval: " + err.Error()
			return
		}
	}
	m.intervalIdx = idx
	m.flash = ""
}

func (m *Model) moveFocus(delta int) {
	n := len(m.names())
	if n == 0 {
		return
	}
	m.focus = (m.focus + delta + n) % n
	m.clampScroll()
}

// clampScroll keeps the focused panel inside the visible window.
func (m *Model) clampScroll() {
	n := len(m.names())
	if n == 0 {
		m.focus, m.offset = 0, 0
		return
	}
	m.focus = min(m.focus, n-1)
	visible := layout.VisiblePanels(m.width, m.height, m.graphHeight, n)
	if m.focus < m.offset {
		m.offset = m.focus
	}
	if m.focus >= m.offset+visible {
		m.offset = m.focus - visible + 1
	}
	m.offset = max(0, min(m.offset, n-visible))
}

// names returns the series to show, in display order.
func (m Model) names() []string {
	all := m.source.Names()
	if len(m.filter) == 0 {
		return all
	}
	known := make(map[string]bool, len(all))
	for _, n := range all {
		known[n] = true
	}
	var out []string
	for _, n := range m.filter {
		if known[n] {
			out = append(out, n)
		}
	}
	return out
}

// end is the graph's right edge: now, or the moment pause was pressed.
func (m Model) end() time.Time {
	if m.paused {
		return m.pausedAt
	}
	return m.now()
}

// saveFocused renders the focused series to a PNG in the save directory.
func (m Model) saveFocused() tea.Cmd {
	names := m.names()
	if m.saveDir == "" || len(names) == 0 {
		return nil
	}
	name := names[m.focus]
	end := m.end()
	columns := layout.GraphColumns(m.width)
	dir := m.saveDir
	src := m.source
	return func() tea.Msg {
		sum, ok := src.Summary(name)
		if !ok {
			return savedMsg{err: fmt.Errorf("%s: %w", name, history.ErrUnknownSeries)}
		}
		grid, _ := src.Grid(name, end, columns, windowStep(sum, columns))
		lo, hi := sum.Range()
		opt := plot.DefaultOptions()
		opt.Line = seriesColor(name)
		img, err := plot.Render(grid, lo, hi, opt)
		if err != nil {
			return savedMsg{err: err}
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.png", name, end.Format("20060102-150405")))
		return savedMsg{path: path, err: plot.Save(path, img)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	sections := []string{m.renderHeader()}
	names := m.names()
	if len(names) == 0 {
		sections = append(sections, styleMuted.Render("waiting for samples..."))
	} else {
		visible := layout.VisiblePanels(m.width, m.height, m.graphHeight, len(names))
		end := m.end()
		for i := m.offset; i < m.offset+visible && i < len(names); i++ {
			sections = append(sections, m.zones.Mark(panelZone(names[i]), m.renderPanel(names[i], end, i == m.focus)))
		}
	}
	sections = append(sections, m.renderFooter())

	return m.zones.Scan(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) renderHeader() string {
	interval := m.presets[m.intervalIdx]
	if m.setter != nil {
		interval = m.setter.Interval()
	}

	parts := []string{
		styleLabel.Render("loadgraph"),
		"interval " + styleHeaderValue.Render(format.FormatDuration(interval)),
	}
	if names := m.names(); len(names) > 0 {
		if sum, ok := m.source.Summary(names[0]); ok && sum.Window() > 0 {
			parts = append(parts, "window "+styleHeaderValue.Render(format.FormatDuration(sum.Window())))
		}
	}
	if m.paused {
		parts = append(parts, stylePaused.Render("PAUSED"))
	}
	if !m.lastUpdate.IsZero() {
		parts = append(parts, styleMuted.Render(m.lastUpdate.Format("15:04:05")))
	}
	return styleHeader.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) renderFooter() string {
	var lines []string
	if m.flash != "" {
		lines = append(lines, styleMuted.Render(m.flash))
	}
	for _, f := range m.lastErrors {
		lines = append(lines, styleError.Render(f.Collector+": "+f.Error))
	}
	lines = append(lines, styleFooter.Render(m.help.View(keys)))
	return strings.Join(lines, "\n")
}

func panelZone(name string) string {
	return "panel:" + name
}
