package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all key bindings for the TUI application.
// It implements the help.KeyMap interface for bubbles/help integration.
type keyMap struct {
	Quit   key.Binding
	Next   key.Binding
	Prev   key.Binding
	Faster key.Binding
	Slower key.Binding
	Pause  key.Binding
	Save   key.Binding
	Help   key.Binding
}

// ShortHelp returns the compact set of keybindings shown by default in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Next, k.Faster, k.Slower, k.Pause, k.Quit}
}

// FullHelp returns the expanded keybinding groups shown when help is toggled.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev},
		{k.Faster, k.Slower, k.Pause},
		{k.Save, k.Help, k.Quit},
	}
}

// keys holds the default key bindings used by the application.
var keys = keyMap{
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Next:   key.NewBinding(key.WithKeys("tab", "j", "down"), key.WithHelp("tab/j", "next graph")),
	Prev:   key.NewBinding(key.WithKeys("shift+tab", "k", "up"), key.WithHelp("shift+tab/k", "prev graph")),
	Faster: key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
	Slower: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
	Pause:  key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause")),
	Save:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save png")),
	Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}
