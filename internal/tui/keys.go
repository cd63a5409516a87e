package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all dashboard key bindings with built-in help text.
type KeyMap struct {
	// Global
	Quit       key.Binding
	ForceQuit  key.Binding
	Help       key.Binding
	SwitchPage key.Binding

	// Navigation
	Up    key.Binding
	Down  key.Binding
	Enter key.Binding

	// Visibility
	ToggleKind key.Binding
	ToggleAll  key.Binding
	Overview   key.Binding

	// Refresh
	Refresh      key.Binding
	Pause        key.Binding
	IntervalUp   key.Binding
	IntervalDown key.Binding

	// Templates
	Duplicate    key.Binding
	ToggleActive key.Binding
	Delete       key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		SwitchPage: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "dashboard/templates"),
		),

		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "select"),
		),

		ToggleKind: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6"),
			key.WithHelp("1-6", "toggle chart"),
		),
		ToggleAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "select all/none"),
		),
		Overview: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "overview"),
		),

		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh now"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pause/resume"),
		),
		IntervalUp: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "slower refresh"),
		),
		IntervalDown: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "faster refresh"),
		),

		Duplicate: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "duplicate"),
		),
		ToggleActive: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle active"),
		),
		Delete: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "delete"),
		),
	}
}

// dashboardHelp adapts KeyMap to help.KeyMap for the dashboard page.
type dashboardHelp struct{ KeyMap }

func (k dashboardHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.ToggleKind, k.ToggleAll, k.Refresh, k.Pause, k.SwitchPage, k.Help, k.Quit}
}

func (k dashboardHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter, k.ToggleKind, k.ToggleAll, k.Overview},
		{k.Refresh, k.Pause, k.IntervalDown, k.IntervalUp},
		{k.SwitchPage, k.Help, k.Quit, k.ForceQuit},
	}
}

// templatesHelp adapts KeyMap to help.KeyMap for the template browser.
type templatesHelp struct{ KeyMap }

func (k templatesHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Enter, k.Duplicate, k.ToggleActive, k.Delete, k.SwitchPage, k.Quit}
}

func (k templatesHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Duplicate, k.ToggleActive, k.Delete},
		{k.SwitchPage, k.Help, k.Quit, k.ForceQuit},
	}
}
