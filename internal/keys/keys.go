package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the board watcher.
type KeyMap struct {
	// Navigation
	Down      key.Binding
	Up        key.Binding
	NextBoard key.Binding
	PrevBoard key.Binding

	// Item actions
	ToggleHidden key.Binding
	MoveUp       key.Binding
	MoveDown     key.Binding

	// Inbox
	Inbox   key.Binding
	Accept  key.Binding
	Decline key.Binding
	Read    key.Binding

	Refresh key.Binding
	Help    key.Binding
	Back    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		NextBoard: key.NewBinding(
			key.WithKeys("tab", "l"),
			key.WithHelp("tab", "next board"),
		),
		PrevBoard: key.NewBinding(
			key.WithKeys("shift+tab", "h"),
			key.WithHelp("shift+tab", "previous board"),
		),
		ToggleHidden: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "hide/show item"),
		),
		MoveUp: key.NewBinding(
			key.WithKeys("K"),
			key.WithHelp("K", "move item up"),
		),
		MoveDown: key.NewBinding(
			key.WithKeys("J"),
			key.WithHelp("J", "move item down"),
		),
		Inbox: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "notifications"),
		),
		Accept: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "accept invite"),
		),
		Decline: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "decline invite"),
		),
		Read: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mark read"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the status bar.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.NextBoard, k.Inbox, k.Help, k.Quit}
}

// Section is a titled group of bindings in the help overlay.
type Section struct {
	Title    string
	Bindings []key.Binding
}

// Sections returns the bindings grouped by what they act on.
func (k *KeyMap) Sections() []Section {
	return []Section{
		{"Board", []key.Binding{k.Up, k.Down, k.NextBoard, k.PrevBoard}},
		{"Items", []key.Binding{k.ToggleHidden, k.MoveUp, k.MoveDown}},
		{"Inbox", []key.Binding{k.Inbox, k.Accept, k.Decline, k.Read}},
		{"Session", []key.Binding{k.Refresh, k.Help, k.Back, k.Quit}},
	}
}

// FullHelp returns all keybindings grouped by category.
func (k *KeyMap) FullHelp() [][]key.Binding {
	sections := k.Sections()
	out := make([][]key.Binding, len(sections))
	for i, sec := range sections {
		out[i] = sec.Bindings
	}
	return out
}
