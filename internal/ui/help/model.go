// Package help renders the key reference of the board watcher.
package help

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workera/internal/keys"
	"github.com/nhle/workera/internal/theme"
)

// sectionWidth is the width of one section column.
const sectionWidth = 26

var (
	sectionTitle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Underline(true)
	keyStyle     = lipgloss.NewStyle().Bold(true)
)

// Model is the help overlay. Sections sit side by side when the panel is
// wide enough and stack otherwise.
type Model struct {
	keys          *keys.KeyMap
	width, height int
	note          string
}

// New creates the overlay for keys.
func New(keys *keys.KeyMap, width, height int) Model {
	return Model{keys: keys, width: width, height: height}
}

// Update tracks window resizes. The root model decides when to leave.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		m.SetSize(ws.Width, ws.Height)
	}
	return m, nil
}

// SetNote sets a line shown under the sections, such as the user's role.
func (m *Model) SetNote(note string) {
	m.note = note
}

// SetSize updates the overlay dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// View renders the overlay.
func (m Model) View() string {
	inner := max(m.width-4, 0)
	var blocks []string
	for _, sec := range m.keys.Sections() {
		blocks = append(blocks, renderSection(sec))
	}

	var body string
	if inner >= sectionWidth*len(blocks) {
		body = lipgloss.JoinHorizontal(lipgloss.Top, blocks...)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, blocks...)
	}
	if m.note != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, "", theme.DimmedStyle.Render(m.note))
	}

	return theme.PanelStyle.
		Width(inner).
		Height(max(m.height-4, 0)).
		Render(body)
}

func renderSection(sec keys.Section) string {
	var b strings.Builder
	b.WriteString(sectionTitle.Render(sec.Title))
	b.WriteString("\n")
	for _, kb := range sec.Bindings {
		if !kb.Enabled() {
			continue
		}
		h := kb.Help()
		fmt.Fprintf(&b, "%s %s\n", keyStyle.Render(fmt.Sprintf("%-9s", h.Key)), h.Desc)
	}
	return lipgloss.NewStyle().Width(sectionWidth).MarginBottom(1).Render(strings.TrimRight(b.String(), "\n"))
}
