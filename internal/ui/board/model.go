// Package board renders one board of the entity store as grouped rows.
package board

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/theme"
	"github.com/nhle/workera/internal/value"
)

// Model holds a board snapshot and the item cursor.
type Model struct {
	board  model.Board
	rows   []model.Item
	cursor int
	width  int
	height int
}

// New creates an empty board view.
func New(width, height int) Model {
	return Model{width: width, height: height}
}

// SetBoard replaces the snapshot. The cursor follows the selected item
// when it survives the update.
func (m *Model) SetBoard(b model.Board) {
	selected, hadSelection := m.Selected()
	m.board = b
	m.rows = nil
	for _, g := range b.Groups {
		if g.Collapsed {
			continue
		}
		m.rows = append(m.rows, g.Items...)
	}
	m.cursor = 0
	if hadSelection {
		for i, it := range m.rows {
			if it.ID == selected.ID {
				m.cursor = i
				break
			}
		}
	}
}

// Board returns the current snapshot.
func (m Model) Board() model.Board { return m.board }

// Selected returns the item under the cursor.
func (m Model) Selected() (model.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return model.Item{}, false
	}
	return m.rows[m.cursor], true
}

// Neighbor returns the item delta rows away from the cursor.
func (m Model) Neighbor(delta int) (model.Item, bool) {
	i := m.cursor + delta
	if i < 0 || i >= len(m.rows) {
		return model.Item{}, false
	}
	return m.rows[i], true
}

// MoveCursor moves the cursor by delta rows, clamped to the item list.
func (m *Model) MoveCursor(delta int) {
	m.cursor = min(max(m.cursor+delta, 0), max(len(m.rows)-1, 0))
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// View renders group headers followed by their items. Rows scroll so the
// cursor stays visible.
func (m Model) View() string {
	if m.board.ID == "" {
		return theme.DimmedStyle.Render("no board selected")
	}
	if !m.board.Loaded {
		return theme.DimmedStyle.Render("loading " + m.board.Title + "...")
	}

	var lines []string
	cursorLine := 0
	row := 0
	for _, g := range m.board.Groups {
		header := fmt.Sprintf("%s (%d)", g.Title, len(g.Items))
		if g.Collapsed {
			header = "▸ " + header
		} else {
			header = "▾ " + header
		}
		lines = append(lines, theme.GroupStyle(g.Color).Render(header))
		if g.Collapsed {
			continue
		}
		for _, it := range g.Items {
			if row == m.cursor {
				cursorLine = len(lines)
			}
			lines = append(lines, m.renderItem(it, row == m.cursor))
			row++
		}
	}
	return strings.Join(window(lines, cursorLine, m.height), "\n")
}

func (m Model) renderItem(it model.Item, selected bool) string {
	titleWidth := max(m.width/3, 16)
	cells := []string{lipgloss.NewStyle().Width(titleWidth).MaxWidth(titleWidth).Render(it.Title)}
	for _, col := range m.board.Columns {
		raw, ok := it.Values[col.ID]
		if !ok || value.IsNull(raw) {
			continue
		}
		cells = append(cells, renderCell(col, raw))
	}
	line := strings.Join(cells, " ")
	if it.IsHidden {
		line = theme.DimmedStyle.Render(line + " (hidden)")
	}
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ItemStyle.Render(line)
}

// renderCell styles option labels in their option color.
func renderCell(col model.Column, raw json.RawMessage) string {
	text := Cell(col, raw)
	if !col.Type.HasOptions() {
		return text
	}
	var ids []string
	if col.Type == model.ColumnStatus {
		var id string
		_ = json.Unmarshal(raw, &id)
		ids = []string{id}
	} else {
		_ = json.Unmarshal(raw, &ids)
	}
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		if o, ok := col.OptionByID(id); ok {
			labels = append(labels, theme.OptionStyle(o.Color).Render(o.Label))
		}
	}
	if len(labels) == 0 {
		return text
	}
	return strings.Join(labels, "")
}

// Cell renders a stored value as plain text.
func Cell(col model.Column, raw json.RawMessage) string {
	if value.IsNull(raw) {
		return ""
	}
	switch col.Type {
	case model.ColumnStatus:
		var id string
		if json.Unmarshal(raw, &id) == nil {
			if o, ok := col.OptionByID(id); ok {
				return o.Label
			}
		}
	case model.ColumnDropdown:
		var ids []string
		if json.Unmarshal(raw, &ids) == nil {
			labels := make([]string, 0, len(ids))
			for _, id := range ids {
				if o, ok := col.OptionByID(id); ok {
					labels = append(labels, o.Label)
				}
			}
			return strings.Join(labels, ", ")
		}
	case model.ColumnCheckbox:
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			if b {
				return "[x]"
			}
			return "[ ]"
		}
	case model.ColumnNumber:
		var f float64
		if json.Unmarshal(raw, &f) == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	case model.ColumnPeople, model.ColumnFiles:
		var list []json.RawMessage
		if json.Unmarshal(raw, &list) == nil {
			return fmt.Sprintf("%d %s", len(list), col.Title)
		}
	default:
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	}
	return string(raw)
}

// window returns at most height lines around focus.
func window(lines []string, focus, height int) []string {
	if height <= 0 || len(lines) <= height {
		return lines
	}
	start := max(focus-height/2, 0)
	end := min(start+height, len(lines))
	start = max(end-height, 0)
	return lines[start:end]
}
