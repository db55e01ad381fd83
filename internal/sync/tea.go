package sync

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workera/internal/entity"
)

// ChangeMsg is a tea.Msg sent when the entity store changed.
type ChangeMsg struct {
	entity.Change
	Status Status
}

// WaitForChange returns a tea.Cmd that waits for the next change on ch.
// Call it again after handling a ChangeMsg to keep listening. It yields
// nil once ch is closed.
func (e *Engine) WaitForChange(ch <-chan entity.Change) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return ChangeMsg{Change: c, Status: e.Status()}
	}
}
