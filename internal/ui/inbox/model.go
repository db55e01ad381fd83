// Package inbox renders the notification feed of the board watcher.
package inbox

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/theme"
)

// Entry wraps a model.Notification so it can be used in a bubbles/list.
type Entry struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (e Entry) FilterValue() string { return Summary(e.Notification) }

// Summary returns the one-line text of a notification.
func Summary(n model.Notification) string {
	subject := n.Data.EntityTitle
	if subject == "" {
		subject = n.EntityID
	}
	switch n.Type {
	case model.NotificationWorkspaceInvite:
		return fmt.Sprintf("invited to workspace %s as %s", subject, roleOrDefault(n.Data.Role))
	case model.NotificationBoardInvite:
		return fmt.Sprintf("invited to board %s as %s", subject, roleOrDefault(n.Data.Role))
	case model.NotificationAssignment:
		return "assigned to " + subject
	case model.NotificationMention:
		if n.Data.Message != "" {
			return "mentioned: " + n.Data.Message
		}
		return "mentioned on " + subject
	}
	return string(n.Type)
}

func roleOrDefault(role string) string {
	if role == "" {
		return model.RoleEditor
	}
	return role
}

type delegate struct{}

func (delegate) Height() int                             { return 1 }
func (delegate) Spacing() int                            { return 0 }
func (delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single notification line.
func (delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	e, ok := item.(Entry)
	if !ok {
		return
	}
	n := e.Notification

	marker := "•"
	if n.IsRead {
		marker = " "
	}
	badge := ""
	if n.Type.IsInvite() {
		status := n.Data.Status
		if status == "" {
			status = model.InviteStatusPending
		}
		badge = theme.NotificationStyle(status).Render(status) + " "
	}
	line := fmt.Sprintf("%s %s%s  %s", marker, badge, Summary(n), age(n.CreatedAt))
	if n.IsRead {
		line = theme.DimmedStyle.Render(line)
	}
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// age renders a unix millisecond timestamp relative to now.
func age(ms int64) string {
	if ms == 0 {
		return ""
	}
	d := time.Since(time.UnixMilli(ms))
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Model is the notification list view.
type Model struct {
	list list.Model
}

// New creates an empty inbox of the given size.
func New(width, height int) Model {
	l := list.New([]list.Item{}, delegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	return Model{list: l}
}

// SetNotifications replaces the listed notifications, keeping the cursor
// on the same notification when it is still present.
func (m *Model) SetNotifications(notes []model.Notification) tea.Cmd {
	selected := ""
	if n, ok := m.Selected(); ok {
		selected = n.ID
	}
	items := make([]list.Item, len(notes))
	index := 0
	for i, n := range notes {
		items[i] = Entry{Notification: n}
		if n.ID == selected {
			index = i
		}
	}
	cmd := m.list.SetItems(items)
	m.list.Select(index)
	return cmd
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	e, ok := m.list.SelectedItem().(Entry)
	if !ok {
		return model.Notification{}, false
	}
	return e.Notification, true
}

// Len returns the number of listed notifications.
func (m Model) Len() int { return len(m.list.Items()) }

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.list.SetSize(width, height)
}

// Update forwards navigation keys to the list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list.
func (m Model) View() string {
	return m.list.View()
}
