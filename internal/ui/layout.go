// Package ui holds the frame shared by the watcher views.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workera/internal/theme"
)

// The header and status bar take one row each.
const (
	headerRows = 1
	statusRows = 1
)

// Layout is the watcher frame: a breadcrumb header, the content area and a
// status bar.
type Layout struct {
	Width  int
	Height int
}

// NewLayout returns the frame of a width by height terminal.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentWidth is the width of the content area.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight is the height left between header and status bar.
func (l Layout) ContentHeight() int {
	return max(l.Height-headerRows-statusRows, 0)
}

// RenderHeader renders the non-empty crumbs joined by › with the sync
// state right-aligned.
func (l Layout) RenderHeader(syncState string, crumbs ...string) string {
	var parts []string
	for _, c := range crumbs {
		if c != "" {
			parts = append(parts, c)
		}
	}
	left := theme.HeaderStyle.Render(strings.Join(parts, " › "))
	right := theme.SyncStyle(syncState).Render("● " + syncState)
	return l.bar(theme.HeaderStyle, left, right)
}

// RenderStatusBar renders the hints on the left and info on the right.
func (l Layout) RenderStatusBar(hints, info string) string {
	left := theme.StatusBarStyle.Render(hints)
	right := ""
	if info != "" {
		right = theme.StatusBarStyle.Render(info)
	}
	return l.bar(theme.StatusBarStyle, left, right)
}

// bar fills the gap between left and right with the style's background.
// right is dropped when both do not fit.
func (l Layout) bar(style lipgloss.Style, left, right string) string {
	gap := l.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		right = ""
		gap = max(l.Width-lipgloss.Width(left), 0)
	}
	filler := lipgloss.NewStyle().Width(gap).Background(style.GetBackground()).Render("")
	return left + filler + right
}

// RenderWithFrame stacks header, content and status bar, clipping or
// padding the content to ContentHeight.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	h := l.ContentHeight()
	body := lipgloss.NewStyle().Height(h).MaxHeight(h).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, statusBar)
}
