package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestContentHeightLeavesRoomForBars(t *testing.T) {
	if got := NewLayout(80, 24).ContentHeight(); got != 22 {
		t.Errorf("ContentHeight = %d, want 22", got)
	}
	if got := NewLayout(80, 1).ContentHeight(); got != 0 {
		t.Errorf("ContentHeight of a tiny terminal = %d, want 0", got)
	}
}

func TestHeaderSkipsEmptyCrumbs(t *testing.T) {
	l := NewLayout(80, 24)
	header := l.RenderHeader("idle", "Main", "", "Inbox")
	if !strings.Contains(header, "Main › Inbox") {
		t.Errorf("header = %q", header)
	}
	if !strings.Contains(header, "● idle") {
		t.Errorf("header misses the sync state: %q", header)
	}
	if w := lipgloss.Width(header); w != 80 {
		t.Errorf("header width = %d, want 80", w)
	}
}

func TestStatusBarDropsInfoThatDoesNotFit(t *testing.T) {
	wide := NewLayout(60, 10).RenderStatusBar("q quit", "read-only")
	if !strings.Contains(wide, "read-only") || lipgloss.Width(wide) != 60 {
		t.Errorf("wide status bar = %q", wide)
	}
	narrow := NewLayout(14, 10).RenderStatusBar("q quit", "read-only")
	if strings.Contains(narrow, "read-only") {
		t.Errorf("narrow status bar kept the info: %q", narrow)
	}
}

func TestFrameKeepsStatusBarAtTheBottom(t *testing.T) {
	l := NewLayout(40, 6)
	out := l.RenderWithFrame("head", "one\ntwo", "foot")
	lines := strings.Split(out, "\n")
	if len(lines) != 6 || !strings.HasPrefix(lines[0], "head") || !strings.HasPrefix(lines[5], "foot") {
		t.Errorf("frame = %q", lines)
	}
}
