package app

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/permission"
	"github.com/nhle/workera/internal/store"
	wsync "github.com/nhle/workera/internal/sync"
	"github.com/nhle/workera/tests/testutil"
)

func newWatcher(t *testing.T) (Model, *wsync.Engine) {
	t.Helper()
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)
	return watch(t, s, testutil.UserID)
}

func watch(t *testing.T, s *store.SQLStore, userID string) (Model, *wsync.Engine) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	e := wsync.New(s, wsync.Config{UserID: userID, Logger: logger})
	t.Cleanup(func() { _ = e.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	if err := e.ActivateWorkspace(ctx, testutil.WorkspaceID); err != nil {
		t.Fatalf("ActivateWorkspace: %v", err)
	}
	m := New(ctx, e)
	t.Cleanup(m.stop)
	return m, e
}

func press(t *testing.T, m Model, keys string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	return next.(Model)
}

func TestWatcherRendersActiveBoard(t *testing.T) {
	m, _ := newWatcher(t)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	view := next.(Model).View()
	for _, want := range []string{"Main", "Roadmap", "To do", "Design", "Working on it", "Plan"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestToggleHiddenAppliesOptimistically(t *testing.T) {
	m, e := newWatcher(t)
	m = press(t, m, "j")
	it, ok := m.board.Selected()
	if !ok || it.ID != testutil.Item2 {
		t.Fatalf("selected %q, want Item2", it.ID)
	}

	m = press(t, m, "x")
	got, _ := e.Store().Item(testutil.Item2)
	if !got.IsHidden {
		t.Error("item not hidden in the store")
	}
	if m.message != "" {
		t.Errorf("unexpected message %q", m.message)
	}
}

func TestViewerCannotEditItems(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.SeedBoard(t, s)
	viewer := model.NewID()
	err := s.CreateMembership(context.Background(), model.Membership{
		ID: model.NewID(), Kind: model.MembershipBoard, EntityID: testutil.BoardID, UserID: viewer, Role: model.RoleViewer,
	})
	if err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	m, e := watch(t, s, viewer)
	if m.access.Can(permission.EditItems) || !m.access.Can(permission.ViewBoard) {
		t.Fatalf("access = %+v, want viewer", m.access)
	}

	m = press(t, m, "x")
	if got, _ := e.Store().Item(testutil.Item1); got.IsHidden {
		t.Error("viewer hid an item")
	}
	if !strings.Contains(m.message, "read-only") {
		t.Errorf("message = %q", m.message)
	}
	m = press(t, m, "J")
	if got, _ := e.Store().Item(testutil.Item1); got.Position != 0 {
		t.Errorf("viewer moved an item to %d", got.Position)
	}
}

func TestBoardSwitchResolvesAccess(t *testing.T) {
	m, e := newWatcher(t)
	second, err := e.CreateBoard(testutil.WorkspaceID, "Second")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}
	if err := e.Flush(m.ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	m = next.(Model)
	if e.ActiveBoard() != second.ID {
		t.Fatalf("active board = %s, want the new board", e.ActiveBoard())
	}
	if cmd == nil {
		t.Fatal("board switch issued no access lookup")
	}
	m = press(t, m, "x")
	if !strings.Contains(m.message, "checking access") {
		t.Errorf("message before the lookup = %q", m.message)
	}

	next, _ = m.Update(resolveAccess(m.ctx, e, second.ID))
	if m = next.(Model); !m.access.Can(permission.EditItems) || m.accessFor != second.ID {
		t.Errorf("access = %+v for %s, want owner of the new board", m.access, m.accessFor)
	}
}

func TestMoveDownCrossesIntoNextGroup(t *testing.T) {
	m, e := newWatcher(t)
	m = press(t, m, "j") // Item2, last of "To do"
	m = press(t, m, "J")

	got, _ := e.Store().Item(testutil.Item2)
	if got.GroupID != testutil.GroupDone {
		t.Errorf("group = %s, want GroupDone", got.GroupID)
	}
}

func TestChangeMessagesRefreshAndRelisten(t *testing.T) {
	m, e := newWatcher(t)
	if err := e.RenameItem(testutil.Item1, "Sketch"); err != nil {
		t.Fatalf("RenameItem: %v", err)
	}

	msg := m.Init()()
	if _, ok := msg.(wsync.ChangeMsg); !ok {
		t.Fatalf("Init yielded %T, want ChangeMsg", msg)
	}
	next, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("no follow-up command after a change")
	}
	if it, _ := next.(Model).board.Selected(); it.Title != "Sketch" {
		t.Errorf("selected title = %q, want Sketch", it.Title)
	}
}

func TestViewSwitching(t *testing.T) {
	m, _ := newWatcher(t)
	m = press(t, m, "n")
	if m.currentView != ViewInbox {
		t.Fatalf("view = %v, want inbox", m.currentView)
	}
	m = press(t, m, "?")
	if m.currentView != ViewHelp {
		t.Fatalf("view = %v, want help", m.currentView)
	}
	m = press(t, m, "?")
	if m.currentView != ViewInbox {
		t.Fatalf("help did not return to the inbox, view = %v", m.currentView)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
