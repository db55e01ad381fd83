// Package app is the terminal board watcher. It renders the active board
// of a sync engine and re-renders on every entity store change.
package app

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workera/internal/entity"
	"github.com/nhle/workera/internal/keys"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/permission"
	wsync "github.com/nhle/workera/internal/sync"
	"github.com/nhle/workera/internal/theme"
	"github.com/nhle/workera/internal/ui"
	boardview "github.com/nhle/workera/internal/ui/board"
	helpview "github.com/nhle/workera/internal/ui/help"
	"github.com/nhle/workera/internal/ui/inbox"
)

// ViewState represents the current active view.
type ViewState int

const (
	ViewBoard ViewState = iota
	ViewInbox
	ViewHelp
)

// actionDoneMsg reports the result of an engine call run as a command.
type actionDoneMsg struct {
	err error
}

// accessMsg carries the resolved permissions on a board.
type accessMsg struct {
	boardID string
	checker permission.Checker
	err     error
}

// changeBuffer is the capacity of the store subscription.
const changeBuffer = 64

// Model is the root Bubble Tea model.
type Model struct {
	ctx     context.Context
	engine  *wsync.Engine
	changes <-chan entity.Change
	stop    func()

	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	shortHelp    help.Model
	board        boardview.Model
	inbox        inbox.Model
	helpView     helpview.Model
	status       wsync.Status
	message      string

	// access applies to accessFor; a resolve for accessPending is in flight.
	access        permission.Checker
	accessFor     string
	accessPending string
}

// New creates a watcher over e. The store subscription lives until the
// program quits.
func New(ctx context.Context, e *wsync.Engine) Model {
	k := keys.DefaultKeyMap()
	changes, stop := e.Changes(changeBuffer)
	short := help.New()
	short.Styles.ShortDesc = theme.HelpStyle
	m := Model{
		ctx:       ctx,
		engine:    e,
		changes:   changes,
		stop:      stop,
		layout:    ui.NewLayout(80, 24),
		keys:      k,
		shortHelp: short,
		board:     boardview.New(80, 22),
		inbox:     inbox.New(80, 22),
		helpView:  helpview.New(k, 80, 22),
		status:    e.Status(),
	}
	m.setAccess(resolveAccess(ctx, e, e.ActiveBoard()))
	m.refresh()
	return m
}

// Init starts listening for store changes.
func (m Model) Init() tea.Cmd {
	return m.engine.WaitForChange(m.changes)
}

// refresh copies the engine's view of the active board and inbox, and
// resolves the access to a newly active board.
func (m *Model) refresh() tea.Cmd {
	active := m.engine.ActiveBoard()
	if b, ok := m.engine.Store().Board(active); ok {
		m.board.SetBoard(b)
	} else {
		m.board.SetBoard(model.Board{})
	}
	cmd := m.inbox.SetNotifications(m.engine.NotificationHistory())
	if active == "" || active == m.accessFor || active == m.accessPending {
		return cmd
	}
	m.accessPending = active
	ctx, e := m.ctx, m.engine
	return tea.Batch(cmd, func() tea.Msg { return resolveAccess(ctx, e, active) })
}

func resolveAccess(ctx context.Context, e *wsync.Engine, boardID string) accessMsg {
	if boardID == "" {
		return accessMsg{}
	}
	checker, err := e.BoardAccess(ctx, boardID)
	return accessMsg{boardID: boardID, checker: checker, err: err}
}

func (m *Model) setAccess(msg accessMsg) {
	m.access, m.accessFor = msg.checker, msg.boardID
	if m.accessPending == msg.boardID {
		m.accessPending = ""
	}
	if msg.err != nil {
		m.message = msg.err.Error()
	}
	switch {
	case msg.boardID == "":
		m.helpView.SetNote("")
	case msg.checker.Role != "":
		m.helpView.SetNote("Your role on this board: " + msg.checker.Role)
	default:
		m.helpView.SetNote("You have no role on this board.")
	}
}

// allowed reports whether the user may perform action on the active board,
// leaving a message when not.
func (m *Model) allowed(action permission.Action) bool {
	if m.accessFor != m.engine.ActiveBoard() {
		m.message = "checking access to the board"
		return false
	}
	if !m.access.Can(action) {
		m.message = "read-only: your role on this board does not allow that"
		return false
	}
	return true
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.board.SetSize(w, h)
		m.inbox.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.shortHelp.Width = w
		return m, nil

	case wsync.ChangeMsg:
		m.status = msg.Status
		return m, tea.Batch(m.refresh(), m.engine.WaitForChange(m.changes))

	case accessMsg:
		if msg.boardID == m.engine.ActiveBoard() {
			m.setAccess(msg)
		}
		return m, nil

	case actionDoneMsg:
		m.status = m.engine.Status()
		if msg.err != nil {
			m.message = msg.err.Error()
		}
		return m, m.refresh()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil

	case key.Matches(msg, m.keys.Back):
		m.currentView = ViewBoard
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.run(func(ctx context.Context) error { return m.engine.Reload(ctx) })

	case key.Matches(msg, m.keys.Inbox):
		if m.currentView == ViewInbox {
			m.currentView = ViewBoard
		} else {
			m.currentView = ViewInbox
		}
		return m, nil
	}

	switch m.currentView {
	case ViewBoard:
		return m.handleBoardKey(msg)
	case ViewInbox:
		return m.handleInboxKey(msg)
	}
	return m, nil
}

func (m Model) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Down):
		m.board.MoveCursor(1)
	case key.Matches(msg, m.keys.Up):
		m.board.MoveCursor(-1)
	case key.Matches(msg, m.keys.NextBoard):
		return m, m.cycleBoard(1)
	case key.Matches(msg, m.keys.PrevBoard):
		return m, m.cycleBoard(-1)
	case key.Matches(msg, m.keys.ToggleHidden):
		if it, ok := m.board.Selected(); ok && m.allowed(permission.EditItems) {
			m.apply(m.engine.SetItemHidden(it.ID, !it.IsHidden))
		}
	case key.Matches(msg, m.keys.MoveUp):
		if m.allowed(permission.EditItems) {
			m.moveSelected(-1)
		}
	case key.Matches(msg, m.keys.MoveDown):
		if m.allowed(permission.EditItems) {
			m.moveSelected(1)
		}
	}
	return m, nil
}

func (m Model) handleInboxKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n, ok := m.inbox.Selected()
	switch {
	case key.Matches(msg, m.keys.Accept):
		if ok {
			id := n.ID
			return m, m.run(func(ctx context.Context) error { return m.engine.AcceptNotification(ctx, id) })
		}
	case key.Matches(msg, m.keys.Decline):
		if ok {
			m.apply(m.engine.DeclineNotification(n.ID))
		}
	case key.Matches(msg, m.keys.Read):
		if ok {
			m.apply(m.engine.MarkNotificationRead(n.ID))
		}
	default:
		var cmd tea.Cmd
		m.inbox, cmd = m.inbox.Update(msg)
		return m, cmd
	}
	return m, nil
}

// moveSelected swaps the selected item with its neighbor. Crossing into
// another group moves the item into that group.
func (m *Model) moveSelected(delta int) {
	it, ok := m.board.Selected()
	if !ok {
		return
	}
	over, ok := m.board.Neighbor(delta)
	if !ok {
		return
	}
	if m.apply(m.engine.MoveItem(it.BoardID, it.ID, over.ID, over.GroupID)) {
		m.board.MoveCursor(delta)
	}
}

func (m *Model) cycleBoard(delta int) tea.Cmd {
	boards := m.engine.Store().Boards(m.engine.ActiveWorkspace())
	if len(boards) == 0 {
		return nil
	}
	cur := 0
	for i, b := range boards {
		if b.ID == m.engine.ActiveBoard() {
			cur = i
			break
		}
	}
	next := boards[(cur+delta+len(boards))%len(boards)]
	if m.apply(m.engine.SelectBoard(next.ID)) {
		return m.refresh()
	}
	return nil
}

// apply records a synchronous engine error and reports success.
func (m *Model) apply(err error) bool {
	if err != nil {
		m.message = err.Error()
		return false
	}
	return true
}

// run executes a blocking engine call off the UI goroutine.
func (m Model) run(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: fn(ctx)}
	}
}

// View renders the current view inside the frame.
func (m Model) View() string {
	workspace := ""
	if ws, ok := m.engine.Store().Workspace(m.engine.ActiveWorkspace()); ok {
		workspace = ws.Title
	}
	var content, section string
	switch m.currentView {
	case ViewInbox:
		content, section = m.inbox.View(), "Inbox"
	case ViewHelp:
		content, section = m.helpView.View(), "Keys"
	default:
		content = m.board.View()
	}
	header := m.layout.RenderHeader(m.status.State.String(), workspace, m.board.Board().Title, section)

	hints := m.shortHelp.ShortHelpView(m.keys.ShortHelp())
	switch {
	case m.message != "":
		hints = theme.ErrorStyle.Render(m.message)
	case m.status.Error != nil:
		hints = theme.ErrorStyle.Render("sync: " + m.status.Error.Error())
	}
	info := ""
	if m.accessFor != "" && !m.access.Can(permission.EditItems) {
		info = "read-only"
	}
	return m.layout.RenderWithFrame(header, content, m.layout.RenderStatusBar(hints, info))
}
