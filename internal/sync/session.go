package sync

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/localstate"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/value"
)

// Template content of the board created on first login.
const (
	DefaultWorkspaceTitle = "My workspace"
	TemplateBoardTitle    = "Getting started"
)

var templateItems = []struct {
	title  string
	status string
}{
	{"Plan the week", "Working on it"},
	{"Invite your team", "Not started"},
	{"Try moving this item", "Done"},
}

// ActiveWorkspace returns the workspace of the current session.
func (e *Engine) ActiveWorkspace() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workspaceID
}

// ActiveBoard returns the selected board of the current session.
func (e *Engine) ActiveBoard() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.boardID
}

func (e *Engine) setActive(workspaceID, boardID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workspaceID, e.boardID = workspaceID, boardID
}

// saveState persists the selection. Failures are logged only.
func (e *Engine) saveState() {
	if e.state == nil {
		return
	}
	s := localstate.State{WorkspaceID: e.ActiveWorkspace(), BoardID: e.ActiveBoard()}
	if err := e.state.Save(s); err != nil {
		e.logger.WithError(err).Warn("saving local state failed")
	}
}

// detach closes the feed subscription of the current session, if any.
func (e *Engine) detach() {
	e.mu.Lock()
	sub, cancel := e.sub, e.subCancel
	e.sub, e.subCancel = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			e.logger.WithError(err).Debug("closing feed subscription")
		}
	}
}

// attach opens the feed subscription of a workspace session.
func (e *Engine) attach(workspaceID string) error {
	if e.source == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(e.ctx)
	sub, err := e.source.Subscribe(ctx, feed.Scope{WorkspaceID: workspaceID, UserID: e.userID})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing to workspace %s: %w", workspaceID, err)
	}

	e.mu.Lock()
	e.sub, e.subCancel = sub, cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.consume(sub)
	return nil
}

// consume merges events until the subscription closes.
func (e *Engine) consume(sub feed.Subscription) {
	defer e.wg.Done()
	for ev := range sub.Events() {
		e.ApplyEvent(ev)
	}
}

// ActivateWorkspace switches the session to a workspace: the previous feed
// subscription is closed, the new one opened, the workspace reloaded and the
// selection persisted. The previously selected board is kept when it
// belongs to the workspace; otherwise the first board is selected.
func (e *Engine) ActivateWorkspace(ctx context.Context, id string) error {
	if err := model.ValidateID(id); err != nil {
		return err
	}
	if e.closed() {
		return ErrClosed
	}
	prevBoard := e.ActiveBoard()

	e.detach()
	e.setActive(id, "")
	if err := e.attach(id); err != nil {
		return err
	}
	if err := e.Reload(ctx); err != nil {
		return err
	}

	// A reload already in flight may have started before the switch.
	e.mu.Lock()
	loaded := e.loadedWorkspace == id
	e.mu.Unlock()
	if !loaded {
		err := e.collapse(ctx, "workspace:"+id, func() error {
			return e.reloadWorkspaceBoards(ctx, id)
		})
		if err != nil {
			return err
		}
	}

	if _, ok := e.store.Workspace(id); !ok {
		e.detach()
		e.setActive("", "")
		return fmt.Errorf("%w: workspace %s", ErrNotFound, id)
	}

	boardID := ""
	if b, ok := e.store.Board(prevBoard); ok && b.WorkspaceID == id {
		boardID = prevBoard
	} else if boards := e.store.Boards(id); len(boards) > 0 {
		boardID = boards[0].ID
	}
	e.setActive(id, boardID)
	e.saveState()
	e.logger.WithFields(log.Fields{"workspace": id, "board": boardID}).Info("workspace session started")
	return nil
}

// SelectBoard selects a board of the active workspace.
func (e *Engine) SelectBoard(id string) error {
	b, err := e.loadedBoard(id)
	if err != nil {
		return err
	}
	ws := e.ActiveWorkspace()
	if b.WorkspaceID != ws {
		return fmt.Errorf("%w: board %s is not in the active workspace", ErrInvalidInput, id)
	}
	e.setActive(ws, id)
	e.saveState()
	return nil
}

// Start bootstraps the account and activates the last active workspace, or
// the first one.
func (e *Engine) Start(ctx context.Context) error {
	var saved localstate.State
	if e.state != nil {
		var err error
		if saved, err = e.state.Load(); err != nil {
			e.logger.WithError(err).Warn("loading local state failed")
		}
	}
	if err := e.Bootstrap(ctx); err != nil {
		return err
	}

	workspaces := e.store.Workspaces()
	if len(workspaces) == 0 {
		return fmt.Errorf("%w: no workspace available", ErrBootstrap)
	}
	wsID := workspaces[0].ID
	if _, ok := e.store.Workspace(saved.WorkspaceID); ok {
		wsID = saved.WorkspaceID
	}

	e.setActive("", saved.BoardID)
	return e.ActivateWorkspace(ctx, wsID)
}

// Bootstrap loads the user's workspaces. On first login, when there are
// none, it creates a default workspace with a template board before
// returning. Every failure is returned wrapped in ErrBootstrap.
func (e *Engine) Bootstrap(ctx context.Context) error {
	workspaces, err := e.remote.ListWorkspaces(ctx, e.userID)
	if err != nil {
		return fmt.Errorf("%w: loading workspaces: %w", ErrBootstrap, err)
	}
	if len(workspaces) > 0 {
		e.store.ReplaceWorkspaces(workspaces)
		return nil
	}

	ws := model.Workspace{
		ID:      model.NewID(),
		Title:   DefaultWorkspaceTitle,
		OwnerID: e.userID,
	}
	if err := e.remote.CreateWorkspace(ctx, ws); err != nil {
		return fmt.Errorf("%w: creating workspace: %w", ErrBootstrap, err)
	}
	b := templateBoard(ws.ID)
	if err := persistBoard(ctx, e.remote, b); err != nil {
		return fmt.Errorf("%w: creating template board: %w", ErrBootstrap, err)
	}

	e.store.ReplaceWorkspaces([]model.Workspace{ws})
	b.Loaded = true
	e.store.ReplaceBoard(b)
	e.logger.WithFields(log.Fields{"workspace": ws.ID, "board": b.ID}).Info("bootstrapped first workspace")
	return nil
}

// templateBoard is a new board with a few sample items in its first group.
func templateBoard(workspaceID string) model.Board {
	b := newBoard(workspaceID, TemplateBoardTitle, 0)
	status := b.Columns[0]
	groupID := b.Groups[0].ID
	for i, t := range templateItems {
		it := model.Item{
			ID:       model.NewID(),
			BoardID:  b.ID,
			GroupID:  groupID,
			Title:    t.title,
			Position: i,
			Values:   map[string]json.RawMessage{},
		}
		if opt, ok := status.OptionByLabel(t.status); ok {
			if raw, err := value.Normalize(status, jsonOf(opt.ID)); err == nil {
				it.Values[status.ID] = raw
			}
		}
		b.Items = append(b.Items, it)
	}
	return b
}

// Logout ends the session and clears every loaded entity. Queued writes
// still run.
func (e *Engine) Logout() {
	e.detach()
	e.setActive("", "")
	e.mu.Lock()
	e.loadedWorkspace = ""
	e.mu.Unlock()
	e.store.Reset()
	e.optimistic.reset()
}
