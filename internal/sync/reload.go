package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

// SyncState is the state of the reload loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "syncing"
	case SyncError:
		return "error"
	}
	return "idle"
}

// Status describes the last reload.
type Status struct {
	State      SyncState
	LastReload time.Time
	Error      error
}

// reloadTimeout is the maximum time allowed for a single reload.
const reloadTimeout = 30 * time.Second

// fullReload is the in-flight key of a full reload.
const fullReload = ""

// reloadCall is one outstanding reload. Callers arriving while it runs wait
// for it instead of starting another.
type reloadCall struct {
	done    chan struct{}
	err     error
	waiters int
}

// Status returns the state of the last reload.
func (e *Engine) Status() Status {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	return e.status
}

// ScheduleReload requests a background reload of one board, or a full
// reload when boardID is empty. It never blocks; requests arriving while
// the trigger channel is full are dropped in favour of the timer.
func (e *Engine) ScheduleReload(boardID string) {
	select {
	case e.trigger <- boardID:
	default:
		e.logger.WithField("board", boardID).Debug("reload trigger full, skipping")
	}
}

// runReloads runs the periodic full reload and serves scheduled reloads.
func (e *Engine) runReloads() {
	defer e.wg.Done()

	var tick <-chan time.Time
	if e.interval > 0 {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-tick:
			e.optimistic.prune(e.now())
			e.reloadInBackground(fullReload)
		case boardID := <-e.trigger:
			e.reloadInBackground(boardID)
		}
	}
}

func (e *Engine) reloadInBackground(boardID string) {
	ctx, cancel := context.WithTimeout(e.ctx, reloadTimeout)
	defer cancel()

	var err error
	if boardID == fullReload {
		err = e.Reload(ctx)
	} else {
		err = e.ReloadBoard(ctx, boardID)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.WithError(err).WithField("board", boardID).Warn("background reload failed")
	}
}

// collapse runs fn unless a call with the same key is in flight, in which
// case it waits for that call and returns its result.
func (e *Engine) collapse(ctx context.Context, key string, fn func() error) error {
	e.reloadMu.Lock()
	if c, ok := e.inflight[key]; ok {
		c.waiters++
		e.reloadMu.Unlock()
		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c := &reloadCall{done: make(chan struct{})}
	e.inflight[key] = c
	if key == fullReload {
		e.status.State = SyncRunning
	}
	e.reloadMu.Unlock()

	c.err = fn()

	e.reloadMu.Lock()
	delete(e.inflight, key)
	if key == fullReload {
		e.status.Error = c.err
		if c.err != nil {
			e.status.State = SyncError
		} else {
			e.status.State = SyncIdle
			e.status.LastReload = e.now()
		}
	}
	e.reloadMu.Unlock()
	close(c.done)
	return c.err
}

// Reload replaces workspaces, the boards of the active workspace and the
// notifications with the remote state. Queued writes are flushed first.
func (e *Engine) Reload(ctx context.Context) error {
	return e.collapse(ctx, fullReload, func() error {
		if err := e.Flush(ctx); err != nil {
			return err
		}

		workspaces, err := e.remote.ListWorkspaces(ctx, e.userID)
		if err != nil {
			return fmt.Errorf("loading workspaces: %w", err)
		}
		e.store.ReplaceWorkspaces(workspaces)

		if wsID := e.ActiveWorkspace(); wsID != "" {
			if _, ok := e.store.Workspace(wsID); ok {
				if err := e.reloadWorkspaceBoards(ctx, wsID); err != nil {
					return err
				}
			} else {
				e.logger.WithField("workspace", wsID).Info("active workspace is gone")
				e.setActive("", "")
			}
		}

		notifications, err := e.remote.ListNotifications(ctx, e.userID)
		if err != nil {
			return fmt.Errorf("loading notifications: %w", err)
		}
		e.store.ReplaceNotifications(notifications)
		return nil
	})
}

func (e *Engine) reloadWorkspaceBoards(ctx context.Context, wsID string) error {
	boards, err := e.remote.ListBoards(ctx, wsID)
	if err != nil {
		return fmt.Errorf("loading boards of workspace %s: %w", wsID, err)
	}
	boards = e.keepLocalBoards(wsID, boards)
	e.store.ReplaceBoards(wsID, boards)
	for _, b := range boards {
		if err := e.loadBoard(ctx, b.ID); err != nil {
			return err
		}
	}
	e.mu.Lock()
	e.loadedWorkspace = wsID
	e.mu.Unlock()
	return nil
}

// ReloadBoard replaces one board and its content with the remote state.
func (e *Engine) ReloadBoard(ctx context.Context, boardID string) error {
	return e.collapse(ctx, "board:"+boardID, func() error {
		if err := e.Flush(ctx); err != nil {
			return err
		}
		return e.loadBoard(ctx, boardID)
	})
}

func (e *Engine) loadBoard(ctx context.Context, boardID string) error {
	b, err := e.remote.GetBoard(ctx, boardID)
	if errors.Is(err, remote.ErrNotFound) {
		if e.optimistic.pending(boardID, e.now()) {
			// Created locally, insert still queued.
			return nil
		}
		if rmErr := e.store.RemoveBoard(boardID); rmErr == nil {
			e.logger.WithField("board", boardID).Info("board removed remotely")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading board %s: %w", boardID, err)
	}
	if _, ok := e.store.Workspace(b.WorkspaceID); !ok {
		e.logger.WithFields(log.Fields{"board": boardID, "workspace": b.WorkspaceID}).Debug("board outside loaded workspaces, skipping")
		return nil
	}

	if err := e.keepOptimistic(b); err != nil {
		return fmt.Errorf("loading board %s: %w", boardID, err)
	}
	e.heal(b)
	b.Loaded = true
	e.store.ReplaceBoard(*b)
	return nil
}

// keepLocalBoards drops listed boards deleted locally and appends boards
// created locally whose insert has not been read back yet.
func (e *Engine) keepLocalBoards(wsID string, list []model.Board) []model.Board {
	arrived := e.now()
	out := make([]model.Board, 0, len(list))
	listed := make(map[string]bool, len(list))
	for _, b := range list {
		listed[b.ID] = true
		if e.optimistic.removedWithin(b.ID, arrived) {
			continue
		}
		out = append(out, b)
	}
	for _, b := range e.store.Boards(wsID) {
		if !listed[b.ID] && e.optimistic.pending(b.ID, arrived) {
			b.Columns, b.Groups, b.Items = nil, nil, nil
			out = append(out, b)
		}
	}
	return out
}

// keepOptimistic carries local writes still inside the grace window into a
// freshly fetched board, so a reload racing a queued write does not revert
// it. Shadowed fields keep their local value, rows deleted locally stay out
// and rows created locally stay in.
func (e *Engine) keepOptimistic(b *model.Board) error {
	local, ok := e.store.Board(b.ID)
	if !ok {
		return nil
	}
	arrived := e.now()

	if shadow := e.shadowedFields(b.ID, b.UpdatedAt, arrived); len(shadow) > 0 {
		columns, groups, items := b.Columns, b.Groups, b.Items
		server := *b
		server.Columns, server.Groups, server.Items = nil, nil, nil
		raw, err := json.Marshal(server)
		if err != nil {
			return err
		}
		own := local
		own.Columns, own.Groups, own.Items = nil, nil, nil
		merged, err := mergeRow(raw, own, shadow)
		if err != nil {
			return err
		}
		*b = merged
		b.Columns, b.Groups, b.Items = columns, groups, items
	}

	var err error
	if b.Columns, err = keepRows(e, b.Columns, local.Columns, arrived,
		func(c model.Column) (string, int64) { return c.ID, c.UpdatedAt }); err != nil {
		return err
	}
	for i := range local.Groups {
		local.Groups[i].Items = nil
	}
	if b.Groups, err = keepRows(e, b.Groups, local.Groups, arrived,
		func(g model.Group) (string, int64) { return g.ID, g.UpdatedAt }); err != nil {
		return err
	}
	if b.Items, err = keepRows(e, b.Items, local.Items, arrived,
		func(it model.Item) (string, int64) { return it.ID, it.UpdatedAt }); err != nil {
		return err
	}
	return nil
}

func keepRows[T any](e *Engine, server, local []T, arrived time.Time, key func(T) (string, int64)) ([]T, error) {
	mine := make(map[string]T, len(local))
	for _, row := range local {
		id, _ := key(row)
		mine[id] = row
	}

	out := make([]T, 0, len(server))
	seen := make(map[string]bool, len(server))
	for _, row := range server {
		id, updatedAt := key(row)
		seen[id] = true
		if e.optimistic.removedWithin(id, arrived) {
			continue
		}
		cur, ok := mine[id]
		if !ok {
			out = append(out, row)
			continue
		}
		shadow := e.shadowedFields(id, updatedAt, arrived)
		if len(shadow) == 0 {
			out = append(out, row)
			continue
		}
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		merged, err := mergeRow(raw, cur, shadow)
		if err != nil {
			return nil, err
		}
		out = append(out, merged)
	}
	for _, row := range local {
		id, _ := key(row)
		if !seen[id] && e.optimistic.pending(id, arrived) {
			out = append(out, row)
		}
	}
	return out, nil
}

// boardModel returns the board or ErrNotFound.
func (e *Engine) boardModel(id string) (model.Board, error) {
	b, ok := e.store.Board(id)
	if !ok {
		return model.Board{}, fmt.Errorf("%w: board %s", ErrNotFound, id)
	}
	return b, nil
}
