package sync

import (
	"context"
	"fmt"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/ordering"
	"github.com/nhle/workera/internal/remote"
)

// moveIDs moves activeID onto the index of overID. ok is false when either
// id is not in ids.
func moveIDs(ids []string, activeID, overID string) (next []string, ok bool) {
	from := ordering.IndexOf(ids, activeID)
	to := ordering.IndexOf(ids, overID)
	if from < 0 || to < 0 {
		return nil, false
	}
	return ordering.Move(ids, from, to), true
}

// reorder records the new positions of ids and persists the full sequence
// in one call.
func (e *Engine) reorder(coll remote.Collection, parentID, boardID string, ids []string) {
	for _, id := range ids {
		e.touch(id, model.FieldPosition)
	}
	seq := append([]string(nil), ids...)
	e.enqueue(write{
		op:      "reorder_" + string(coll),
		boardID: boardID,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.Reorder(ctx, coll, parentID, seq)
		},
	})
}

// MoveWorkspace moves a workspace onto the position of another. Only the
// workspaces the user owns are ordered; shared workspaces follow their
// owner's order.
func (e *Engine) MoveWorkspace(activeID, overID string) error {
	if activeID == overID {
		return nil
	}
	if err := model.ValidateIDs(activeID, overID); err != nil {
		return err
	}
	var ids []string
	for _, ws := range e.store.Workspaces() {
		if ws.OwnerID == e.userID {
			ids = append(ids, ws.ID)
		}
	}
	next, ok := moveIDs(ids, activeID, overID)
	if !ok {
		return fmt.Errorf("%w: workspace %s or %s among owned workspaces", ErrNotFound, activeID, overID)
	}
	if err := e.store.SetWorkspaceOrder(next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	e.reorder(remote.CollectionWorkspaces, e.userID, "", next)
	return nil
}

// MoveBoard moves a board onto the position of another board of the same
// workspace.
func (e *Engine) MoveBoard(activeID, overID string) error {
	if activeID == overID {
		return nil
	}
	active, err := e.loadedBoard(activeID)
	if err != nil {
		return err
	}
	var ids []string
	for _, b := range e.store.Boards(active.WorkspaceID) {
		ids = append(ids, b.ID)
	}
	next, ok := moveIDs(ids, activeID, overID)
	if !ok {
		return fmt.Errorf("%w: board %s in workspace %s", ErrNotFound, overID, active.WorkspaceID)
	}
	if err := e.store.SetBoardOrder(active.WorkspaceID, next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	e.reorder(remote.CollectionBoards, active.WorkspaceID, "", next)
	return nil
}

// MoveGroup moves a group onto the position of another group.
func (e *Engine) MoveGroup(activeID, overID string) error {
	if activeID == overID {
		return nil
	}
	g, err := e.groupModel(activeID)
	if err != nil {
		return err
	}
	b, err := e.boardModel(g.BoardID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(b.Groups))
	for _, g := range b.Groups {
		ids = append(ids, g.ID)
	}
	next, ok := moveIDs(ids, activeID, overID)
	if !ok {
		return fmt.Errorf("%w: group %s on board %s", ErrNotFound, overID, b.ID)
	}
	if err := e.store.SetGroupOrder(b.ID, next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	e.reorder(remote.CollectionGroups, b.ID, b.ID, next)
	return nil
}

// MoveColumn moves a column onto the position of another column.
func (e *Engine) MoveColumn(activeID, overID string) error {
	if activeID == overID {
		return nil
	}
	col, err := e.columnModel(activeID)
	if err != nil {
		return err
	}
	b, err := e.boardModel(col.BoardID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(b.Columns))
	for _, c := range b.Columns {
		ids = append(ids, c.ID)
	}
	next, ok := moveIDs(ids, activeID, overID)
	if !ok {
		return fmt.Errorf("%w: column %s on board %s", ErrNotFound, overID, b.ID)
	}
	if err := e.store.SetColumnOrder(b.ID, next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	e.reorder(remote.CollectionColumns, b.ID, b.ID, next)
	return nil
}

// MoveItem moves an item onto the flat position of overID. When destGroupID
// is empty the item joins overID's group. An empty overID drops the item
// on the empty body of destGroupID, making it the first item of the board.
// A group change is persisted before the sequence rewrite.
func (e *Engine) MoveItem(boardID, activeID, overID, destGroupID string) error {
	if activeID == overID {
		return nil
	}
	b, err := e.loadedBoard(boardID)
	if err != nil {
		return err
	}
	it, err := e.itemModel(activeID)
	if err != nil {
		return err
	}
	if it.BoardID != boardID {
		return fmt.Errorf("%w: item %s is not on board %s", ErrInvalidInput, activeID, boardID)
	}

	ids := make([]string, 0, len(b.Items))
	for _, x := range b.Items {
		ids = append(ids, x.ID)
	}

	var next []string
	switch {
	case overID == "":
		if destGroupID == "" {
			return fmt.Errorf("%w: drop target needs an item or a group", ErrInvalidInput)
		}
		next = ordering.Insert(ordering.Remove(ids, activeID), 0, activeID)
	default:
		over, ok := b.Item(overID)
		if !ok {
			return fmt.Errorf("%w: item %s on board %s", ErrNotFound, overID, boardID)
		}
		if destGroupID == "" {
			destGroupID = over.GroupID
		}
		next, _ = moveIDs(ids, activeID, overID)
	}
	if destGroupID == "" {
		destGroupID = it.GroupID
	}
	if _, ok := b.Group(destGroupID); !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, destGroupID)
	}

	crossGroup := destGroupID != it.GroupID
	if crossGroup {
		if err := e.store.MoveItemToGroup(activeID, destGroupID, ordering.IndexOf(next, activeID)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		e.touch(activeID, model.FieldGroupID)
		e.remoteItemPatch("move_item_group", boardID, activeID, remote.Patch{model.FieldGroupID: destGroupID})
		e.recordActivity(model.Activity{
			BoardID: boardID, ItemID: activeID, EntityType: activityItem, Action: model.ActivityMove,
			Field: model.FieldGroupID, Before: jsonOf(it.GroupID), After: jsonOf(destGroupID),
		})
	} else if err := e.store.SetItemOrder(boardID, next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	e.reorder(remote.CollectionItems, boardID, boardID, next)
	return nil
}
