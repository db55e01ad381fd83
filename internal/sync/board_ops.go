package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

func jsonOf(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func (e *Engine) loadedBoard(id string) (model.Board, error) {
	if err := model.ValidateID(id); err != nil {
		return model.Board{}, err
	}
	return e.boardModel(id)
}

// CreateBoard adds a board seeded with one group and the status, date and
// people columns. The board is marked loaded once every insert persisted.
func (e *Engine) CreateBoard(workspaceID, title string) (model.Board, error) {
	if _, err := e.workspaceModel(workspaceID); err != nil {
		return model.Board{}, err
	}
	title, err := cleanTitle(title)
	if err != nil {
		return model.Board{}, err
	}
	var positions []int
	for _, b := range e.store.Boards(workspaceID) {
		positions = append(positions, b.Position)
	}
	b := newBoard(workspaceID, title, nextPosition(positions))
	b.Loaded = false
	e.store.ReplaceBoard(b)
	e.touch(b.ID, model.FieldTitle, model.FieldPosition)

	id := b.ID
	e.enqueue(write{
		op:      "create_board",
		boardID: id,
		run: func(ctx context.Context, r remote.Remote) error {
			return persistBoard(ctx, r, b)
		},
		onSuccess: func() {
			if err := e.store.MarkBoardLoaded(id); err != nil {
				e.logger.WithField("board", id).Debug("created board vanished before it loaded")
			}
		},
	})
	e.recordActivity(model.Activity{BoardID: id, EntityType: activityBoard, Action: model.ActivityCreate, After: jsonOf(title)})

	created, _ := e.store.Board(id)
	return created, nil
}

// RenameBoard changes a board title.
func (e *Engine) RenameBoard(id, title string) error {
	b, err := e.loadedBoard(id)
	if err != nil {
		return err
	}
	title, err = cleanTitle(title)
	if err != nil {
		return err
	}
	if err := e.store.PatchBoard(id, func(b *model.Board) { b.Title = title }); err != nil {
		return fmt.Errorf("%w: board %s", ErrNotFound, id)
	}
	e.touch(id, model.FieldTitle)
	e.remoteBoardPatch("rename_board", id, remote.Patch{model.FieldTitle: title})
	e.recordActivity(model.Activity{
		BoardID: id, EntityType: activityBoard, Action: model.ActivityRename, Field: model.FieldTitle,
		Before: jsonOf(b.Title), After: jsonOf(title),
	})
	return nil
}

// DeleteBoard removes a board with all of its content.
func (e *Engine) DeleteBoard(id string) error {
	b, err := e.loadedBoard(id)
	if err != nil {
		return err
	}
	if err := e.store.RemoveBoard(id); err != nil {
		return fmt.Errorf("%w: board %s", ErrNotFound, id)
	}
	if e.ActiveBoard() == id {
		e.setActive(e.ActiveWorkspace(), "")
	}
	e.optimistic.drop(id, e.now())
	e.enqueue(write{
		op:      "delete_board",
		boardID: id,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.DeleteBoard(ctx, id)
		},
	})
	// Appended after the delete, which clears the board's earlier entries.
	e.recordActivity(model.Activity{BoardID: id, EntityType: activityBoard, Action: model.ActivityDelete, Before: jsonOf(b.Title)})
	e.logger.WithField("board", id).WithField("title", b.Title).Debug("board deleted")
	return nil
}

// MoveBoardToWorkspace reassigns a board to another workspace, appending it
// to the destination.
func (e *Engine) MoveBoardToWorkspace(id, workspaceID string) error {
	b, err := e.loadedBoard(id)
	if err != nil {
		return err
	}
	if _, err := e.workspaceModel(workspaceID); err != nil {
		return err
	}
	if b.WorkspaceID == workspaceID {
		return nil
	}
	if err := e.store.PatchBoard(id, func(b *model.Board) { b.WorkspaceID = workspaceID }); err != nil {
		return fmt.Errorf("%w: board %s", ErrNotFound, id)
	}
	moved, _ := e.store.Board(id)
	e.touch(id, model.FieldWorkspaceID, model.FieldPosition)
	e.remoteBoardPatch("move_board", id, remote.Patch{
		model.FieldWorkspaceID: workspaceID,
		model.FieldPosition:    moved.Position,
	})
	e.recordActivity(model.Activity{
		BoardID: id, EntityType: activityBoard, Action: model.ActivityMove, Field: model.FieldWorkspaceID,
		Before: jsonOf(b.WorkspaceID), After: jsonOf(workspaceID),
	})
	return nil
}

// SetItemColumnTitle renames the fixed item column of a board.
func (e *Engine) SetItemColumnTitle(id, title string) error {
	if _, err := e.loadedBoard(id); err != nil {
		return err
	}
	title, err := cleanTitle(title)
	if err != nil {
		return err
	}
	_ = e.store.PatchBoard(id, func(b *model.Board) { b.ItemColumnTitle = title })
	e.touch(id, "item_column_title")
	e.remoteBoardPatch("set_item_column_title", id, remote.Patch{"item_column_title": title})
	return nil
}

// SetItemColumnWidth resizes the fixed item column of a board.
func (e *Engine) SetItemColumnWidth(id string, width int) error {
	if _, err := e.loadedBoard(id); err != nil {
		return err
	}
	width, err := checkWidth(width)
	if err != nil {
		return err
	}
	_ = e.store.PatchBoard(id, func(b *model.Board) { b.ItemColumnWidth = width })
	e.touch(id, "item_column_width")
	e.remoteBoardPatch("set_item_column_width", id, remote.Patch{"item_column_width": width})
	return nil
}

// SetBoardSort sets or, with nil, clears the sort of a board view.
func (e *Engine) SetBoardSort(id string, sort *model.BoardSort) error {
	b, err := e.loadedBoard(id)
	if err != nil {
		return err
	}
	if sort != nil {
		if _, ok := b.Column(sort.ColumnID); !ok {
			return fmt.Errorf("%w: column %s", ErrNotFound, sort.ColumnID)
		}
		if sort.Direction != model.SortAsc && sort.Direction != model.SortDesc {
			return fmt.Errorf("%w: sort direction %q", ErrInvalidInput, sort.Direction)
		}
		s := *sort
		sort = &s
	}
	_ = e.store.PatchBoard(id, func(b *model.Board) { b.Sort = sort })
	e.touch(id, "sort")
	var patched any
	if sort != nil {
		patched = sort
	}
	e.remoteBoardPatch("set_board_sort", id, remote.Patch{"sort": patched})
	return nil
}

// SetBoardFilters replaces the filters of a board view.
func (e *Engine) SetBoardFilters(id string, filters []model.BoardFilter) error {
	b, err := e.loadedBoard(id)
	if err != nil {
		return err
	}
	for _, f := range filters {
		if _, ok := b.Column(f.ColumnID); !ok {
			return fmt.Errorf("%w: column %s", ErrNotFound, f.ColumnID)
		}
	}
	filters = append([]model.BoardFilter{}, filters...)
	_ = e.store.PatchBoard(id, func(b *model.Board) { b.Filters = filters })
	e.touch(id, "filters")
	e.remoteBoardPatch("set_board_filters", id, remote.Patch{"filters": filters})
	return nil
}
