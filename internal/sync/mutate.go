package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
	"github.com/nhle/workera/internal/value"
)

// Entity types recorded in the audit log.
const (
	activityBoard  = "board"
	activityGroup  = "group"
	activityColumn = "column"
	activityItem   = "item"
)

// Default board template content.
const (
	DefaultGroupTitle = "New group"
	DefaultBoardTitle = "New board"
)

// groupPalette is cycled through for new groups.
var groupPalette = []string{"#579bfc", "#a25ddc", "#00c875", "#fdab3d", "#e2445c", "#ff642e"}

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: empty title", ErrInvalidInput)
	}
	return title, nil
}

func nextPosition(positions []int) int {
	next := 0
	for _, p := range positions {
		if p >= next {
			next = p + 1
		}
	}
	return next
}

func (e *Engine) remoteBoardPatch(op, id string, patch remote.Patch) {
	e.enqueue(write{op: op, boardID: id, run: func(ctx context.Context, r remote.Remote) error {
		return r.UpdateBoard(ctx, id, patch)
	}})
}

func (e *Engine) remoteGroupPatch(op, boardID, id string, patch remote.Patch) {
	e.enqueue(write{op: op, boardID: boardID, run: func(ctx context.Context, r remote.Remote) error {
		return r.UpdateGroup(ctx, id, patch)
	}})
}

func (e *Engine) remoteColumnPatch(op, boardID, id string, patch remote.Patch) {
	e.enqueue(write{op: op, boardID: boardID, run: func(ctx context.Context, r remote.Remote) error {
		return r.UpdateColumn(ctx, id, patch)
	}})
}

func (e *Engine) remoteItemPatch(op, boardID, id string, patch remote.Patch) {
	e.enqueue(write{op: op, boardID: boardID, run: func(ctx context.Context, r remote.Remote) error {
		return r.UpdateItem(ctx, id, patch)
	}})
}

// newBoard builds a board seeded with one group and the default status,
// date and people columns.
func newBoard(workspaceID, title string, position int) model.Board {
	id := model.NewID()
	return model.Board{
		ID:              id,
		WorkspaceID:     workspaceID,
		Title:           title,
		Position:        position,
		ItemColumnTitle: model.DefaultItemColumnTitle,
		ItemColumnWidth: model.DefaultItemColumnWidth,
		Groups: []model.Group{
			{ID: model.NewID(), BoardID: id, Title: DefaultGroupTitle, Color: groupPalette[0], Position: 0},
		},
		Columns: []model.Column{
			{ID: model.NewID(), BoardID: id, Title: "Status", Type: model.ColumnStatus, Options: value.DefaultStatusOptions(), Width: model.DefaultColumnWidth, Position: 0},
			{ID: model.NewID(), BoardID: id, Title: "Date", Type: model.ColumnDate, Width: model.DefaultColumnWidth, Position: 1},
			{ID: model.NewID(), BoardID: id, Title: "Owner", Type: model.ColumnPeople, Width: model.DefaultColumnWidth, Position: 2},
		},
	}
}

// persistBoard writes a board and its content in dependency order.
func persistBoard(ctx context.Context, r remote.Remote, b model.Board) error {
	head := b
	head.Columns, head.Groups, head.Items = nil, nil, nil
	if err := r.CreateBoard(ctx, head); err != nil {
		return fmt.Errorf("creating board: %w", err)
	}
	for _, g := range b.Groups {
		g.Items = nil
		if err := r.CreateGroup(ctx, g); err != nil {
			return fmt.Errorf("creating group %s: %w", g.ID, err)
		}
	}
	for _, col := range b.Columns {
		if err := r.CreateColumn(ctx, col); err != nil {
			return fmt.Errorf("creating column %s: %w", col.ID, err)
		}
	}
	for _, it := range b.Items {
		if err := r.CreateItem(ctx, it); err != nil {
			return fmt.Errorf("creating item %s: %w", it.ID, err)
		}
	}
	return nil
}
