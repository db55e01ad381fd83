package sync

import (
	"context"
	"fmt"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

func (e *Engine) groupModel(id string) (model.Group, error) {
	if err := model.ValidateID(id); err != nil {
		return model.Group{}, err
	}
	g, ok := e.store.Group(id)
	if !ok {
		return model.Group{}, fmt.Errorf("%w: group %s", ErrNotFound, id)
	}
	return g, nil
}

// CreateGroup appends a group to a board.
func (e *Engine) CreateGroup(boardID, title string) (model.Group, error) {
	b, err := e.loadedBoard(boardID)
	if err != nil {
		return model.Group{}, err
	}
	title, err = cleanTitle(title)
	if err != nil {
		return model.Group{}, err
	}
	positions := make([]int, 0, len(b.Groups))
	for _, g := range b.Groups {
		positions = append(positions, g.Position)
	}
	g := model.Group{
		ID:       model.NewID(),
		BoardID:  boardID,
		Title:    title,
		Color:    groupPalette[len(b.Groups)%len(groupPalette)],
		Position: nextPosition(positions),
	}
	if err := e.store.UpsertGroup(g); err != nil {
		return model.Group{}, fmt.Errorf("%w: board %s", ErrNotFound, boardID)
	}
	e.touch(g.ID, model.FieldTitle, model.FieldColor, model.FieldPosition)
	e.enqueue(write{
		op:      "create_group",
		boardID: boardID,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.CreateGroup(ctx, g)
		},
	})
	e.recordActivity(model.Activity{BoardID: boardID, EntityType: activityGroup, Action: model.ActivityCreate, After: jsonOf(title)})
	return g, nil
}

// RenameGroup changes a group title.
func (e *Engine) RenameGroup(id, title string) error {
	g, err := e.groupModel(id)
	if err != nil {
		return err
	}
	title, err = cleanTitle(title)
	if err != nil {
		return err
	}
	_ = e.store.PatchGroup(id, func(g *model.Group) { g.Title = title })
	e.touch(id, model.FieldTitle)
	e.remoteGroupPatch("rename_group", g.BoardID, id, remote.Patch{model.FieldTitle: title})
	e.recordActivity(model.Activity{
		BoardID: g.BoardID, EntityType: activityGroup, Action: model.ActivityRename, Field: model.FieldTitle,
		Before: jsonOf(g.Title), After: jsonOf(title),
	})
	return nil
}

// SetGroupColor changes a group color.
func (e *Engine) SetGroupColor(id, color string) error {
	g, err := e.groupModel(id)
	if err != nil {
		return err
	}
	if color == "" {
		return fmt.Errorf("%w: empty color", ErrInvalidInput)
	}
	_ = e.store.PatchGroup(id, func(g *model.Group) { g.Color = color })
	e.touch(id, model.FieldColor)
	e.remoteGroupPatch("set_group_color", g.BoardID, id, remote.Patch{model.FieldColor: color})
	return nil
}

// SetGroupCollapsed folds or unfolds a group.
func (e *Engine) SetGroupCollapsed(id string, collapsed bool) error {
	g, err := e.groupModel(id)
	if err != nil {
		return err
	}
	_ = e.store.PatchGroup(id, func(g *model.Group) { g.Collapsed = collapsed })
	e.touch(id, model.FieldCollapsed)
	e.remoteGroupPatch("set_group_collapsed", g.BoardID, id, remote.Patch{model.FieldCollapsed: collapsed})
	return nil
}

// DeleteGroup removes a group and every item in it.
func (e *Engine) DeleteGroup(id string) error {
	g, err := e.groupModel(id)
	if err != nil {
		return err
	}
	if err := e.store.RemoveGroup(id); err != nil {
		return fmt.Errorf("%w: group %s", ErrNotFound, id)
	}
	e.optimistic.drop(id, e.now())
	e.enqueue(write{
		op:      "delete_group",
		boardID: g.BoardID,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.DeleteGroup(ctx, id)
		},
	})
	e.recordActivity(model.Activity{BoardID: g.BoardID, EntityType: activityGroup, Action: model.ActivityDelete, Before: jsonOf(g.Title)})
	return nil
}
