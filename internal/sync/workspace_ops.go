package sync

import (
	"context"
	"fmt"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

func (e *Engine) workspaceModel(id string) (model.Workspace, error) {
	if err := model.ValidateID(id); err != nil {
		return model.Workspace{}, err
	}
	ws, ok := e.store.Workspace(id)
	if !ok {
		return model.Workspace{}, fmt.Errorf("%w: workspace %s", ErrNotFound, id)
	}
	return ws, nil
}

// CreateWorkspace adds a workspace owned by the user at the end of the
// list.
func (e *Engine) CreateWorkspace(title string) (model.Workspace, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return model.Workspace{}, err
	}
	var positions []int
	for _, ws := range e.store.Workspaces() {
		positions = append(positions, ws.Position)
	}
	ws := model.Workspace{
		ID:       model.NewID(),
		Title:    title,
		Position: nextPosition(positions),
		OwnerID:  e.userID,
	}
	e.store.UpsertWorkspace(ws)
	e.touch(ws.ID, model.FieldTitle, model.FieldPosition)
	e.enqueue(write{
		op: "create_workspace",
		run: func(ctx context.Context, r remote.Remote) error {
			return r.CreateWorkspace(ctx, ws)
		},
	})
	return ws, nil
}

// RenameWorkspace changes a workspace title.
func (e *Engine) RenameWorkspace(id, title string) error {
	if _, err := e.workspaceModel(id); err != nil {
		return err
	}
	title, err := cleanTitle(title)
	if err != nil {
		return err
	}
	if err := e.store.PatchWorkspace(id, func(ws *model.Workspace) { ws.Title = title }); err != nil {
		return fmt.Errorf("%w: workspace %s", ErrNotFound, id)
	}
	e.touch(id, model.FieldTitle)
	e.enqueue(write{
		op: "rename_workspace",
		run: func(ctx context.Context, r remote.Remote) error {
			return r.UpdateWorkspace(ctx, id, remote.Patch{model.FieldTitle: title})
		},
	})
	return nil
}

// DeleteWorkspace removes a workspace and its boards. Deleting the active
// workspace ends the session's feed subscription.
func (e *Engine) DeleteWorkspace(id string) error {
	if _, err := e.workspaceModel(id); err != nil {
		return err
	}
	if e.ActiveWorkspace() == id {
		e.detach()
		e.setActive("", "")
	}
	if err := e.store.RemoveWorkspace(id); err != nil {
		return fmt.Errorf("%w: workspace %s", ErrNotFound, id)
	}
	e.optimistic.forget(id)
	e.enqueue(write{
		op: "delete_workspace",
		run: func(ctx context.Context, r remote.Remote) error {
			return r.DeleteWorkspace(ctx, id)
		},
	})
	return nil
}
