package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/permission"
	"github.com/nhle/workera/internal/remote"
)

// BoardAccess resolves the permissions of the engine's user on a loaded
// board. Owners of the board's workspace get every right; everyone else
// gets the role of a board membership, then of a workspace membership.
func (e *Engine) BoardAccess(ctx context.Context, boardID string) (permission.Checker, error) {
	b, err := e.boardModel(boardID)
	if err != nil {
		return permission.Checker{}, err
	}
	if ws, ok := e.store.Workspace(b.WorkspaceID); ok && ws.OwnerID == e.userID {
		return permission.Owner(), nil
	}
	for _, scope := range []struct{ kind, id string }{
		{model.MembershipBoard, b.ID},
		{model.MembershipWorkspace, b.WorkspaceID},
	} {
		m, err := e.remote.FindMembership(ctx, scope.kind, scope.id, e.userID)
		if errors.Is(err, remote.ErrNotFound) {
			continue
		}
		if err != nil {
			return permission.Checker{}, fmt.Errorf("resolving access to board %s: %w", boardID, err)
		}
		return permission.For(m), nil
	}
	return permission.For(nil), nil
}
