package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

// withTx runs fn in a transaction and publishes the events it returns once
// the transaction committed.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) ([]feed.Event, error)) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	events, err := fn(tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	s.publish(ctx, events...)
	return nil
}

// patchRow applies patch to one row of table inside tx.
func (s *SQLStore) patchRow(ctx context.Context, tx *sqlx.Tx, table, id string, patch remote.Patch) error {
	set, args, err := buildUpdate(table, patch, s.nowMillis())
	if err != nil {
		return err
	}
	args = append(args, id)
	result, err := tx.ExecContext(ctx, s.q("UPDATE "+table+" SET "+set+" WHERE id = ?"), args...)
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", table, id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound(table, id)
	}
	return nil
}

func (s *SQLStore) getWorkspace(ctx context.Context, q sqlx.QueryerContext, id string) (model.Workspace, error) {
	var ws model.Workspace
	err := sqlx.GetContext(ctx, q, &ws, s.q("SELECT "+workspaceCols+" FROM workspaces WHERE id = ?"), id)
	if isNoRows(err) {
		return ws, notFound(model.TableWorkspaces, id)
	}
	if err != nil {
		return ws, fmt.Errorf("getting workspace %s: %w", id, err)
	}
	return ws, nil
}

// ListWorkspaces returns the workspaces the user owns or is a member of,
// directly or through a board membership.
func (s *SQLStore) ListWorkspaces(ctx context.Context, userID string) ([]model.Workspace, error) {
	query := s.q(`
		SELECT ` + workspaceCols + ` FROM workspaces
		WHERE owner_id = ?
		   OR id IN (SELECT entity_id FROM memberships WHERE kind = 'workspace' AND user_id = ?)
		   OR id IN (
				SELECT b.workspace_id FROM boards b
				JOIN memberships m ON m.entity_id = b.id
				WHERE m.kind = 'board' AND m.user_id = ?)
		ORDER BY position, id`)
	out := []model.Workspace{}
	if err := s.db.SelectContext(ctx, &out, query, userID, userID, userID); err != nil {
		return nil, fmt.Errorf("listing workspaces of %s: %w", userID, err)
	}
	return out, nil
}

// CreateWorkspace inserts a new workspace.
func (s *SQLStore) CreateWorkspace(ctx context.Context, ws model.Workspace) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		found, err := exists(ctx, tx, "workspaces", ws.ID)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, conflict(model.TableWorkspaces, ws.ID)
		}
		ws.UpdatedAt = s.nowMillis()
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO workspaces (`+workspaceCols+`) VALUES (?, ?, ?, ?, ?)`),
			ws.ID, ws.Title, ws.Position, ws.OwnerID, ws.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("creating workspace: %w", err)
		}
		return s.rowEvent(model.TableWorkspaces, feed.EventInsert, ws, ws.ID, ws.OwnerID), nil
	})
}

// UpdateWorkspace applies a partial update to a workspace.
func (s *SQLStore) UpdateWorkspace(ctx context.Context, id string, patch remote.Patch) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		if err := s.patchRow(ctx, tx, "workspaces", id, patch); err != nil {
			return nil, err
		}
		ws, err := s.getWorkspace(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return s.rowEvent(model.TableWorkspaces, feed.EventUpdate, ws, ws.ID, ws.OwnerID), nil
	})
}

// DeleteWorkspace removes a workspace with its boards and memberships.
func (s *SQLStore) DeleteWorkspace(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		ws, err := s.getWorkspace(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		var boardIDs []string
		if err := tx.SelectContext(ctx, &boardIDs, s.q("SELECT id FROM boards WHERE workspace_id = ?"), id); err != nil {
			return nil, fmt.Errorf("listing boards of workspace %s: %w", id, err)
		}

		var events []feed.Event
		for _, boardID := range boardIDs {
			if err := s.deleteBoardContent(ctx, tx, boardID); err != nil {
				return nil, err
			}
			events = append(events, s.rowEvent(model.TableBoards, feed.EventDelete,
				map[string]string{"id": boardID, "workspace_id": id}, id, "")...)
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM boards WHERE workspace_id = ?"), id); err != nil {
			return nil, fmt.Errorf("deleting boards of workspace %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM memberships WHERE kind = ? AND entity_id = ?"), model.MembershipWorkspace, id); err != nil {
			return nil, fmt.Errorf("deleting memberships of workspace %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM workspaces WHERE id = ?"), id); err != nil {
			return nil, fmt.Errorf("deleting workspace %s: %w", id, err)
		}
		events = append(events, s.rowEvent(model.TableWorkspaces, feed.EventDelete,
			map[string]string{"id": id}, id, ws.OwnerID)...)
		return events, nil
	})
}
