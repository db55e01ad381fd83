package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

// --- reads ---

func (s *SQLStore) getBoardRow(ctx context.Context, q sqlx.QueryerContext, id string) (model.Board, error) {
	var row boardRow
	err := sqlx.GetContext(ctx, q, &row, s.q("SELECT "+boardCols+" FROM boards WHERE id = ?"), id)
	if isNoRows(err) {
		return model.Board{}, notFound(model.TableBoards, id)
	}
	if err != nil {
		return model.Board{}, fmt.Errorf("getting board %s: %w", id, err)
	}
	return row.toModel()
}

func (s *SQLStore) getGroup(ctx context.Context, q sqlx.QueryerContext, id string) (model.Group, error) {
	var row groupRow
	err := sqlx.GetContext(ctx, q, &row, s.q("SELECT "+groupCols+" FROM "+sqlGroups+" WHERE id = ?"), id)
	if isNoRows(err) {
		return model.Group{}, notFound(model.TableGroups, id)
	}
	if err != nil {
		return model.Group{}, fmt.Errorf("getting group %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) getColumn(ctx context.Context, q sqlx.QueryerContext, id string) (model.Column, error) {
	var row columnRow
	err := sqlx.GetContext(ctx, q, &row, s.q("SELECT "+columnCols+" FROM "+sqlColumns+" WHERE id = ?"), id)
	if isNoRows(err) {
		return model.Column{}, notFound(model.TableColumns, id)
	}
	if err != nil {
		return model.Column{}, fmt.Errorf("getting column %s: %w", id, err)
	}
	return row.toModel()
}

func (s *SQLStore) getItem(ctx context.Context, q sqlx.QueryerContext, id string) (model.Item, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, q, &row, s.q("SELECT "+itemCols+" FROM items WHERE id = ?"), id)
	if isNoRows(err) {
		return model.Item{}, notFound(model.TableItems, id)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("getting item %s: %w", id, err)
	}
	return row.toModel()
}

// boardWorkspace returns the workspace id of a board, or "" if the board is
// unknown.
func (s *SQLStore) boardWorkspace(ctx context.Context, q sqlx.QueryerContext, boardID string) (string, error) {
	var ws string
	err := sqlx.GetContext(ctx, q, &ws, s.q("SELECT workspace_id FROM boards WHERE id = ?"), boardID)
	if isNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolving workspace of board %s: %w", boardID, err)
	}
	return ws, nil
}

// ListBoards returns the boards of a workspace without their content.
func (s *SQLStore) ListBoards(ctx context.Context, workspaceID string) ([]model.Board, error) {
	var rows []boardRow
	err := s.db.SelectContext(ctx, &rows,
		s.q("SELECT "+boardCols+" FROM boards WHERE workspace_id = ? ORDER BY position, id"), workspaceID)
	if err != nil {
		return nil, fmt.Errorf("listing boards of workspace %s: %w", workspaceID, err)
	}
	out := make([]model.Board, 0, len(rows))
	for _, r := range rows {
		b, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// GetBoard returns a board with its columns, groups and items ordered by
// position.
func (s *SQLStore) GetBoard(ctx context.Context, id string) (*model.Board, error) {
	b, err := s.getBoardRow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	var cols []columnRow
	if err := s.db.SelectContext(ctx, &cols,
		s.q("SELECT "+columnCols+" FROM "+sqlColumns+" WHERE board_id = ? ORDER BY position, id"), id); err != nil {
		return nil, fmt.Errorf("loading columns of board %s: %w", id, err)
	}
	for _, r := range cols {
		col, err := r.toModel()
		if err != nil {
			return nil, err
		}
		b.Columns = append(b.Columns, col)
	}

	var groups []groupRow
	if err := s.db.SelectContext(ctx, &groups,
		s.q("SELECT "+groupCols+" FROM "+sqlGroups+" WHERE board_id = ? ORDER BY position, id"), id); err != nil {
		return nil, fmt.Errorf("loading groups of board %s: %w", id, err)
	}
	for _, r := range groups {
		b.Groups = append(b.Groups, r.toModel())
	}

	var items []itemRow
	if err := s.db.SelectContext(ctx, &items,
		s.q("SELECT "+itemCols+" FROM items WHERE board_id = ? ORDER BY position, id"), id); err != nil {
		return nil, fmt.Errorf("loading items of board %s: %w", id, err)
	}
	for _, r := range items {
		it, err := r.toModel()
		if err != nil {
			return nil, err
		}
		b.Items = append(b.Items, it)
	}
	b.Loaded = true
	return &b, nil
}

// --- boards ---

// CreateBoard inserts the board row. Columns, groups and items are created
// with their own calls.
func (s *SQLStore) CreateBoard(ctx context.Context, b model.Board) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		found, err := exists(ctx, tx, "boards", b.ID)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, conflict(model.TableBoards, b.ID)
		}
		b.UpdatedAt = s.nowMillis()
		b.Columns, b.Groups, b.Items = nil, nil, nil
		args, err := boardArgs(b)
		if err != nil {
			return nil, fmt.Errorf("encoding board %s: %w", b.ID, err)
		}
		_, err = tx.ExecContext(ctx, s.q("INSERT INTO boards ("+boardCols+") VALUES ("+placeholders(len(args))+")"), args...)
		if err != nil {
			return nil, fmt.Errorf("creating board: %w", err)
		}
		return s.rowEvent(model.TableBoards, feed.EventInsert, b, b.WorkspaceID, ""), nil
	})
}

// UpdateBoard applies a partial update to a board. Changing workspace_id
// moves the board; subscribers of both workspaces are notified.
func (s *SQLStore) UpdateBoard(ctx context.Context, id string, patch remote.Patch) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		before, err := s.getBoardRow(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := s.patchRow(ctx, tx, "boards", id, patch); err != nil {
			return nil, err
		}
		b, err := s.getBoardRow(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		events := s.rowEvent(model.TableBoards, feed.EventUpdate, b, b.WorkspaceID, "")
		if before.WorkspaceID != b.WorkspaceID {
			events = append(events, s.rowEvent(model.TableBoards, feed.EventDelete,
				map[string]string{"id": id, "workspace_id": before.WorkspaceID}, before.WorkspaceID, "")...)
		}
		return events, nil
	})
}

// DeleteBoard removes a board with its columns, groups, items, memberships
// and activity.
func (s *SQLStore) DeleteBoard(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		b, err := s.getBoardRow(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := s.deleteBoardContent(ctx, tx, id); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM boards WHERE id = ?"), id); err != nil {
			return nil, fmt.Errorf("deleting board %s: %w", id, err)
		}
		return s.rowEvent(model.TableBoards, feed.EventDelete,
			map[string]string{"id": id, "workspace_id": b.WorkspaceID}, b.WorkspaceID, ""), nil
	})
}

func (s *SQLStore) deleteBoardContent(ctx context.Context, tx *sqlx.Tx, boardID string) error {
	stmts := []struct {
		query string
		args  []any
	}{
		{"DELETE FROM items WHERE board_id = ?", []any{boardID}},
		{"DELETE FROM " + sqlGroups + " WHERE board_id = ?", []any{boardID}},
		{"DELETE FROM " + sqlColumns + " WHERE board_id = ?", []any{boardID}},
		{"DELETE FROM activity_log WHERE board_id = ?", []any{boardID}},
		{"DELETE FROM memberships WHERE kind = ? AND entity_id = ?", []any{model.MembershipBoard, boardID}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, s.q(st.query), st.args...); err != nil {
			return fmt.Errorf("deleting content of board %s: %w", boardID, err)
		}
	}
	return nil
}

// --- groups ---

// CreateGroup inserts a group.
func (s *SQLStore) CreateGroup(ctx context.Context, g model.Group) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		found, err := exists(ctx, tx, sqlGroups, g.ID)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, conflict(model.TableGroups, g.ID)
		}
		ws, err := s.boardWorkspace(ctx, tx, g.BoardID)
		if err != nil {
			return nil, err
		}
		g.UpdatedAt = s.nowMillis()
		g.Items = nil
		_, err = tx.ExecContext(ctx, s.q("INSERT INTO "+sqlGroups+" ("+groupCols+") VALUES (?, ?, ?, ?, ?, ?, ?)"), groupArgs(g)...)
		if err != nil {
			return nil, fmt.Errorf("creating group: %w", err)
		}
		return s.rowEvent(model.TableGroups, feed.EventInsert, g, ws, ""), nil
	})
}

// UpdateGroup applies a partial update to a group.
func (s *SQLStore) UpdateGroup(ctx context.Context, id string, patch remote.Patch) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		if err := s.patchRow(ctx, tx, sqlGroups, id, patch); err != nil {
			return nil, err
		}
		g, err := s.getGroup(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		ws, err := s.boardWorkspace(ctx, tx, g.BoardID)
		if err != nil {
			return nil, err
		}
		return s.rowEvent(model.TableGroups, feed.EventUpdate, g, ws, ""), nil
	})
}

// DeleteGroup removes a group and every item in it.
func (s *SQLStore) DeleteGroup(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		g, err := s.getGroup(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		ws, err := s.boardWorkspace(ctx, tx, g.BoardID)
		if err != nil {
			return nil, err
		}
		var itemIDs []string
		if err := tx.SelectContext(ctx, &itemIDs, s.q("SELECT id FROM items WHERE group_id = ?"), id); err != nil {
			return nil, fmt.Errorf("listing items of group %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM items WHERE group_id = ?"), id); err != nil {
			return nil, fmt.Errorf("deleting items of group %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM "+sqlGroups+" WHERE id = ?"), id); err != nil {
			return nil, fmt.Errorf("deleting group %s: %w", id, err)
		}

		var events []feed.Event
		for _, itemID := range itemIDs {
			events = append(events, s.rowEvent(model.TableItems, feed.EventDelete,
				map[string]string{"id": itemID, "board_id": g.BoardID}, ws, "")...)
		}
		events = append(events, s.rowEvent(model.TableGroups, feed.EventDelete,
			map[string]string{"id": id, "board_id": g.BoardID}, ws, "")...)
		return events, nil
	})
}

// --- columns ---

// CreateColumn inserts a column.
func (s *SQLStore) CreateColumn(ctx context.Context, col model.Column) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		found, err := exists(ctx, tx, sqlColumns, col.ID)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, conflict(model.TableColumns, col.ID)
		}
		ws, err := s.boardWorkspace(ctx, tx, col.BoardID)
		if err != nil {
			return nil, err
		}
		col.UpdatedAt = s.nowMillis()
		args, err := columnArgs(col)
		if err != nil {
			return nil, fmt.Errorf("encoding column %s: %w", col.ID, err)
		}
		_, err = tx.ExecContext(ctx, s.q("INSERT INTO "+sqlColumns+" ("+columnCols+") VALUES ("+placeholders(len(args))+")"), args...)
		if err != nil {
			return nil, fmt.Errorf("creating column: %w", err)
		}
		return s.rowEvent(model.TableColumns, feed.EventInsert, col, ws, ""), nil
	})
}

// UpdateColumn applies a partial update to a column.
func (s *SQLStore) UpdateColumn(ctx context.Context, id string, patch remote.Patch) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		if err := s.patchRow(ctx, tx, sqlColumns, id, patch); err != nil {
			return nil, err
		}
		col, err := s.getColumn(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		ws, err := s.boardWorkspace(ctx, tx, col.BoardID)
		if err != nil {
			return nil, err
		}
		return s.rowEvent(model.TableColumns, feed.EventUpdate, col, ws, ""), nil
	})
}

// DeleteColumn removes a column and drops its value from every item of the
// board.
func (s *SQLStore) DeleteColumn(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		col, err := s.getColumn(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		ws, err := s.boardWorkspace(ctx, tx, col.BoardID)
		if err != nil {
			return nil, err
		}

		var rows []itemRow
		if err := tx.SelectContext(ctx, &rows, s.q("SELECT "+itemCols+" FROM items WHERE board_id = ?"), col.BoardID); err != nil {
			return nil, fmt.Errorf("loading items of board %s: %w", col.BoardID, err)
		}
		var events []feed.Event
		now := s.nowMillis()
		for _, r := range rows {
			it, err := r.toModel()
			if err != nil {
				return nil, err
			}
			if _, ok := it.Values[id]; !ok {
				continue
			}
			delete(it.Values, id)
			it.UpdatedAt = now
			encoded, err := encodeJSON(it.Values)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, s.q("UPDATE items SET cell_values = ?, updated_at = ? WHERE id = ?"), encoded, now, it.ID); err != nil {
				return nil, fmt.Errorf("dropping column %s from item %s: %w", id, it.ID, err)
			}
			events = append(events, s.rowEvent(model.TableItems, feed.EventUpdate, it, ws, "")...)
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM "+sqlColumns+" WHERE id = ?"), id); err != nil {
			return nil, fmt.Errorf("deleting column %s: %w", id, err)
		}
		events = append(events, s.rowEvent(model.TableColumns, feed.EventDelete,
			map[string]string{"id": id, "board_id": col.BoardID}, ws, "")...)
		return events, nil
	})
}

// --- items ---

// CreateItem inserts an item.
func (s *SQLStore) CreateItem(ctx context.Context, it model.Item) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		found, err := exists(ctx, tx, "items", it.ID)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, conflict(model.TableItems, it.ID)
		}
		ws, err := s.boardWorkspace(ctx, tx, it.BoardID)
		if err != nil {
			return nil, err
		}
		it.UpdatedAt = s.nowMillis()
		args, err := itemArgs(it)
		if err != nil {
			return nil, fmt.Errorf("encoding item %s: %w", it.ID, err)
		}
		_, err = tx.ExecContext(ctx, s.q("INSERT INTO items ("+itemCols+") VALUES ("+placeholders(len(args))+")"), args...)
		if err != nil {
			return nil, fmt.Errorf("creating item: %w", err)
		}
		return s.rowEvent(model.TableItems, feed.EventInsert, it, ws, ""), nil
	})
}

// UpdateItem applies a partial update to an item.
func (s *SQLStore) UpdateItem(ctx context.Context, id string, patch remote.Patch) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		if err := s.patchRow(ctx, tx, "items", id, patch); err != nil {
			return nil, err
		}
		return s.itemChanged(ctx, tx, id)
	})
}

// SetItemValue replaces one column value of an item. A null value removes
// the entry.
func (s *SQLStore) SetItemValue(ctx context.Context, itemID, columnID string, value json.RawMessage) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		it, err := s.getItem(ctx, tx, itemID)
		if err != nil {
			return nil, err
		}
		if len(value) == 0 || string(value) == "null" {
			delete(it.Values, columnID)
		} else {
			it.Values[columnID] = value
		}
		encoded, err := encodeJSON(it.Values)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, s.q("UPDATE items SET cell_values = ?, updated_at = ? WHERE id = ?"),
			encoded, s.nowMillis(), itemID)
		if err != nil {
			return nil, fmt.Errorf("setting value of item %s: %w", itemID, err)
		}
		return s.itemChanged(ctx, tx, itemID)
	})
}

func (s *SQLStore) itemChanged(ctx context.Context, tx *sqlx.Tx, id string) ([]feed.Event, error) {
	it, err := s.getItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	ws, err := s.boardWorkspace(ctx, tx, it.BoardID)
	if err != nil {
		return nil, err
	}
	return s.rowEvent(model.TableItems, feed.EventUpdate, it, ws, ""), nil
}

// DeleteItem removes an item.
func (s *SQLStore) DeleteItem(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		it, err := s.getItem(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		ws, err := s.boardWorkspace(ctx, tx, it.BoardID)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM items WHERE id = ?"), id); err != nil {
			return nil, fmt.Errorf("deleting item %s: %w", id, err)
		}
		return s.rowEvent(model.TableItems, feed.EventDelete,
			map[string]string{"id": id, "board_id": it.BoardID}, ws, ""), nil
	})
}
