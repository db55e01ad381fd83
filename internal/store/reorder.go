package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

// reorderTarget describes how a collection is stored: its SQL table, the
// column scoping siblings and the feed table its events go to.
type reorderTarget struct {
	table     string
	parentCol string
	feedTable string
}

var reorderTargets = map[remote.Collection]reorderTarget{
	remote.CollectionWorkspaces: {"workspaces", "owner_id", model.TableWorkspaces},
	remote.CollectionBoards:     {"boards", "workspace_id", model.TableBoards},
	remote.CollectionGroups:     {sqlGroups, "board_id", model.TableGroups},
	remote.CollectionColumns:    {sqlColumns, "board_id", model.TableColumns},
	remote.CollectionItems:      {"items", "board_id", model.TableItems},
}

// Reorder rewrites the positions of every sibling under parentID so they
// follow orderedIDs. orderedIDs must name exactly the current siblings;
// otherwise ErrConflict is returned and nothing changes.
func (s *SQLStore) Reorder(ctx context.Context, coll remote.Collection, parentID string, orderedIDs []string) error {
	target, ok := reorderTargets[coll]
	if !ok {
		return fmt.Errorf("unknown collection %q", coll)
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) ([]feed.Event, error) {
		var current []string
		err := tx.SelectContext(ctx, &current,
			s.q("SELECT id FROM "+target.table+" WHERE "+target.parentCol+" = ?"), parentID)
		if err != nil {
			return nil, fmt.Errorf("listing %s under %s: %w", coll, parentID, err)
		}
		if !sameSet(current, orderedIDs) {
			return nil, fmt.Errorf("reordering %s under %s: ids do not match current siblings: %w",
				coll, parentID, remote.ErrConflict)
		}

		ws, user, err := s.reorderScope(ctx, tx, coll, parentID)
		if err != nil {
			return nil, err
		}

		now := s.nowMillis()
		events := make([]feed.Event, 0, len(orderedIDs))
		for pos, id := range orderedIDs {
			_, err := tx.ExecContext(ctx,
				s.q("UPDATE "+target.table+" SET position = ?, updated_at = ? WHERE id = ?"), pos, now, id)
			if err != nil {
				return nil, fmt.Errorf("positioning %s %s: %w", coll, id, err)
			}
			row, err := s.reorderedRow(ctx, tx, coll, id)
			if err != nil {
				return nil, err
			}
			events = append(events, s.rowEvent(target.feedTable, feed.EventUpdate, row, ws, user)...)
		}
		return events, nil
	})
}

// reorderScope returns the workspace and user the events of a reorder are
// scoped to.
func (s *SQLStore) reorderScope(ctx context.Context, tx *sqlx.Tx, coll remote.Collection, parentID string) (string, string, error) {
	switch coll {
	case remote.CollectionWorkspaces:
		return "", parentID, nil
	case remote.CollectionBoards:
		return parentID, "", nil
	}
	ws, err := s.boardWorkspace(ctx, tx, parentID)
	return ws, "", err
}

func (s *SQLStore) reorderedRow(ctx context.Context, tx *sqlx.Tx, coll remote.Collection, id string) (any, error) {
	switch coll {
	case remote.CollectionWorkspaces:
		return s.getWorkspace(ctx, tx, id)
	case remote.CollectionBoards:
		return s.getBoardRow(ctx, tx, id)
	case remote.CollectionGroups:
		return s.getGroup(ctx, tx, id)
	case remote.CollectionColumns:
		return s.getColumn(ctx, tx, id)
	}
	return s.getItem(ctx, tx, id)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
