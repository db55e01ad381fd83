package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/workera/internal/entity"
	"github.com/nhle/workera/internal/feed"
	"github.com/nhle/workera/internal/model"
)

// errDropped marks events that cannot be merged and are left to the next
// reload.
var errDropped = errors.New("event dropped")

// ApplyEvent merges one change-feed event into the entity store.
//
// Inserts of ids already present are ignored. Updates are applied from the
// server row except for fields an optimistic write still shadows. Deletes
// always apply.
func (e *Engine) ApplyEvent(ev feed.Event) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = e.now()
	}
	if ev.Type == feed.EventResync {
		e.logger.Info("change feed resynced, scheduling full reload")
		e.ScheduleReload(fullReload)
		return
	}

	var err error
	switch ev.Table {
	case model.TableWorkspaces:
		err = e.mergeWorkspace(ev)
	case model.TableBoards:
		err = e.mergeBoard(ev)
	case model.TableGroups:
		err = e.mergeGroup(ev)
	case model.TableColumns:
		err = e.mergeColumn(ev)
	case model.TableItems:
		err = e.mergeItem(ev)
	case model.TableNotifications:
		err = e.mergeNotification(ev)
	case model.TableMemberships:
		err = e.mergeMembership(ev)
	default:
		err = fmt.Errorf("%w: unknown table", errDropped)
	}
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"table": ev.Table,
			"event": ev.Type,
			"id":    ev.RowID(),
		}).Debug("dropping feed event")
	}
}

// commitTime converts a row's updated_at into a time. Zero stays zero.
func commitTime(updatedAt int64) time.Time {
	if updatedAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(updatedAt)
}

// rowImage decodes the row carried by an insert or update.
func rowImage[T any](ev feed.Event) (T, error) {
	var row T
	if len(ev.New) == 0 {
		return row, fmt.Errorf("%w: missing row image", errDropped)
	}
	if err := json.Unmarshal(ev.New, &row); err != nil {
		return row, fmt.Errorf("%w: decoding row: %v", errDropped, err)
	}
	return row, nil
}

// mergeRow decodes the server row into a fresh T, keeping the local value
// of every shadowed field. Fields named "values.<column>" keep one cell.
func mergeRow[T any](server json.RawMessage, local T, shadow map[string]bool) (T, error) {
	var out T
	if len(shadow) == 0 {
		err := json.Unmarshal(server, &out)
		return out, err
	}
	merged, err := overlay(server, local, shadow)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(merged, &out)
	return out, err
}

func overlay(server json.RawMessage, local any, shadow map[string]bool) (json.RawMessage, error) {
	var row map[string]json.RawMessage
	if err := json.Unmarshal(server, &row); err != nil {
		return nil, fmt.Errorf("decoding server row: %w", err)
	}
	raw, err := json.Marshal(local)
	if err != nil {
		return nil, fmt.Errorf("encoding local row: %w", err)
	}
	var mine map[string]json.RawMessage
	if err := json.Unmarshal(raw, &mine); err != nil {
		return nil, fmt.Errorf("decoding local row: %w", err)
	}

	var cells []string
	for f := range shadow {
		if col, ok := strings.CutPrefix(f, model.FieldValues+"."); ok {
			cells = append(cells, col)
			continue
		}
		if v, ok := mine[f]; ok {
			row[f] = v
		} else {
			delete(row, f)
		}
	}
	if len(cells) > 0 && !shadow[model.FieldValues] {
		var theirs, ours map[string]json.RawMessage
		_ = json.Unmarshal(row[model.FieldValues], &theirs)
		_ = json.Unmarshal(mine[model.FieldValues], &ours)
		if theirs == nil {
			theirs = make(map[string]json.RawMessage)
		}
		for _, col := range cells {
			if v, ok := ours[col]; ok {
				theirs[col] = v
			} else {
				delete(theirs, col)
			}
		}
		values, err := json.Marshal(theirs)
		if err != nil {
			return nil, fmt.Errorf("encoding values: %w", err)
		}
		row[model.FieldValues] = values
	}
	return json.Marshal(row)
}

func (e *Engine) shadowedFields(id string, updatedAt int64, arrived time.Time) map[string]bool {
	return e.optimistic.shadowed(id, commitTime(updatedAt), arrived)
}

func (e *Engine) mergeWorkspace(ev feed.Event) error {
	if ev.Type == feed.EventDelete {
		id := ev.RowID()
		if e.store.RemoveWorkspace(id) == nil {
			e.optimistic.forget(id)
			if e.ActiveWorkspace() == id {
				e.ScheduleReload(fullReload)
			}
		}
		return nil
	}
	row, err := rowImage[model.Workspace](ev)
	if err != nil {
		return err
	}
	local, ok := e.store.Workspace(row.ID)
	if !ok {
		e.store.UpsertWorkspace(row)
		return nil
	}
	if ev.Type == feed.EventInsert {
		return nil
	}
	merged, err := mergeRow(ev.New, local, e.shadowedFields(row.ID, row.UpdatedAt, ev.ReceivedAt))
	if err != nil {
		return fmt.Errorf("%w: %v", errDropped, err)
	}
	return e.store.PatchWorkspace(row.ID, func(ws *model.Workspace) { *ws = merged })
}

func (e *Engine) mergeBoard(ev feed.Event) error {
	if ev.Type == feed.EventDelete {
		id := ev.RowID()
		if e.store.RemoveBoard(id) == nil {
			e.optimistic.forget(id)
		}
		return nil
	}
	row, err := rowImage[model.Board](ev)
	if err != nil {
		return err
	}
	if _, known := e.store.Workspace(row.WorkspaceID); !known {
		// Moved out of the loaded workspaces.
		if e.store.RemoveBoard(row.ID) == nil {
			e.optimistic.forget(row.ID)
		}
		return nil
	}

	local, ok := e.store.Board(row.ID)
	if !ok {
		row.Columns, row.Groups, row.Items = nil, nil, nil
		row.Loaded = true
		e.store.UpsertBoard(row)
		// Content of a board seen for the first time comes from a reload.
		e.ScheduleReload(row.ID)
		return nil
	}
	if ev.Type == feed.EventInsert {
		return nil
	}
	local.Columns, local.Groups, local.Items = nil, nil, nil
	merged, err := mergeRow(ev.New, local, e.shadowedFields(row.ID, row.UpdatedAt, ev.ReceivedAt))
	if err != nil {
		return fmt.Errorf("%w: %v", errDropped, err)
	}
	return e.store.PatchBoard(row.ID, func(b *model.Board) {
		loaded := b.Loaded
		*b = merged
		b.Loaded = loaded
	})
}

func (e *Engine) mergeGroup(ev feed.Event) error {
	if ev.Type == feed.EventDelete {
		id := ev.RowID()
		if e.store.RemoveGroup(id) == nil {
			e.optimistic.forget(id)
		}
		return nil
	}
	row, err := rowImage[model.Group](ev)
	if err != nil {
		return err
	}
	if !e.store.HasBoard(row.BoardID) {
		return nil
	}
	local, ok := e.store.Group(row.ID)
	if !ok {
		row.Items = nil
		return e.store.UpsertGroup(row)
	}
	if ev.Type == feed.EventInsert {
		return nil
	}
	merged, err := mergeRow(ev.New, local, e.shadowedFields(row.ID, row.UpdatedAt, ev.ReceivedAt))
	if err != nil {
		return fmt.Errorf("%w: %v", errDropped, err)
	}
	return e.store.PatchGroup(row.ID, func(g *model.Group) { *g = merged })
}

func (e *Engine) mergeColumn(ev feed.Event) error {
	if ev.Type == feed.EventDelete {
		id := ev.RowID()
		if e.store.RemoveColumn(id) == nil {
			e.optimistic.forget(id)
		}
		return nil
	}
	row, err := rowImage[model.Column](ev)
	if err != nil {
		return err
	}
	if !e.store.HasBoard(row.BoardID) {
		return nil
	}
	local, ok := e.store.Column(row.ID)
	if ok && ev.Type == feed.EventInsert {
		return nil
	}
	next := row
	if ok {
		next, err = mergeRow(ev.New, local, e.shadowedFields(row.ID, row.UpdatedAt, ev.ReceivedAt))
		if err != nil {
			return fmt.Errorf("%w: %v", errDropped, err)
		}
	}
	healed, changed := healColumn(next)
	if changed {
		e.logger.WithFields(log.Fields{"board": row.BoardID, "column": row.ID}).Info("healing column from feed")
		e.enqueueColumnHeal(healed)
	}
	if !ok {
		return e.store.UpsertColumn(healed)
	}
	return e.store.PatchColumn(row.ID, func(c *model.Column) { *c = healed })
}

func (e *Engine) mergeItem(ev feed.Event) error {
	if ev.Type == feed.EventDelete {
		id := ev.RowID()
		if e.store.RemoveItem(id) == nil {
			e.optimistic.forget(id)
		}
		return nil
	}
	row, err := rowImage[model.Item](ev)
	if err != nil {
		return err
	}
	if !e.store.HasBoard(row.BoardID) {
		return nil
	}
	local, ok := e.store.Item(row.ID)
	if !ok {
		err = e.store.InsertItem(row)
	} else if ev.Type == feed.EventInsert {
		return nil
	} else {
		var merged model.Item
		merged, err = mergeRow(ev.New, local, e.shadowedFields(row.ID, row.UpdatedAt, ev.ReceivedAt))
		if err != nil {
			return fmt.Errorf("%w: %v", errDropped, err)
		}
		err = e.store.PatchItem(row.ID, func(it *model.Item) { *it = merged })
	}
	if errors.Is(err, entity.ErrUnknownGroup) {
		return fmt.Errorf("%w: item %s references unknown group %s", errDropped, row.ID, row.GroupID)
	}
	return err
}

// mergeNotification applies a notification row. A terminal local invite
// status is never reopened and a read flag is never cleared.
func (e *Engine) mergeNotification(ev feed.Event) error {
	if ev.Type == feed.EventDelete {
		id := ev.RowID()
		if e.store.RemoveNotification(id) == nil {
			e.optimistic.forget(id)
		}
		return nil
	}
	row, err := rowImage[model.Notification](ev)
	if err != nil {
		return err
	}
	if row.UserID != e.userID {
		return nil
	}
	local, ok := e.store.Notification(row.ID)
	if !ok {
		e.store.UpsertNotification(row)
		return nil
	}
	if ev.Type == feed.EventInsert {
		return nil
	}
	merged, err := mergeRow(ev.New, local, e.shadowedFields(row.ID, row.UpdatedAt, ev.ReceivedAt))
	if err != nil {
		return fmt.Errorf("%w: %v", errDropped, err)
	}
	if local.Resolved() {
		merged.Data.Status = local.Data.Status
	}
	merged.IsRead = merged.IsRead || local.IsRead
	return e.store.PatchNotification(row.ID, func(n *model.Notification) { *n = merged })
}

// mergeMembership reloads everything when the user gains access to a
// workspace or board.
func (e *Engine) mergeMembership(ev feed.Event) error {
	if ev.Type != feed.EventInsert {
		return nil
	}
	m, err := rowImage[model.Membership](ev)
	if err != nil {
		return err
	}
	if m.UserID == e.userID {
		e.logger.WithFields(log.Fields{"kind": m.Kind, "entity": m.EntityID}).Info("membership granted, scheduling full reload")
		e.ScheduleReload(fullReload)
	}
	return nil
}
