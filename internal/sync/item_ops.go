package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
	"github.com/nhle/workera/internal/value"
)

func (e *Engine) itemModel(id string) (model.Item, error) {
	if err := model.ValidateID(id); err != nil {
		return model.Item{}, err
	}
	it, ok := e.store.Item(id)
	if !ok {
		return model.Item{}, fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	return it, nil
}

func lastItemPosition(b model.Board) int {
	positions := make([]int, 0, len(b.Items))
	for _, it := range b.Items {
		positions = append(positions, it.Position)
	}
	return nextPosition(positions)
}

// CreateItem appends an item to a group.
func (e *Engine) CreateItem(boardID, groupID, title string) (model.Item, error) {
	b, err := e.loadedBoard(boardID)
	if err != nil {
		return model.Item{}, err
	}
	if err := model.ValidateID(groupID); err != nil {
		return model.Item{}, err
	}
	if _, ok := b.Group(groupID); !ok {
		return model.Item{}, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	title, err = cleanTitle(title)
	if err != nil {
		return model.Item{}, err
	}
	it := model.Item{
		ID:       model.NewID(),
		BoardID:  boardID,
		GroupID:  groupID,
		Title:    title,
		Values:   map[string]json.RawMessage{},
		Position: lastItemPosition(b),
	}
	return it, e.insertItem(it, "create_item")
}

func (e *Engine) insertItem(it model.Item, op string) error {
	if err := e.store.InsertItem(it); err != nil {
		return fmt.Errorf("%w: inserting item %s: %v", ErrInvalidInput, it.ID, err)
	}
	fields := []string{model.FieldTitle, model.FieldGroupID, model.FieldPosition}
	for colID := range it.Values {
		fields = append(fields, model.ValueField(colID))
	}
	e.touch(it.ID, fields...)
	e.enqueue(write{
		op:      op,
		boardID: it.BoardID,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.CreateItem(ctx, it)
		},
	})
	e.recordActivity(model.Activity{BoardID: it.BoardID, ItemID: it.ID, EntityType: activityItem, Action: model.ActivityCreate, After: jsonOf(it.Title)})
	return nil
}

// DuplicateItem copies an item with its values into the same group.
func (e *Engine) DuplicateItem(id string) (model.Item, error) {
	src, err := e.itemModel(id)
	if err != nil {
		return model.Item{}, err
	}
	b, err := e.boardModel(src.BoardID)
	if err != nil {
		return model.Item{}, err
	}
	dup := src.Clone()
	dup.ID = model.NewID()
	dup.Title = src.Title + " (copy)"
	dup.Updates = nil
	dup.Position = lastItemPosition(b)
	return dup, e.insertItem(dup, "duplicate_item")
}

// RenameItem changes an item title.
func (e *Engine) RenameItem(id, title string) error {
	it, err := e.itemModel(id)
	if err != nil {
		return err
	}
	title, err = cleanTitle(title)
	if err != nil {
		return err
	}
	_ = e.store.PatchItem(id, func(it *model.Item) { it.Title = title })
	e.touch(id, model.FieldTitle)
	e.remoteItemPatch("rename_item", it.BoardID, id, remote.Patch{model.FieldTitle: title})
	e.recordActivity(model.Activity{
		BoardID: it.BoardID, ItemID: id, EntityType: activityItem, Action: model.ActivityRename, Field: model.FieldTitle,
		Before: jsonOf(it.Title), After: jsonOf(title),
	})
	return nil
}

// SetItemValue sets one column value of an item. Status and dropdown values
// may reference options by id or label and are stored by id. A null value
// clears the cell.
func (e *Engine) SetItemValue(itemID, columnID string, raw json.RawMessage) error {
	it, err := e.itemModel(itemID)
	if err != nil {
		return err
	}
	col, err := e.columnModel(columnID)
	if err != nil {
		return err
	}
	if col.BoardID != it.BoardID {
		return fmt.Errorf("%w: column %s is not on board %s", ErrInvalidInput, columnID, it.BoardID)
	}
	stored, err := value.Normalize(col, raw)
	if err != nil {
		return err
	}
	before := it.Values[columnID]
	if value.Equal(before, stored) || (before == nil && value.IsNull(stored)) {
		return nil
	}

	_ = e.store.PatchItem(itemID, func(it *model.Item) {
		if value.IsNull(stored) {
			delete(it.Values, columnID)
			return
		}
		if it.Values == nil {
			it.Values = make(map[string]json.RawMessage)
		}
		it.Values[columnID] = stored
	})
	e.touch(itemID, model.ValueField(columnID))
	e.enqueue(write{
		op:      "set_item_value",
		boardID: it.BoardID,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.SetItemValue(ctx, itemID, columnID, stored)
		},
	})
	e.recordActivity(model.Activity{
		BoardID: it.BoardID, ItemID: itemID, EntityType: activityItem, Action: model.ActivityValueChange,
		Field: model.ValueField(columnID), Before: before, After: stored,
	})
	return nil
}

// SetItemHidden hides or shows an item.
func (e *Engine) SetItemHidden(id string, hidden bool) error {
	it, err := e.itemModel(id)
	if err != nil {
		return err
	}
	_ = e.store.PatchItem(id, func(it *model.Item) { it.IsHidden = hidden })
	e.touch(id, model.FieldHidden)
	e.remoteItemPatch("set_item_hidden", it.BoardID, id, remote.Patch{model.FieldHidden: hidden})
	return nil
}

// AddItemUpdate posts a comment on an item.
func (e *Engine) AddItemUpdate(itemID, body string) (model.ItemUpdate, error) {
	it, err := e.itemModel(itemID)
	if err != nil {
		return model.ItemUpdate{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return model.ItemUpdate{}, fmt.Errorf("%w: empty update", ErrInvalidInput)
	}
	u := model.ItemUpdate{ID: model.NewID(), AuthorID: e.userID, Body: body, CreatedAt: e.now().UnixMilli()}
	updates := append(it.Updates, u)
	_ = e.store.PatchItem(itemID, func(it *model.Item) { it.Updates = updates })
	e.touch(itemID, model.FieldUpdates)
	e.remoteItemPatch("add_item_update", it.BoardID, itemID, remote.Patch{model.FieldUpdates: updates})
	return u, nil
}

// AttachFile records an uploaded file on an item.
func (e *Engine) AttachFile(itemID string, file model.ItemFile) (model.ItemFile, error) {
	it, err := e.itemModel(itemID)
	if err != nil {
		return model.ItemFile{}, err
	}
	if file.Name == "" || file.URL == "" {
		return model.ItemFile{}, fmt.Errorf("%w: file needs a name and url", ErrInvalidInput)
	}
	if file.ID == "" {
		file.ID = model.NewID()
	}
	files := append(it.Files, file)
	_ = e.store.PatchItem(itemID, func(it *model.Item) { it.Files = files })
	e.touch(itemID, model.FieldFiles)
	e.remoteItemPatch("attach_file", it.BoardID, itemID, remote.Patch{model.FieldFiles: files})
	return file, nil
}

// DeleteItem removes an item.
func (e *Engine) DeleteItem(id string) error {
	it, err := e.itemModel(id)
	if err != nil {
		return err
	}
	if err := e.store.RemoveItem(id); err != nil {
		return fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	e.optimistic.drop(id, e.now())
	e.enqueue(write{
		op:      "delete_item",
		boardID: it.BoardID,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.DeleteItem(ctx, id)
		},
	})
	e.recordActivity(model.Activity{BoardID: it.BoardID, ItemID: id, EntityType: activityItem, Action: model.ActivityDelete, Before: jsonOf(it.Title)})
	return nil
}
