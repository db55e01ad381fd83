package sync

import (
	"context"
	"fmt"

	"github.com/nhle/workera/internal/model"
	"github.com/nhle/workera/internal/remote"
)

// Column width bounds in pixels.
const (
	MinColumnWidth = 60
	MaxColumnWidth = 1200
)

func checkWidth(width int) (int, error) {
	if width < MinColumnWidth || width > MaxColumnWidth {
		return 0, fmt.Errorf("%w: width %d outside [%d, %d]", ErrInvalidInput, width, MinColumnWidth, MaxColumnWidth)
	}
	return width, nil
}

func (e *Engine) columnModel(id string) (model.Column, error) {
	if err := model.ValidateID(id); err != nil {
		return model.Column{}, err
	}
	col, ok := e.store.Column(id)
	if !ok {
		return model.Column{}, fmt.Errorf("%w: column %s", ErrNotFound, id)
	}
	return col, nil
}

// CreateColumn appends a column of type typ to a board. Status and
// dropdown columns start with the default options.
func (e *Engine) CreateColumn(boardID, title string, typ model.ColumnType) (model.Column, error) {
	b, err := e.loadedBoard(boardID)
	if err != nil {
		return model.Column{}, err
	}
	title, err = cleanTitle(title)
	if err != nil {
		return model.Column{}, err
	}
	if !typ.Valid() {
		return model.Column{}, fmt.Errorf("%w: column type %q", ErrInvalidInput, typ)
	}
	positions := make([]int, 0, len(b.Columns))
	for _, c := range b.Columns {
		positions = append(positions, c.Position)
	}
	col, _ := healColumn(model.Column{
		ID:       model.NewID(),
		BoardID:  boardID,
		Title:    title,
		Type:     typ,
		Width:    model.DefaultColumnWidth,
		Position: nextPosition(positions),
	})
	if err := e.store.UpsertColumn(col); err != nil {
		return model.Column{}, fmt.Errorf("%w: board %s", ErrNotFound, boardID)
	}
	e.touch(col.ID, model.FieldTitle, model.FieldType, model.FieldOptions, model.FieldPosition)
	e.enqueue(write{
		op:      "create_column",
		boardID: boardID,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.CreateColumn(ctx, col)
		},
	})
	e.recordActivity(model.Activity{BoardID: boardID, EntityType: activityColumn, Action: model.ActivityCreate, After: jsonOf(title)})
	return col, nil
}

// RenameColumn changes a column title.
func (e *Engine) RenameColumn(id, title string) error {
	col, err := e.columnModel(id)
	if err != nil {
		return err
	}
	title, err = cleanTitle(title)
	if err != nil {
		return err
	}
	_ = e.store.PatchColumn(id, func(c *model.Column) { c.Title = title })
	e.touch(id, model.FieldTitle)
	e.remoteColumnPatch("rename_column", col.BoardID, id, remote.Patch{model.FieldTitle: title})
	e.recordActivity(model.Activity{
		BoardID: col.BoardID, EntityType: activityColumn, Action: model.ActivityRename, Field: model.FieldTitle,
		Before: jsonOf(col.Title), After: jsonOf(title),
	})
	return nil
}

// ResizeColumn changes a column width.
func (e *Engine) ResizeColumn(id string, width int) error {
	col, err := e.columnModel(id)
	if err != nil {
		return err
	}
	width, err = checkWidth(width)
	if err != nil {
		return err
	}
	_ = e.store.PatchColumn(id, func(c *model.Column) { c.Width = width })
	e.touch(id, model.FieldWidth)
	e.remoteColumnPatch("resize_column", col.BoardID, id, remote.Patch{model.FieldWidth: width})
	return nil
}

// SetColumnOptions replaces the options of a status or dropdown column.
// Options without an id get a fresh one; labels must be unique.
func (e *Engine) SetColumnOptions(id string, options []model.Option) error {
	col, err := e.columnModel(id)
	if err != nil {
		return err
	}
	if !col.Type.HasOptions() {
		return fmt.Errorf("%w: %s columns have no options", ErrInvalidInput, col.Type)
	}
	if len(options) == 0 {
		return fmt.Errorf("%w: empty option list", ErrInvalidInput)
	}
	next := make([]model.Option, 0, len(options))
	ids := make(map[string]bool, len(options))
	labels := make(map[string]bool, len(options))
	for _, o := range options {
		if o.ID == "" {
			o.ID = model.NewID()
		}
		if o.Label == "" || labels[o.Label] || ids[o.ID] {
			return fmt.Errorf("%w: duplicate or empty option %q", ErrInvalidInput, o.Label)
		}
		ids[o.ID], labels[o.Label] = true, true
		next = append(next, o)
	}
	_ = e.store.PatchColumn(id, func(c *model.Column) { c.Options = next })
	e.touch(id, model.FieldOptions)
	e.remoteColumnPatch("set_column_options", col.BoardID, id, remote.Patch{model.FieldOptions: next})
	return nil
}

// SetColumnAggregation selects the footer aggregation of a column.
func (e *Engine) SetColumnAggregation(id, aggregation string) error {
	col, err := e.columnModel(id)
	if err != nil {
		return err
	}
	switch aggregation {
	case model.AggregationNone, model.AggregationCount:
	case model.AggregationSum, model.AggregationAvg, model.AggregationMin, model.AggregationMax:
		if col.Type != model.ColumnNumber {
			return fmt.Errorf("%w: %s aggregation on %s column", ErrInvalidInput, aggregation, col.Type)
		}
	default:
		return fmt.Errorf("%w: aggregation %q", ErrInvalidInput, aggregation)
	}
	_ = e.store.PatchColumn(id, func(c *model.Column) { c.Aggregation = aggregation })
	e.touch(id, model.FieldAggregation)
	e.remoteColumnPatch("set_column_aggregation", col.BoardID, id, remote.Patch{model.FieldAggregation: aggregation})
	return nil
}

// DeleteColumn removes a column and its value from every item.
func (e *Engine) DeleteColumn(id string) error {
	col, err := e.columnModel(id)
	if err != nil {
		return err
	}
	if err := e.store.RemoveColumn(id); err != nil {
		return fmt.Errorf("%w: column %s", ErrNotFound, id)
	}
	e.optimistic.drop(id, e.now())
	e.enqueue(write{
		op:      "delete_column",
		boardID: col.BoardID,
		run: func(ctx context.Context, r remote.Remote) error {
			return r.DeleteColumn(ctx, id)
		},
	})
	e.recordActivity(model.Activity{BoardID: col.BoardID, EntityType: activityColumn, Action: model.ActivityDelete, Before: jsonOf(col.Title)})
	return nil
}
