package store

import (
	"encoding/json"
	"fmt"

	"github.com/nhle/workera/internal/model"
)

// Column lists of each table, in scan order of the row structs.
const (
	workspaceCols    = "id, title, position, owner_id, updated_at"
	boardCols        = "id, workspace_id, title, position, item_column_title, item_column_width, sort, filters, updated_at"
	groupCols        = "id, board_id, title, color, position, collapsed, updated_at"
	columnCols       = "id, board_id, title, type, options, width, position, aggregation, updated_at"
	itemCols         = "id, board_id, group_id, title, cell_values, updates, files, is_hidden, position, updated_at"
	notificationCols = "id, type, user_id, entity_id, data, is_read, created_at, updated_at"
	membershipCols   = "id, kind, entity_id, user_id, role, created_at"
)

type boardRow struct {
	ID              string `db:"id"`
	WorkspaceID     string `db:"workspace_id"`
	Title           string `db:"title"`
	Position        int    `db:"position"`
	ItemColumnTitle string `db:"item_column_title"`
	ItemColumnWidth int    `db:"item_column_width"`
	Sort            string `db:"sort"`
	Filters         string `db:"filters"`
	UpdatedAt       int64  `db:"updated_at"`
}

func (r boardRow) toModel() (model.Board, error) {
	b := model.Board{
		ID:              r.ID,
		WorkspaceID:     r.WorkspaceID,
		Title:           r.Title,
		Position:        r.Position,
		ItemColumnTitle: r.ItemColumnTitle,
		ItemColumnWidth: r.ItemColumnWidth,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Sort != "" && r.Sort != "null" {
		var sort model.BoardSort
		if err := json.Unmarshal([]byte(r.Sort), &sort); err != nil {
			return b, fmt.Errorf("decoding sort of board %s: %w", r.ID, err)
		}
		b.Sort = &sort
	}
	if err := decodeJSON(r.Filters, &b.Filters); err != nil {
		return b, fmt.Errorf("decoding filters of board %s: %w", r.ID, err)
	}
	return b, nil
}

func boardArgs(b model.Board) ([]any, error) {
	sort := ""
	if b.Sort != nil {
		var err error
		if sort, err = encodeJSON(b.Sort); err != nil {
			return nil, err
		}
	}
	filters := "[]"
	if b.Filters != nil {
		var err error
		if filters, err = encodeJSON(b.Filters); err != nil {
			return nil, err
		}
	}
	return []any{
		b.ID, b.WorkspaceID, b.Title, b.Position, b.ItemColumnTitle,
		b.ItemColumnWidth, sort, filters, b.UpdatedAt,
	}, nil
}

type groupRow struct {
	ID        string `db:"id"`
	BoardID   string `db:"board_id"`
	Title     string `db:"title"`
	Color     string `db:"color"`
	Position  int    `db:"position"`
	Collapsed int    `db:"collapsed"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r groupRow) toModel() model.Group {
	return model.Group{
		ID:        r.ID,
		BoardID:   r.BoardID,
		Title:     r.Title,
		Color:     r.Color,
		Position:  r.Position,
		Collapsed: r.Collapsed != 0,
		UpdatedAt: r.UpdatedAt,
	}
}

func groupArgs(g model.Group) []any {
	return []any{g.ID, g.BoardID, g.Title, g.Color, g.Position, boolToInt(g.Collapsed), g.UpdatedAt}
}

type columnRow struct {
	ID          string `db:"id"`
	BoardID     string `db:"board_id"`
	Title       string `db:"title"`
	Type        string `db:"type"`
	Options     string `db:"options"`
	Width       int    `db:"width"`
	Position    int    `db:"position"`
	Aggregation string `db:"aggregation"`
	UpdatedAt   int64  `db:"updated_at"`
}

func (r columnRow) toModel() (model.Column, error) {
	col := model.Column{
		ID:          r.ID,
		BoardID:     r.BoardID,
		Title:       r.Title,
		Type:        model.ColumnType(r.Type),
		Width:       r.Width,
		Position:    r.Position,
		Aggregation: r.Aggregation,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := decodeJSON(r.Options, &col.Options); err != nil {
		return col, fmt.Errorf("decoding options of column %s: %w", r.ID, err)
	}
	return col, nil
}

func columnArgs(col model.Column) ([]any, error) {
	options := "[]"
	if col.Options != nil {
		var err error
		if options, err = encodeJSON(col.Options); err != nil {
			return nil, err
		}
	}
	return []any{
		col.ID, col.BoardID, col.Title, string(col.Type), options,
		col.Width, col.Position, col.Aggregation, col.UpdatedAt,
	}, nil
}

type itemRow struct {
	ID         string `db:"id"`
	BoardID    string `db:"board_id"`
	GroupID    string `db:"group_id"`
	Title      string `db:"title"`
	CellValues string `db:"cell_values"`
	Updates    string `db:"updates"`
	Files      string `db:"files"`
	IsHidden   int    `db:"is_hidden"`
	Position   int    `db:"position"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (r itemRow) toModel() (model.Item, error) {
	it := model.Item{
		ID:        r.ID,
		BoardID:   r.BoardID,
		GroupID:   r.GroupID,
		Title:     r.Title,
		IsHidden:  r.IsHidden != 0,
		Position:  r.Position,
		UpdatedAt: r.UpdatedAt,
		Values:    map[string]json.RawMessage{},
	}
	if err := decodeJSON(r.CellValues, &it.Values); err != nil {
		return it, fmt.Errorf("decoding values of item %s: %w", r.ID, err)
	}
	if err := decodeJSON(r.Updates, &it.Updates); err != nil {
		return it, fmt.Errorf("decoding updates of item %s: %w", r.ID, err)
	}
	if err := decodeJSON(r.Files, &it.Files); err != nil {
		return it, fmt.Errorf("decoding files of item %s: %w", r.ID, err)
	}
	return it, nil
}

func itemArgs(it model.Item) ([]any, error) {
	values := it.Values
	if values == nil {
		values = map[string]json.RawMessage{}
	}
	cellValues, err := encodeJSON(values)
	if err != nil {
		return nil, err
	}
	updates, err := encodeJSON(nonNil(it.Updates))
	if err != nil {
		return nil, err
	}
	files, err := encodeJSON(nonNil(it.Files))
	if err != nil {
		return nil, err
	}
	return []any{
		it.ID, it.BoardID, it.GroupID, it.Title, cellValues, updates, files,
		boolToInt(it.IsHidden), it.Position, it.UpdatedAt,
	}, nil
}

type notificationRow struct {
	ID        string `db:"id"`
	Type      string `db:"type"`
	UserID    string `db:"user_id"`
	EntityID  string `db:"entity_id"`
	Data      string `db:"data"`
	IsRead    int    `db:"is_read"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r notificationRow) toModel() (model.Notification, error) {
	n := model.Notification{
		ID:        r.ID,
		Type:      model.NotificationType(r.Type),
		UserID:    r.UserID,
		EntityID:  r.EntityID,
		IsRead:    r.IsRead != 0,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := decodeJSON(r.Data, &n.Data); err != nil {
		return n, fmt.Errorf("decoding data of notification %s: %w", r.ID, err)
	}
	return n, nil
}

func notificationArgs(n model.Notification) ([]any, error) {
	data, err := encodeJSON(n.Data)
	if err != nil {
		return nil, err
	}
	return []any{
		n.ID, string(n.Type), n.UserID, n.EntityID, data,
		boolToInt(n.IsRead), n.CreatedAt, n.UpdatedAt,
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// placeholders returns n comma separated "?" placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, '?')
	}
	return string(buf)
}
