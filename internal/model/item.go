package model

import "encoding/json"

// ItemUpdate is a comment posted on an item.
type ItemUpdate struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

// ItemFile is an attachment on an item.
type ItemFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

// Item is a row of a board. Values maps a column id to a JSON value whose
// shape is determined by the column type.
type Item struct {
	ID        string                     `json:"id" db:"id"`
	BoardID   string                     `json:"board_id" db:"board_id"`
	GroupID   string                     `json:"group_id" db:"group_id"`
	Title     string                     `json:"title" db:"title"`
	Values    map[string]json.RawMessage `json:"values" db:"-"`
	Updates   []ItemUpdate               `json:"updates,omitempty" db:"-"`
	Files     []ItemFile                 `json:"files,omitempty" db:"-"`
	IsHidden  bool                       `json:"is_hidden" db:"-"`
	Position  int                        `json:"position" db:"position"`
	UpdatedAt int64                      `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	out := it
	if it.Values != nil {
		out.Values = make(map[string]json.RawMessage, len(it.Values))
		for k, v := range it.Values {
			out.Values[k] = append(json.RawMessage(nil), v...)
		}
	}
	if it.Updates != nil {
		out.Updates = append([]ItemUpdate(nil), it.Updates...)
	}
	if it.Files != nil {
		out.Files = append([]ItemFile(nil), it.Files...)
	}
	return out
}

// Clone returns a deep copy of the column.
func (c Column) Clone() Column {
	out := c
	if c.Options != nil {
		out.Options = append([]Option(nil), c.Options...)
	}
	return out
}

// Item field names used for optimistic field tracking and patches.
const (
	FieldTitle    = "title"
	FieldGroupID  = "group_id"
	FieldHidden   = "is_hidden"
	FieldPosition = "position"
	FieldUpdates  = "updates"
	FieldFiles    = "files"
	FieldValues   = "values"

	FieldWidth       = "width"
	FieldOptions     = "options"
	FieldType        = "type"
	FieldAggregation = "aggregation"
	FieldColor       = "color"
	FieldCollapsed   = "collapsed"
	FieldWorkspaceID = "workspace_id"
	FieldSettings    = "settings"
)

// ValueField returns the tracked field name of one column value.
func ValueField(columnID string) string {
	return FieldValues + "." + columnID
}
