package model

// Default item column settings for new boards.
const (
	DefaultItemColumnTitle = "Item"
	DefaultItemColumnWidth = 320
)

// SortDirection constants.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// BoardSort is the active sort of a board view.
type BoardSort struct {
	ColumnID  string `json:"column_id"`
	Direction string `json:"direction"`
}

// BoardFilter restricts the items shown in a board view.
type BoardFilter struct {
	ColumnID string   `json:"column_id"`
	Operator string   `json:"operator"`
	Values   []string `json:"values,omitempty"`
}

// Board is a table of items organized into groups with typed columns.
//
// Columns, Groups and Items are populated by the entity store; Items is the
// flat ordered list and each Group.Items is a filtered view of it.
type Board struct {
	ID              string        `json:"id" db:"id"`
	WorkspaceID     string        `json:"workspace_id" db:"workspace_id"`
	Title           string        `json:"title" db:"title"`
	Position        int           `json:"position" db:"position"`
	ItemColumnTitle string        `json:"item_column_title" db:"item_column_title"`
	ItemColumnWidth int           `json:"item_column_width" db:"item_column_width"`
	Sort            *BoardSort    `json:"sort,omitempty" db:"-"`
	Filters         []BoardFilter `json:"filters,omitempty" db:"-"`
	UpdatedAt       int64         `json:"updated_at" db:"updated_at"`

	Columns []Column `json:"columns,omitempty" db:"-"`
	Groups  []Group  `json:"groups,omitempty" db:"-"`
	Items   []Item   `json:"items,omitempty" db:"-"`

	// Loaded is false while the initial inserts of a new board are in flight.
	Loaded bool `json:"-" db:"-"`
}

// Group is a titled section of a board.
type Group struct {
	ID        string `json:"id" db:"id"`
	BoardID   string `json:"board_id" db:"board_id"`
	Title     string `json:"title" db:"title"`
	Color     string `json:"color" db:"color"`
	Position  int    `json:"position" db:"position"`
	Collapsed bool   `json:"collapsed" db:"-"`
	UpdatedAt int64  `json:"updated_at" db:"updated_at"`

	// Items is derived from the board's flat item list.
	Items []Item `json:"items,omitempty" db:"-"`
}

// ItemIDs returns the ids of the items in the group view.
func (g Group) ItemIDs() []string {
	ids := make([]string, len(g.Items))
	for i, it := range g.Items {
		ids[i] = it.ID
	}
	return ids
}

// Group returns the group with the given id.
func (b *Board) Group(id string) (*Group, bool) {
	for i := range b.Groups {
		if b.Groups[i].ID == id {
			return &b.Groups[i], true
		}
	}
	return nil, false
}

// Column returns the column with the given id.
func (b *Board) Column(id string) (*Column, bool) {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return &b.Columns[i], true
		}
	}
	return nil, false
}

// Item returns the item with the given id.
func (b *Board) Item(id string) (*Item, bool) {
	for i := range b.Items {
		if b.Items[i].ID == id {
			return &b.Items[i], true
		}
	}
	return nil, false
}
