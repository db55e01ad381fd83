package model

// ColumnType identifies the value contract of a column.
type ColumnType string

const (
	ColumnText     ColumnType = "text"
	ColumnLongText ColumnType = "long_text"
	ColumnStatus   ColumnType = "status"
	ColumnDate     ColumnType = "date"
	ColumnNumber   ColumnType = "number"
	ColumnDropdown ColumnType = "dropdown"
	ColumnCheckbox ColumnType = "checkbox"
	ColumnLink     ColumnType = "link"
	ColumnPeople   ColumnType = "people"
	ColumnTimeline ColumnType = "timeline"
	ColumnFiles    ColumnType = "files"
)

// ColumnTypes lists every supported column type.
var ColumnTypes = []ColumnType{
	ColumnText, ColumnLongText, ColumnStatus, ColumnDate, ColumnNumber,
	ColumnDropdown, ColumnCheckbox, ColumnLink, ColumnPeople, ColumnTimeline,
	ColumnFiles,
}

// Valid reports whether t is a known column type.
func (t ColumnType) Valid() bool {
	for _, ct := range ColumnTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// HasOptions reports whether values of this type reference column options.
func (t ColumnType) HasOptions() bool {
	return t == ColumnStatus || t == ColumnDropdown
}

// Aggregation kinds shown in a column footer.
const (
	AggregationNone  = ""
	AggregationSum   = "sum"
	AggregationAvg   = "avg"
	AggregationMin   = "min"
	AggregationMax   = "max"
	AggregationCount = "count"
)

// DefaultColumnWidth is the width given to new columns.
const DefaultColumnWidth = 150

// Option is a selectable label of a status or dropdown column.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// Column is a typed field shared by every item of a board.
type Column struct {
	ID          string     `json:"id" db:"id"`
	BoardID     string     `json:"board_id" db:"board_id"`
	Title       string     `json:"title" db:"title"`
	Type        ColumnType `json:"type" db:"type"`
	Options     []Option   `json:"options,omitempty" db:"-"`
	Width       int        `json:"width" db:"width"`
	Position    int        `json:"position" db:"position"`
	Aggregation string     `json:"aggregation,omitempty" db:"aggregation"`
	UpdatedAt   int64      `json:"updated_at" db:"updated_at"`
}

// OptionByID returns the option with the given id.
func (c Column) OptionByID(id string) (Option, bool) {
	for _, o := range c.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// OptionByLabel returns the first option whose label equals label.
func (c Column) OptionByLabel(label string) (Option, bool) {
	for _, o := range c.Options {
		if o.Label == label {
			return o, true
		}
	}
	return Option{}, false
}
