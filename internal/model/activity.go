package model

import "encoding/json"

// Activity actions recorded in the board audit log.
const (
	ActivityCreate      = "create"
	ActivityDelete      = "delete"
	ActivityRename      = "rename"
	ActivityValueChange = "value_change"
	ActivityMove        = "move"
)

// Activity is one audit-log record. Before and After are JSON images of the
// changed field and may be empty.
type Activity struct {
	ID         string          `json:"id" db:"id"`
	BoardID    string          `json:"board_id" db:"board_id"`
	ItemID     string          `json:"item_id,omitempty" db:"item_id"`
	UserID     string          `json:"user_id" db:"user_id"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	Action     string          `json:"action" db:"action"`
	Field      string          `json:"field,omitempty" db:"field"`
	Before     json.RawMessage `json:"before,omitempty" db:"-"`
	After      json.RawMessage `json:"after,omitempty" db:"-"`
	CreatedAt  int64           `json:"created_at" db:"created_at"`
}
