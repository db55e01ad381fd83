package store

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/nhle/workera/internal/remote"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindInt
	kindBool
	kindJSON
)

type field struct {
	column string
	kind   fieldKind
}

// patchable lists the fields a remote.Patch may set per table. Keys are the
// JSON field names of the model.
var patchable = map[string]map[string]field{
	"workspaces": {
		"title":    {"title", kindText},
		"position": {"position", kindInt},
	},
	"boards": {
		"title":             {"title", kindText},
		"position":          {"position", kindInt},
		"workspace_id":      {"workspace_id", kindText},
		"item_column_title": {"item_column_title", kindText},
		"item_column_width": {"item_column_width", kindInt},
		"sort":              {"sort", kindJSON},
		"filters":           {"filters", kindJSON},
	},
	sqlGroups: {
		"title":     {"title", kindText},
		"color":     {"color", kindText},
		"position":  {"position", kindInt},
		"collapsed": {"collapsed", kindBool},
	},
	sqlColumns: {
		"title":       {"title", kindText},
		"type":        {"type", kindText},
		"options":     {"options", kindJSON},
		"width":       {"width", kindInt},
		"position":    {"position", kindInt},
		"aggregation": {"aggregation", kindText},
	},
	"items": {
		"title":     {"title", kindText},
		"group_id":  {"group_id", kindText},
		"values":    {"cell_values", kindJSON},
		"updates":   {"updates", kindJSON},
		"files":     {"files", kindJSON},
		"is_hidden": {"is_hidden", kindBool},
		"position":  {"position", kindInt},
	},
	"notifications": {
		"data":    {"data", kindJSON},
		"is_read": {"is_read", kindBool},
	},
}

// buildUpdate turns patch into a SET clause and its arguments. updated_at is
// always stamped. Keys are applied in sorted order so statements are stable.
func buildUpdate(table string, patch remote.Patch, updatedAt int64) (string, []any, error) {
	fields, ok := patchable[table]
	if !ok {
		return "", nil, fmt.Errorf("table %s is not patchable", table)
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		f, ok := fields[k]
		if !ok {
			return "", nil, fmt.Errorf("field %q of %s is not patchable", k, table)
		}
		v, err := encodeField(f.kind, patch[k])
		if err != nil {
			return "", nil, fmt.Errorf("field %q of %s: %w", k, table, err)
		}
		sets = append(sets, f.column+" = ?")
		args = append(args, v)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, updatedAt)
	return strings.Join(sets, ", "), args, nil
}

func encodeField(kind fieldKind, v any) (any, error) {
	switch kind {
	case kindText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case kindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int64(n), nil
		case json.Number:
			return n.Int64()
		}
		return nil, fmt.Errorf("expected integer, got %T", v)
	case kindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return boolToInt(b), nil
	case kindJSON:
		if v == nil {
			return "", nil
		}
		return encodeJSON(v)
	}
	return nil, fmt.Errorf("unknown field kind %d", kind)
}
