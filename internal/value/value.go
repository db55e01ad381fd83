// Package value defines the value contract of each column type and the
// normalization of status and dropdown option references.
//
// Status and dropdown values reach the engine either as option ids, as
// option labels (legacy data), or as tagged references. They are always
// stored as option ids: a status value is one id string, a dropdown value
// an array of id strings. Legacy label-based values found on load are
// rewritten to ids by the self-healing pass and persisted back.
package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nhle/workera/internal/model"
)

// ErrInvalidValue is returned when a value does not match its column type.
var ErrInvalidValue = errors.New("invalid value")

// Reference kinds of an OptionRef.
const (
	RefID    = "id"
	RefLabel = "label"
)

// OptionRef is the boundary representation of a status or dropdown option.
type OptionRef struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// ByID returns a reference to the option with the given id.
func ByID(id string) OptionRef { return OptionRef{Kind: RefID, Value: id} }

// ByLabel returns a reference to the option with the given label.
func ByLabel(label string) OptionRef { return OptionRef{Kind: RefLabel, Value: label} }

// Null is the JSON value that clears a cell.
var Null = json.RawMessage("null")

// IsNull reports whether raw is empty or the JSON null literal.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, Null)
}

// Equal reports whether two JSON values are byte-equal after compaction.
func Equal(a, b json.RawMessage) bool {
	if IsNull(a) && IsNull(b) {
		return true
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// Normalize resolves option references and validates raw against the
// column's contract. It returns the value in its stored form.
func Normalize(col model.Column, raw json.RawMessage) (json.RawMessage, error) {
	out, _, err := normalize(col, raw)
	return out, err
}

// NormalizeLegacy is Normalize for already-persisted data. It also reports
// whether the stored form differs from raw.
func NormalizeLegacy(col model.Column, raw json.RawMessage) (json.RawMessage, bool, error) {
	return normalize(col, raw)
}

func normalize(col model.Column, raw json.RawMessage) (json.RawMessage, bool, error) {
	if IsNull(raw) {
		return Null, !bytes.Equal(bytes.TrimSpace(raw), Null), nil
	}
	if !json.Valid(raw) {
		return nil, false, fmt.Errorf("%w: malformed json for column %s", ErrInvalidValue, col.ID)
	}

	out := raw
	switch col.Type {
	case model.ColumnStatus:
		id, err := resolveOne(col, raw)
		if err != nil {
			return nil, false, err
		}
		out, _ = json.Marshal(id)
	case model.ColumnDropdown:
		ids, err := resolveMany(col, raw)
		if err != nil {
			return nil, false, err
		}
		out, _ = json.Marshal(ids)
	}

	if err := Validate(col, out); err != nil {
		return nil, false, err
	}
	return out, !Equal(out, raw), nil
}

// Validate checks a stored-form value against the column's schema and, for
// status and dropdown columns, against the column's option ids.
func Validate(col model.Column, raw json.RawMessage) error {
	if IsNull(raw) {
		return nil
	}
	sch, err := schemaFor(col.Type)
	if err != nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w for %s column %s: %v", ErrInvalidValue, col.Type, col.ID, err)
	}

	switch col.Type {
	case model.ColumnStatus:
		var id string
		_ = json.Unmarshal(raw, &id)
		if _, ok := col.OptionByID(id); !ok {
			return fmt.Errorf("%w: unknown option %q for column %s", ErrInvalidValue, id, col.ID)
		}
	case model.ColumnDropdown:
		var ids []string
		_ = json.Unmarshal(raw, &ids)
		for _, id := range ids {
			if _, ok := col.OptionByID(id); !ok {
				return fmt.Errorf("%w: unknown option %q for column %s", ErrInvalidValue, id, col.ID)
			}
		}
	}
	return nil
}

// resolveOne turns a string or OptionRef into an option id.
func resolveOne(col model.Column, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return resolveRef(col, OptionRef{}, s)
	}
	var ref OptionRef
	if err := json.Unmarshal(raw, &ref); err != nil || ref.Value == "" {
		return "", fmt.Errorf("%w: expected option reference for column %s", ErrInvalidValue, col.ID)
	}
	return resolveRef(col, ref, "")
}

func resolveMany(col model.Column, raw json.RawMessage) ([]string, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		// A single reference is accepted as a one-element selection.
		id, err := resolveOne(col, raw)
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	}
	ids := make([]string, 0, len(elems))
	seen := make(map[string]bool, len(elems))
	for _, elem := range elems {
		id, err := resolveOne(col, elem)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// resolveRef resolves an explicit reference, or a bare legacy string which
// is tried as an id first and then as a label.
func resolveRef(col model.Column, ref OptionRef, bare string) (string, error) {
	switch {
	case bare != "":
		if o, ok := col.OptionByID(bare); ok {
			return o.ID, nil
		}
		if o, ok := col.OptionByLabel(bare); ok {
			return o.ID, nil
		}
		return "", fmt.Errorf("%w: no option %q in column %s", ErrInvalidValue, bare, col.ID)
	case ref.Kind == RefID:
		if o, ok := col.OptionByID(ref.Value); ok {
			return o.ID, nil
		}
	case ref.Kind == RefLabel:
		if o, ok := col.OptionByLabel(ref.Value); ok {
			return o.ID, nil
		}
	default:
		return "", fmt.Errorf("%w: unknown reference kind %q", ErrInvalidValue, ref.Kind)
	}
	return "", fmt.Errorf("%w: no option %s=%q in column %s", ErrInvalidValue, ref.Kind, ref.Value, col.ID)
}

// Status colors used by the default options.
const (
	ColorOrange = "#fdab3d"
	ColorRed    = "#e2445c"
	ColorGreen  = "#00c875"
	ColorGrey   = "#c4c4c4"
)

// DefaultStatusOptions returns fresh options for a new status column.
func DefaultStatusOptions() []model.Option {
	return []model.Option{
		{ID: model.NewID(), Label: "Working on it", Color: ColorOrange},
		{ID: model.NewID(), Label: "Stuck", Color: ColorRed},
		{ID: model.NewID(), Label: "Done", Color: ColorGreen},
		{ID: model.NewID(), Label: "Not started", Color: ColorGrey},
	}
}

// DefaultDropdownOptions returns fresh options for a new dropdown column.
func DefaultDropdownOptions() []model.Option {
	return []model.Option{
		{ID: model.NewID(), Label: "Option 1", Color: ColorGrey},
		{ID: model.NewID(), Label: "Option 2", Color: ColorGrey},
	}
}
