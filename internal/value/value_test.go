package value

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nhle/workera/internal/model"
)

func statusColumn() model.Column {
	return model.Column{
		ID:   "col-status",
		Type: model.ColumnStatus,
		Options: []model.Option{
			{ID: "opt-working", Label: "Working on it"},
			{ID: "opt-done", Label: "Done"},
		},
	}
}

func dropdownColumn() model.Column {
	return model.Column{
		ID:   "col-tags",
		Type: model.ColumnDropdown,
		Options: []model.Option{
			{ID: "opt-a", Label: "Alpha"},
			{ID: "opt-b", Label: "Beta"},
		},
	}
}

func TestNormalizeStatusAcceptsIDLabelAndRef(t *testing.T) {
	col := statusColumn()
	ref, _ := json.Marshal(ByLabel("Done"))

	cases := map[string]json.RawMessage{
		"id":    json.RawMessage(`"opt-done"`),
		"label": json.RawMessage(`"Done"`),
		"ref":   ref,
	}
	for name, raw := range cases {
		got, err := Normalize(col, raw)
		if err != nil {
			t.Fatalf("%s: normalize: %v", name, err)
		}
		if string(got) != `"opt-done"` {
			t.Fatalf("%s: expected stored id, got %s", name, got)
		}
	}
}

func TestNormalizeStatusRejectsUnknownOption(t *testing.T) {
	_, err := Normalize(statusColumn(), json.RawMessage(`"Blocked"`))
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}

	ref, _ := json.Marshal(ByID("Done"))
	if _, err := Normalize(statusColumn(), ref); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("an id reference must not match by label, got %v", err)
	}
}

func TestNormalizeDropdownResolvesEachElement(t *testing.T) {
	col := dropdownColumn()
	got, err := Normalize(col, json.RawMessage(`["Beta", {"kind":"id","value":"opt-a"}, "opt-b"]`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if string(got) != `["opt-b","opt-a"]` {
		t.Fatalf("expected deduplicated ids, got %s", got)
	}

	single, err := Normalize(col, json.RawMessage(`"Alpha"`))
	if err != nil {
		t.Fatalf("normalize single: %v", err)
	}
	if string(single) != `["opt-a"]` {
		t.Fatalf("expected single selection array, got %s", single)
	}
}

func TestNormalizeNullClears(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage(""), json.RawMessage(" null ")} {
		got, err := Normalize(statusColumn(), raw)
		if err != nil {
			t.Fatalf("normalize %q: %v", raw, err)
		}
		if !IsNull(got) {
			t.Fatalf("expected null, got %s", got)
		}
	}
}

func TestNormalizeLegacyReportsChange(t *testing.T) {
	col := statusColumn()
	_, changed, err := NormalizeLegacy(col, json.RawMessage(`"Working on it"`))
	if err != nil {
		t.Fatalf("normalize legacy: %v", err)
	}
	if !changed {
		t.Fatal("expected label value to be rewritten")
	}
	_, changed, err = NormalizeLegacy(col, json.RawMessage(`"opt-working"`))
	if err != nil {
		t.Fatalf("normalize legacy: %v", err)
	}
	if changed {
		t.Fatal("expected id value to be left alone")
	}
}

func TestValidatePerColumnType(t *testing.T) {
	tests := []struct {
		name  string
		typ   model.ColumnType
		raw   string
		valid bool
	}{
		{"text", model.ColumnText, `"hello"`, true},
		{"text number", model.ColumnText, `12`, false},
		{"number", model.ColumnNumber, `12.5`, true},
		{"number string", model.ColumnNumber, `"12"`, false},
		{"checkbox", model.ColumnCheckbox, `true`, true},
		{"date", model.ColumnDate, `"2024-05-01"`, true},
		{"date bad", model.ColumnDate, `"May 1st"`, false},
		{"link", model.ColumnLink, `{"url":"https://example.com","text":"site"}`, true},
		{"link missing url", model.ColumnLink, `{"text":"site"}`, false},
		{"people", model.ColumnPeople, `["7f1c1b1e-3f57-4c43-9a43-3c5a1cfb8f11"]`, true},
		{"people bad id", model.ColumnPeople, `["bob"]`, false},
		{"timeline", model.ColumnTimeline, `{"from":"2024-05-01","to":"2024-05-09"}`, true},
		{"timeline partial", model.ColumnTimeline, `{"from":"2024-05-01"}`, false},
		{"files", model.ColumnFiles, `[{"id":"f1","name":"a.pdf","url":"https://x/a.pdf","size":10}]`, true},
		{"files negative size", model.ColumnFiles, `[{"id":"f1","name":"a.pdf","url":"u","size":-1}]`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(model.Column{ID: "c", Type: tc.typ}, json.RawMessage(tc.raw))
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidValue) {
				t.Fatalf("expected ErrInvalidValue, got %v", err)
			}
		})
	}
}

func TestDefaultStatusOptionsAreFresh(t *testing.T) {
	a, b := DefaultStatusOptions(), DefaultStatusOptions()
	if len(a) != 4 {
		t.Fatalf("expected 4 default options, got %d", len(a))
	}
	if a[0].ID == b[0].ID {
		t.Fatal("expected each call to generate new option ids")
	}
	if a[2].Label != "Done" {
		t.Fatalf("unexpected option order: %+v", a)
	}
}
