package value

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nhle/workera/internal/model"
)

// schemaDocs holds the JSON schema of each column type's stored value.
// Status and dropdown schemas only describe the stored shape; option
// membership is checked separately against the column.
var schemaDocs = map[model.ColumnType]string{
	model.ColumnText:     `{"type":"string","maxLength":2000}`,
	model.ColumnLongText: `{"type":"string","maxLength":100000}`,
	model.ColumnStatus:   `{"type":"string","minLength":1}`,
	model.ColumnDate:     `{"type":"string","format":"date"}`,
	model.ColumnNumber:   `{"type":"number"}`,
	model.ColumnDropdown: `{"type":"array","items":{"type":"string","minLength":1},"uniqueItems":true}`,
	model.ColumnCheckbox: `{"type":"boolean"}`,
	model.ColumnLink: `{
		"type":"object",
		"required":["url"],
		"properties":{"url":{"type":"string","format":"uri"},"text":{"type":"string"}},
		"additionalProperties":false
	}`,
	model.ColumnPeople: `{"type":"array","items":{"type":"string","format":"uuid"},"uniqueItems":true}`,
	model.ColumnTimeline: `{
		"type":"object",
		"required":["from","to"],
		"properties":{"from":{"type":"string","format":"date"},"to":{"type":"string","format":"date"}},
		"additionalProperties":false
	}`,
	model.ColumnFiles: `{
		"type":"array",
		"items":{
			"type":"object",
			"required":["id","name","url"],
			"properties":{
				"id":{"type":"string"},
				"name":{"type":"string"},
				"url":{"type":"string"},
				"size":{"type":"integer","minimum":0}
			}
		}
	}`,
}

var (
	compileOnce sync.Once
	compiled    map[model.ColumnType]*jsonschema.Schema
	compileErr  error
)

func schemaURL(t model.ColumnType) string {
	return "https://workera.local/values/" + string(t) + ".json"
}

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	for t, doc := range schemaDocs {
		parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
		if err != nil {
			compileErr = fmt.Errorf("parsing %s schema: %w", t, err)
			return
		}
		if err := c.AddResource(schemaURL(t), parsed); err != nil {
			compileErr = fmt.Errorf("adding %s schema: %w", t, err)
			return
		}
	}
	out := make(map[model.ColumnType]*jsonschema.Schema, len(schemaDocs))
	for t := range schemaDocs {
		sch, err := c.Compile(schemaURL(t))
		if err != nil {
			compileErr = fmt.Errorf("compiling %s schema: %w", t, err)
			return
		}
		out[t] = sch
	}
	compiled = out
}

func schemaFor(t model.ColumnType) (*jsonschema.Schema, error) {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return nil, compileErr
	}
	sch, ok := compiled[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown column type %q", ErrInvalidValue, t)
	}
	return sch, nil
}
