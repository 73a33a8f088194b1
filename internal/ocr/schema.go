package ocr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidResponse marks OCR bodies that do not match the column contract
var ErrInvalidResponse = errors.New("invalid OCR response")

// columnsSchema describes {column: {rowIndex: cell}}. Row indexes are
// non-negative integers rendered as strings. An empty object is a page with
// no rows.
var columnsSchema = map[string]any{
	"type": "object",
	"additionalProperties": map[string]any{
		"type": "object",
		"propertyNames": map[string]any{
			"pattern": `^(0|[1-9][0-9]*)$`,
		},
		"additionalProperties": map[string]any{
			"type": []string{"string", "number", "null"},
		},
	},
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(columnsSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("columns.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("columns.json")
	})
	return compiledSchema, compileErr
}

// ParseColumns validates body against the column contract and decodes it
func ParseColumns(body []byte) (*Columns, error) {
	s, err := schema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, firstLine(err.Error()))
	}

	var cols Columns
	if err := json.Unmarshal(body, &cols); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &cols, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
