package ocr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Columns is the OCR service's column-oriented table: column name to
// row-index-string to cell text. Order keeps the column order of the JSON
// document.
type Columns struct {
	Order []string
	Cells map[string]map[string]string
}

// NewColumns builds Columns from ordered column names and their cells
func NewColumns(order []string, cells map[string]map[string]string) *Columns {
	return &Columns{Order: order, Cells: cells}
}

// Cell returns the value at (column, row) or "" for holes
func (c *Columns) Cell(column string, row int) string {
	return c.Cells[column][strconv.Itoa(row)]
}

// RowCount is the smallest row-index cardinality across columns, so a ragged
// response never yields rows past the shortest column.
func (c *Columns) RowCount() int {
	if len(c.Order) == 0 {
		return 0
	}
	n := -1
	for _, col := range c.Order {
		if l := len(c.Cells[col]); n < 0 || l < n {
			n = l
		}
	}
	return n
}

// UnmarshalJSON decodes the column object while recording key order.
// Numbers are kept in their literal form and null becomes "".
func (c *Columns) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	c.Order = nil
	c.Cells = make(map[string]map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading column name: %w", err)
		}
		column, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected column key %v", tok)
		}

		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding column %q: %w", column, err)
		}

		cells := make(map[string]string, len(raw))
		for idx, v := range raw {
			switch val := v.(type) {
			case nil:
				cells[idx] = ""
			case string:
				cells[idx] = val
			case json.Number:
				cells[idx] = val.String()
			default:
				return fmt.Errorf("column %q row %s: unsupported cell value %v", column, idx, v)
			}
		}

		if _, seen := c.Cells[column]; !seen {
			c.Order = append(c.Order, column)
		}
		c.Cells[column] = cells
	}

	return expectDelim(dec, '}')
}

// MarshalJSON writes the columns back in their original order
func (c Columns) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range c.Order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Cells[col])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
