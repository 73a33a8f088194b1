package reconcile

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zombor/ledger-sense/internal/ocr"
)

var (
	ErrRowOutOfRange = errors.New("row index out of range")
	ErrUnknownColumn = errors.New("unknown column")
)

// Table is the editable grid a user reviews before commit. It keeps no undo
// history and does no validation; Commit validates.
type Table struct {
	mu      sync.Mutex
	columns []string
	rows    []Row
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{}
}

// Replace swaps the whole table for the rows of cols. The latest successful
// OCR response wins; results are not appended across files.
func (t *Table) Replace(cols *ocr.Columns) {
	rows := ToRows(cols)
	var order []string
	if cols != nil {
		order = append(order, cols.Order...)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.columns = order
	t.rows = rows
}

// Clear empties the table
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.columns = nil
	t.rows = nil
}

// EditCell sets one cell. Only the touched row is rebuilt; rows already
// handed out by Rows are never mutated.
func (t *Table) EditCell(rowIndex int, column, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rowIndex < 0 || rowIndex >= len(t.rows) {
		return fmt.Errorf("editing row %d: %w", rowIndex, ErrRowOutOfRange)
	}
	if !t.hasColumn(column) {
		return fmt.Errorf("editing %q: %w", column, ErrUnknownColumn)
	}

	row := t.rows[rowIndex].clone()
	row[column] = value
	rows := make([]Row, len(t.rows))
	copy(rows, t.rows)
	rows[rowIndex] = row
	t.rows = rows
	return nil
}

// AppendRow adds a manually entered row. Cells for new columns extend the
// column set; missing cells are "".
func (t *Table) AppendRow(cells map[string]string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for col := range cells {
		if !t.hasColumn(col) {
			t.columns = append(t.columns, col)
			for i, r := range t.rows {
				nr := r.clone()
				nr[col] = ""
				t.rows[i] = nr
			}
		}
	}

	row := make(Row, len(t.columns))
	for _, col := range t.columns {
		row[col] = cells[col]
	}
	rows := make([]Row, len(t.rows), len(t.rows)+1)
	copy(rows, t.rows)
	t.rows = append(rows, row)
	return len(t.rows) - 1
}

func (t *Table) hasColumn(column string) bool {
	for _, c := range t.columns {
		if c == column {
			return true
		}
	}
	return false
}

// Rows returns a fresh copy of the current rows on every call
func (t *Table) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.clone()
	}
	return out
}

// Columns returns the column order
func (t *Table) Columns() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}
