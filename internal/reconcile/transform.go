// Package reconcile turns OCR column output into an editable row table
package reconcile

import "github.com/zombor/ledger-sense/internal/ocr"

// Row is one extracted ledger line keyed by column name
type Row map[string]string

func (r Row) clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ToRows transposes column-oriented OCR output into rows. The shortest column
// decides the row count and missing cells become "".
func ToRows(cols *ocr.Columns) []Row {
	if cols == nil {
		return nil
	}
	n := cols.RowCount()
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		row := make(Row, len(cols.Order))
		for _, col := range cols.Order {
			row[col] = cols.Cell(col, i)
		}
		rows[i] = row
	}
	return rows
}
