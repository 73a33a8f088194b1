package reconcile

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Ledger"

// WriteXLSX writes the current table as a single-sheet workbook with the
// column names as a header row.
func (t *Table) WriteXLSX(w io.Writer) error {
	columns := t.Columns()
	rows := t.Rows()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, col); err != nil {
			return fmt.Errorf("writing header %q: %w", col, err)
		}
	}

	for r, row := range rows {
		for c, col := range columns {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(exportSheet, cell, row[col]); err != nil {
				return fmt.Errorf("writing row %d: %w", r, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
