package artifact

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// WriteWorkbook saves tables as sheets of one xlsx file, in order. Numeric
// cells are stored as numbers.
func WriteWorkbook(path string, tables ...*Table) (err error) {
	if len(tables) == 0 {
		return errors.New("artifact: workbook needs at least one table")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("artifact: close workbook: %w", cerr)
		}
	}()

	for i, t := range tables {
		sheet := sheetName(t.Name, i)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("artifact: rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("artifact: add sheet %s: %w", sheet, err)
		}
		if err := writeSheet(f, sheet, t); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("artifact: save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t *Table) error {
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("artifact: write %s header: %w", sheet, err)
	}
	for r, row := range t.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = typed(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("artifact: %s row %d: %w", sheet, r, err)
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("artifact: write %s row %d: %w", sheet, r, err)
		}
	}
	return nil
}

func typed(v string) any {
	// ParseFloat accepts "NaN" and "Inf"; those stay text
	if n, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return n
	}
	return v
}

func sheetName(name string, i int) string {
	if name == "" {
		name = "Sheet" + strconv.Itoa(i+1)
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}
