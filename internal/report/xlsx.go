package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes one worksheet per table to w.
func WriteXLSX(w io.Writer, tables []Table) error {
	f, err := buildWorkbook(tables)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// SaveXLSX writes the workbook to path.
func SaveXLSX(path string, tables []Table) error {
	f, err := buildWorkbook(tables)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func buildWorkbook(tables []Table) (*excelize.File, error) {
	f := excelize.NewFile()
	defaultSheet := f.GetSheetName(0)

	for i, t := range tables {
		sheet := t.Name
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				f.Close()
				return nil, fmt.Errorf("renaming sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("creating sheet %s: %w", sheet, err)
		}
		if err := writeTable(f, sheet, t); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeTable(f *excelize.File, sheet string, t Table) error {
	header := make([]any, 0, len(t.Periods)+1)
	for _, h := range t.Header() {
		header = append(header, h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range t.Rows {
		row := make([]any, 0, len(r.Values)+1)
		row = append(row, r.Label)
		for _, v := range r.Values {
			row = append(row, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return nil
}
