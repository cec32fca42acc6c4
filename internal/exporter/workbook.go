package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"cementqa/pkg/contracts/domain"
)

const (
	// WorkbookFileName is the download name of the xlsx export
	WorkbookFileName = "cement_quality.xlsx"
	// SheetName is the only sheet of the xlsx export
	SheetName = "Data"
)

// WriteWorkbook writes the table as an xlsx document to w.
func WriteWorkbook(w io.Writer, table domain.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]any, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, rec := range table.Records() {
		cells := rec.Cells()
		row := make([]any, len(cells))
		for j, c := range cells {
			row[j] = cellValue(c)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
