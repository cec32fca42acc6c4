package testutil

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"cementqa/pkg/contracts/domain"
)

// SchemaHeader returns the fixed schema as a header row
func SchemaHeader() []any {
	cols := domain.Schema()
	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	return row
}

// MeasurementRow builds a data row: date, silo, researcher and the leading
// numeric values in schema order.
func MeasurementRow(date any, silo, researcher string, values ...any) []any {
	row := []any{date, silo, researcher}
	return append(row, values...)
}

// WorkbookBytes writes rows to the first sheet of a new workbook and returns
// the xlsx document.
func WorkbookBytes(t testing.TB, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

// SchemaWorkbook is WorkbookBytes with the schema header prepended
func SchemaWorkbook(t testing.TB, rows ...[]any) []byte {
	t.Helper()
	return WorkbookBytes(t, append([][]any{SchemaHeader()}, rows...)...)
}
