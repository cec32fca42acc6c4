package dataprocessing

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"cementqa/pkg/contracts/domain"
)

// ErrUnreadableWorkbook is returned when the input is not a readable xlsx document
var ErrUnreadableWorkbook = errors.New("unreadable workbook")

// Workbook is the header and data rows of an uploaded sheet.
type Workbook struct {
	Sheet       string
	Columns     []string
	Rows        [][]any
	BlankRows   int
	SerialDates int
}

// ParseFile opens an xlsx file from disk and parses its first sheet.
func ParseFile(filePath string) ([]string, [][]any, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	wb, err := readFirstSheet(f)
	if err != nil {
		return nil, nil, err
	}
	return wb.Columns, wb.Rows, nil
}

// ParseWorkbook reads an xlsx document from r and returns the header row and
// the data rows of its first sheet.
func ParseWorkbook(r io.Reader) ([]string, [][]any, error) {
	wb, err := ReadWorkbook(r)
	if err != nil {
		return nil, nil, err
	}
	return wb.Columns, wb.Rows, nil
}

// ReadWorkbook is ParseWorkbook with parse statistics.
func ReadWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	return readFirstSheet(f)
}

func readFirstSheet(f *excelize.File) (*Workbook, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets", ErrUnreadableWorkbook)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	wb := &Workbook{Sheet: sheet}
	if len(rows) == 0 {
		return wb, nil
	}

	wb.Columns = header(rows[0])
	for _, row := range rows[1:] {
		if blank(row) {
			wb.BlankRows++
			continue
		}
		cells := make([]any, len(row))
		for i, c := range row {
			cells[i] = c
		}
		if len(row) > 0 {
			if t, ok := serialDate(row[0], date1904); ok {
				cells[0] = t
				wb.SerialDates++
			}
		}
		wb.Rows = append(wb.Rows, cells)
	}
	return wb, nil
}

// header drops trailing empty cells. Interior names are kept verbatim so the
// schema check sees the exact spelling.
func header(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	out := make([]string, end)
	copy(out, row[:end])
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// serialDate converts an Excel date serial such as "45306" into a date.
// Serials below 1 and fractional-only values are not dates.
func serialDate(cell string, date1904 bool) (domain.Date, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return domain.Date{}, false
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || v < 1 {
		return domain.Date{}, false
	}
	t, err := excelize.ExcelDateToTime(v, date1904)
	if err != nil {
		return domain.Date{}, false
	}
	return domain.DateOf(t), true
}
