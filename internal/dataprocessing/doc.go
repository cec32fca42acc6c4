// Package dataprocessing reads measurement workbooks uploaded by the
// laboratory.
//
// Only the first sheet is read. Its first row is the header and every
// following non-blank row is one measurement. Cells are returned as raw
// values so the numeric normalization in package measurement sees exactly
// what was typed; date cells stored as Excel serials are converted to
// time.Time.
//
// Basic usage:
//
//	columns, rows, err := dataprocessing.ParseFile("qc_januari.xlsx")
//	if err != nil {
//	    return err
//	}
//	records, err := store.AppendBulk(columns, rows)
package dataprocessing
