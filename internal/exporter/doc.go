// Package exporter writes measurement tables as downloadable files.
//
// Three outputs are supported:
//
// Workbook: a single-sheet xlsx named "Data" with the schema header row and
// one row per record in store order. Dates are YYYY-MM-DD text and missing
// values are blank cells, so the file can be uploaded again unchanged.
//
// CSV: the same content with a UTF-8 BOM for Excel compatibility.
//
// Summary: one CSV row per numeric field with count, mean, std, min,
// quartiles and max, as shown in the statistics table of the dashboard.
//
// Example usage:
//
//	var buf bytes.Buffer
//	if err := exporter.WriteWorkbook(&buf, store.Table()); err != nil {
//	    return err
//	}
package exporter
