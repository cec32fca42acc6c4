package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cementqa/pkg/contracts/domain"
)

const (
	// CSVFileName is the download name of the CSV export
	CSVFileName = "cement_quality.csv"
	// SummaryFileName is the download name of the statistics export
	SummaryFileName = "cement_quality_statistics.csv"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteRows writes a header and records to w.
func WriteRows(w io.Writer, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSV writes the table as CSV with the schema header.
func WriteCSV(w io.Writer, table domain.Table) error {
	records := make([][]string, 0, table.Len())
	for _, rec := range table.Records() {
		cells := rec.Cells()
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = cellText(c)
		}
		records = append(records, row)
	}
	return WriteRows(w, WriteOptions{
		Headers:   table.Columns,
		Records:   records,
		BOMPrefix: true,
	})
}

// SummaryHeaders is the header row of a statistics export
var SummaryHeaders = []string{"field", "count", "mean", "std", "min", "25%", "50%", "75%", "max"}

// WriteSummaryCSV writes one row of descriptive statistics per numeric field.
func WriteSummaryCSV(w io.Writer, desc domain.Description) error {
	records := make([][]string, 0, len(desc.Fields))
	for _, f := range desc.Fields {
		records = append(records, []string{
			f.Field,
			fmt.Sprint(f.Count),
			formatNumber(f.Mean),
			formatNumber(f.Std),
			formatNumber(f.Min),
			formatNumber(f.Q25),
			formatNumber(f.Q50),
			formatNumber(f.Q75),
			formatNumber(f.Max),
		})
	}
	return WriteRows(w, WriteOptions{
		Headers:   SummaryHeaders,
		Records:   records,
		BOMPrefix: true,
	})
}

// WriteFile creates path, including missing parent directories, and fills it
// using write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
