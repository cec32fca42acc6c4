// Command xlsxstats reads measurement workbooks from disk, appends them in
// order to one store and writes the descriptive statistics (and optionally
// the combined table) as CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"cementqa/internal/config"
	"cementqa/internal/dataprocessing"
	"cementqa/internal/exporter"
	"cementqa/internal/files"
	"cementqa/internal/infrastructure"
	"cementqa/internal/measurement"
	"cementqa/internal/validation"
)

// options are the command-line flags
type options struct {
	Dir      string
	Files    []string
	Out      string
	Table    string
	Workers  int
	MaxBytes int64 // per workbook, same limit as server uploads
}

// sheet is one parsed workbook
type sheet struct {
	path    string
	columns []string
	rows    [][]any
}

func main() {
	dir := flag.String("dir", "", "directory of .xlsx workbooks (all are read, sorted by name)")
	out := flag.String("out", "", "statistics csv path (defaults to exports/"+exporter.SummaryFileName+")")
	table := flag.String("table", "", "optional csv path for the combined table")
	workers := flag.Int("workers", runtime.NumCPU(), "workbooks parsed in parallel")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	opts := options{
		Dir:      *dir,
		Files:    flag.Args(),
		Out:      *out,
		Table:    *table,
		Workers:  *workers,
		MaxBytes: cfg.Store.MaxUploadBytes,
	}
	if opts.Out == "" {
		paths, err := config.GetPaths()
		if err != nil {
			logger.Error("Failed to resolve paths", slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts.Out = paths.ExportPath(exporter.SummaryFileName)
	}

	if err := run(context.Background(), opts, logger); err != nil {
		logger.Error("xlsxstats failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	workbooks, err := collectFiles(opts.Dir, opts.Files)
	if err != nil {
		return err
	}
	if len(workbooks) == 0 {
		return fmt.Errorf("no .xlsx workbooks given")
	}
	logger.Info("Reading workbooks",
		slog.Int("files", len(workbooks)),
		slog.Int("workers", opts.Workers))

	validator := validation.NewFileValidator(logger, opts.MaxBytes)
	sheets, err := parseAll(ctx, validator, workbooks, opts.Workers)
	if err != nil {
		return err
	}

	store := measurement.NewStore()
	for _, s := range sheets {
		added, err := store.AppendBulk(s.columns, s.rows)
		if err != nil {
			return fmt.Errorf("%s: %w", s.path, err)
		}
		logger.Info("Workbook appended",
			slog.String("file", filepath.Base(s.path)),
			slog.Int("rows", len(added)))
	}

	desc := store.Describe()
	if err := exporter.WriteFile(opts.Out, func(w io.Writer) error {
		return exporter.WriteSummaryCSV(w, desc)
	}); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	logger.Info("Statistics written",
		slog.String("path", opts.Out),
		slog.Int("records", desc.Rows))

	if opts.Table != "" {
		t := store.Table()
		if err := exporter.WriteFile(opts.Table, func(w io.Writer) error {
			return exporter.WriteCSV(w, t)
		}); err != nil {
			return fmt.Errorf("write table: %w", err)
		}
		logger.Info("Table written", slog.String("path", opts.Table), slog.Int("records", t.Len()))
	}
	return nil
}

// collectFiles returns the explicit files followed by the workbooks of dir
// in name order.
func collectFiles(dir string, explicit []string) ([]string, error) {
	paths := append([]string(nil), explicit...)
	if dir == "" {
		return paths, nil
	}

	found, err := files.NewDiscovery("").FindWorkbooks(dir)
	if err != nil {
		return nil, err
	}
	return append(paths, files.Paths(found)...), nil
}

// parseAll parses paths concurrently and returns them in input order.
func parseAll(ctx context.Context, validator *validation.FileValidator, paths []string, workers int) ([]sheet, error) {
	sheets := make([]sheet, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := validator.ValidateExcelFile(path); err != nil {
				return err
			}
			columns, rows, err := dataprocessing.ParseFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := measurement.CheckSchema(columns); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			sheets[i] = sheet{path: path, columns: columns, rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sheets, nil
}
