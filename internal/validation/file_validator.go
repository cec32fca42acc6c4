package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxUploadBytes bounds the size of an uploaded workbook
const DefaultMaxUploadBytes int64 = 10 << 20

var (
	ErrNotExcel      = errors.New("file is not an xlsx workbook")
	ErrTemporaryFile = errors.New("file is a temporary Excel file")
	ErrFileTooLarge  = errors.New("file exceeds the upload size limit")
	ErrEmptyFile     = errors.New("file is empty")
	ErrCorruptFile   = errors.New("file content is not an xlsx archive")
)

var zipSignature = []byte("PK\x03\x04")

// FileValidator checks workbook files before they are parsed.
type FileValidator struct {
	logger   *slog.Logger
	maxBytes int64
}

// NewFileValidator creates a new file validator. A non-positive maxBytes uses
// DefaultMaxUploadBytes.
func NewFileValidator(logger *slog.Logger, maxBytes int64) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &FileValidator{
		logger:   logger,
		maxBytes: maxBytes,
	}
}

// MaxBytes returns the upload size limit
func (v *FileValidator) MaxBytes() int64 {
	return v.maxBytes
}

// ValidateName checks the extension and rejects Office lock files.
func (v *FileValidator) ValidateName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".xlsx" {
		v.logger.Warn("Rejected upload with wrong extension",
			slog.String("file", name),
			slog.String("extension", ext))
		return fmt.Errorf("%w: %s", ErrNotExcel, name)
	}

	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") {
		v.logger.Warn("Rejected temporary Excel file",
			slog.String("file", name))
		return fmt.Errorf("%w: %s", ErrTemporaryFile, name)
	}
	return nil
}

// ValidateUpload checks name, declared size and content signature of an
// uploaded workbook. The returned reader yields the full content, including
// the bytes consumed for the signature check.
func (v *FileValidator) ValidateUpload(name string, size int64, r io.Reader) (io.Reader, error) {
	if err := v.ValidateName(name); err != nil {
		return nil, err
	}
	if size > v.maxBytes {
		v.logger.Warn("Rejected oversized upload",
			slog.String("file", name),
			slog.Int64("size", size),
			slog.Int64("limit", v.maxBytes))
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, size, v.maxBytes)
	}

	head := make([]byte, len(zipSignature))
	n, err := io.ReadFull(r, head)
	switch {
	case n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, name)
	case err != nil && err != io.ErrUnexpectedEOF:
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if !bytes.Equal(head[:n], zipSignature) {
		v.logger.Warn("Rejected upload with bad signature",
			slog.String("file", name))
		return nil, fmt.Errorf("%w: %s", ErrCorruptFile, name)
	}

	v.logger.Debug("Upload validated",
		slog.String("file", name),
		slog.Int64("size", size))
	return io.MultiReader(bytes.NewReader(head[:n]), io.LimitReader(r, v.maxBytes-int64(n))), nil
}

// ValidateFile checks if a specific file exists and is readable
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist",
			slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		v.logger.Error("Failed to stat file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file",
			slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > v.maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, info.Size(), v.maxBytes)
	}

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateExcelFile checks that path names a readable xlsx workbook on disk.
func (v *FileValidator) ValidateExcelFile(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}
	if err := v.ValidateName(path); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	defer file.Close()

	info, _ := file.Stat()
	_, err = v.ValidateUpload(path, info.Size(), file)
	return err
}
