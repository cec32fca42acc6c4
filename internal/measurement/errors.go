package measurement

import (
	"errors"
	"fmt"
	"strings"
)

// Store errors
var (
	ErrSchemaMismatch  = errors.New("schema mismatch")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrRecordNotFound  = errors.New("record not found")
)

// SchemaMismatchError describes how uploaded columns differ from the fixed schema.
type SchemaMismatchError struct {
	Missing    []string `json:"missing,omitempty"`
	Unexpected []string `json:"unexpected,omitempty"`
	Misordered bool     `json:"misordered,omitempty"`
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected columns: "+strings.Join(e.Unexpected, ", "))
	}
	if e.Misordered {
		parts = append(parts, "columns out of order")
	}
	if len(parts) == 0 {
		return ErrSchemaMismatch.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSchemaMismatch, strings.Join(parts, "; "))
}

// Is lets errors.Is match ErrSchemaMismatch
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// IndexError reports a positional delete outside the store bounds.
type IndexError struct {
	Index  int
	Length int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: index %d, length %d", ErrIndexOutOfRange, e.Index, e.Length)
}

// Is lets errors.Is match ErrIndexOutOfRange
func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}
