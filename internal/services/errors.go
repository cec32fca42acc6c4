package services

import "errors"

var (
	// ErrUnsupportedExport is returned for an unknown export format
	ErrUnsupportedExport = errors.New("unsupported export format")
	// ErrUnknownChart is returned for a chart kind that does not exist
	ErrUnknownChart = errors.New("unknown chart")
)
