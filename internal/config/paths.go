package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the file system locations resolved against the executable
type Paths struct {
	ExecutableDir string
	LogsDir       string
	ExportsDir    string
	ConfigFile    string
}

// GetPaths returns the application paths relative to the executable location
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	// Resolve symlinks to get the actual executable location
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}

	return NewPaths(filepath.Dir(exe)), nil
}

// NewPaths lays out the application paths under base
func NewPaths(base string) *Paths {
	return &Paths{
		ExecutableDir: base,
		LogsDir:       filepath.Join(base, DefaultLogsDir),
		ExportsDir:    filepath.Join(base, DefaultExportsDir),
		ConfigFile:    filepath.Join(base, ConfigFileName),
	}
}

// ExportPath returns the path of an export file name
func (p *Paths) ExportPath(name string) string {
	return filepath.Join(p.ExportsDir, filepath.Base(name))
}
