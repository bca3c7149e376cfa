// Package storage manages the per-feeder output directory. The directory's
// contents are the only persisted state of a run: rescanning it yields the
// downloaded set, which doubles as the resume checkpoint.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"icafetch/pkg/archive"
	"icafetch/pkg/feeders"
)

const outputExt = ".csv"

// Manager handles output file operations for feeder tables
type Manager struct {
	outputDir string
}

// NewManager creates a storage manager rooted at outputDir, creating the
// directory if needed
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{outputDir: outputDir}, nil
}

// Scan returns the set of feeder identifiers that already have an output
// file. It reads the filesystem every time rather than caching, so the
// result reflects restarts and manual file deletions.
func (m *Manager) Scan() (feeders.Set, error) {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	downloaded := make(feeders.Set)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, outputExt) {
			continue
		}
		downloaded.Add(strings.TrimSuffix(name, outputExt))
	}

	return downloaded, nil
}

// IsDownloaded checks whether an output file exists for the feeder
func (m *Manager) IsDownloaded(id string) bool {
	_, err := os.Stat(m.OutputPath(id))
	return err == nil
}

// OutputPath returns the output file path for a feeder identifier
func (m *Manager) OutputPath(id string) string {
	return filepath.Join(m.outputDir, id+outputExt)
}

// SaveTable writes a feeder's table to <id>.csv. The write goes to a temp
// file first and is renamed into place, so an interrupted save never leaves
// a truncated output behind.
func (m *Manager) SaveTable(table *archive.Table, id string) error {
	filename := m.OutputPath(id)
	tempFile := filename + ".tmp"

	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	err = table.WriteCSV(out)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write table: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}
