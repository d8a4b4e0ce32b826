package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vbonduro/inventory/internal/domain"
)

// Persister loads and saves the complete record collection.
type Persister interface {
	Load() ([]domain.Item, error)
	Save(items []domain.Item) error
}

// JSONFilePersister keeps the collection as one JSON array in a single file.
type JSONFilePersister struct {
	path string
}

func NewJSONFilePersister(path string) *JSONFilePersister {
	return &JSONFilePersister{path: path}
}

func (p *JSONFilePersister) Path() string {
	return p.path
}

// Load returns (nil, nil) when the file does not exist yet. A file that
// exists but does not hold a JSON array of records yields ErrCorruptState.
func (p *JSONFilePersister) Load() ([]domain.Item, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var items []domain.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptState, p.path, err)
	}
	return items, nil
}

// Save replaces the file atomically: the array is written to a temp file in
// the same directory, synced, then renamed over the target.
func (p *JSONFilePersister) Save(items []domain.Item) error {
	if items == nil {
		items = []domain.Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
