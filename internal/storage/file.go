package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
)

// FileStore keeps the dataset in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore prepares a store at path, creating its directory.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultFilePath
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create data directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat data directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("data directory %s is not a directory", dir)
	}
	return &FileStore{path: path}, nil
}

// Path is the dataset file location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes to a temp file in the same directory and renames it over the
// target, so readers never see a partial document.
func (s *FileStore) Save(_ context.Context, d dataset.Dataset) error {
	data, err := dataset.Marshal(d)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	// #nosec G302 -- the dataset is public data and is served to other processes.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace dataset file: %w", err)
	}
	tmpName = ""
	return nil
}

// Load reads the dataset file. A missing or blank file is ErrNoDataset.
func (s *FileStore) Load(_ context.Context) (dataset.Dataset, error) {
	// #nosec G304 -- path comes from configuration.
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoDataset
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrNoDataset
	}
	return dataset.Decode(bytes.NewReader(raw))
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
