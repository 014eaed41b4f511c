package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one <section>.json file per logical table in a data
// directory. It is the default backend when no external store is configured.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(section string) string {
	return filepath.Join(f.dir, section+".json")
}

func (f *FileStore) Save(section string, data []byte) error {
	// Write-then-rename so a crash mid-save never leaves a truncated section.
	tmp := f.path(section) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", section, err)
	}
	if err := os.Rename(tmp, f.path(section)); err != nil {
		return fmt.Errorf("rename %s: %w", section, err)
	}
	return nil
}

func (f *FileStore) Load(section string) ([]byte, error) {
	data, err := os.ReadFile(f.path(section))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", section, err)
	}
	return data, nil
}

func (f *FileStore) Close() error {
	return nil
}
