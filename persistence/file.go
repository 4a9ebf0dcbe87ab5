package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileStore persists one file per document name under dir. Writes go
// through a temp file + rename so a crash mid-write cannot leave a torn
// state on disk; losing the updates since the last debounced flush is
// acceptable, a half-written file is not.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "persistence: create store directory")
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, name+".ycrdt")
}

func (f *FileStore) Fetch(ctx context.Context, name string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "persistence: fetch %q", name)
	}
	return data, true, nil
}

func (f *FileStore) StoreFull(ctx context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	final := f.path(name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "persistence: write temp file for %q", name)
	}
	if err := os.Rename(tmp, final); err != nil {
		return errors.Wrapf(err, "persistence: rename into place for %q", name)
	}
	return nil
}

func (f *FileStore) Append(ctx context.Context, name string, update []byte) error {
	return ErrAppendUnsupported
}
