package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local implements Archive on the local filesystem. All paths resolve
// relative to the configured root directory.
type Local struct {
	root string
}

// NewLocal creates a Local archive rooted at dir, creating it (with
// parents) if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

func (l *Local) resolve(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

// Save writes the object to disk, creating parent directories as needed.
func (l *Local) Save(_ context.Context, path string, r io.Reader) error {
	full := l.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.Create(full)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return fmt.Errorf("archive: save %s: %w", path, err)
	}
	return f.Close()
}

// Open opens the object for reading.
func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(l.resolve(path))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Remove deletes the object; a missing object is not an error.
func (l *Local) Remove(_ context.Context, path string) error {
	err := os.Remove(l.resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

var _ Archive = (*Local)(nil)
