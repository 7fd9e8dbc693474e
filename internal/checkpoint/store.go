package checkpoint

import (
	"errors"
	"fmt"
	"os"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/fsutil"
)

// Store persists the checkpoint of a single output.
type Store interface {
	// Load returns ErrNotFound when no checkpoint exists.
	Load() (*Checkpoint, error)
	// Save replaces the stored checkpoint atomically and returns its size.
	Save(cp *Checkpoint) (int64, error)
	// Delete returns nil when nothing is stored.
	Delete() error
	Path() string
}

// FileStore keeps the checkpoint in a JSON sidecar file next to the output.
type FileStore struct {
	path string
}

// NewFileStore creates a store for the checkpoint at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty checkpoint path", core.ErrInvalidArgument)
	}

	return &FileStore{path: path}, nil
}

// Path returns the checkpoint file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the checkpoint file.
func (s *FileStore) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, core.NewPersistenceError("read", s.path, err)
	}

	cp, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	return cp, nil
}

// Save writes the checkpoint through a temp file and a rename, so a crash
// leaves either the previous or the new checkpoint on disk.
func (s *FileStore) Save(cp *Checkpoint) (int64, error) {
	data, err := cp.Marshal()
	if err != nil {
		return 0, core.NewPersistenceError("encode", s.path, err)
	}

	err = fsutil.WriteFileAtomic(s.path, data)
	if err != nil {
		return 0, core.NewPersistenceError("write", s.path, err)
	}

	return int64(len(data)), nil
}

// Delete removes the checkpoint file.
func (s *FileStore) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return core.NewPersistenceError("delete", s.path, err)
	}

	return nil
}
