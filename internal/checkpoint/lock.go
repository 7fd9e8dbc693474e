package checkpoint

import (
	"fmt"

	"github.com/book-expert/narrator/internal/core"
	"github.com/gofrs/flock"
)

const lockSuffix = ".lock"

// Lock is an exclusive, non-blocking advisory lock on a checkpoint.
type Lock struct {
	flock *flock.Flock
}

// AcquireLock takes the lock for the checkpoint at path. It fails with
// ErrLocked instead of waiting when another run holds it.
func AcquireLock(path string) (*Lock, error) {
	fileLock := flock.New(path + lockSuffix)

	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, core.NewPersistenceError("lock", fileLock.Path(), err)
	}

	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, fileLock.Path())
	}

	return &Lock{flock: fileLock}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.flock.Path()
}

// Release unlocks the checkpoint. The lock file stays on disk: removing it
// would let a run that opened the old file and a run that creates a new one
// both hold "the" lock.
func (l *Lock) Release() error {
	err := l.flock.Unlock()
	if err != nil {
		return core.NewPersistenceError("unlock", l.flock.Path(), err)
	}

	return nil
}
