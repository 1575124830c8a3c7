// Package runlock keeps two workflow runs from overlapping, across processes.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another run holds the lock
var ErrHeld = errors.New("another run is in progress")

// FileName is the lock file created inside the archive directory
const FileName = ".autopost.lock"

// Lock is an exclusive, non-blocking file lock
type Lock struct {
	path string
	lock *flock.Flock
}

// New creates a lock file handle in dir
func New(dir string) *Lock {
	path := filepath.Join(dir, FileName)
	return &Lock{path: path, lock: flock.New(path)}
}

// Path returns the lock file path
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock or fails with ErrHeld
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrHeld, l.path)
	}
	return nil
}

// Release drops the lock
func (l *Lock) Release() error {
	return l.lock.Unlock()
}
