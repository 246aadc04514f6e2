// Package lockfile guards the data directory with a cross-process file
// lock so two quarry processes never write the same index.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock wraps gofrs/flock with explicit state tracking.
// Works on all platforms (Unix, Linux, macOS, Windows).
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock at path. The file is created on first acquire.
func New(path string) *Lock {
	return &Lock{
		path:  path,
		flock: flock.New(path),
	}
}

// TryAcquire attempts to take the exclusive lock without blocking.
// Returns false when another process holds it.
func (l *Lock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Release releases the lock. Safe to call on an unlocked Lock.
func (l *Lock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false

	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}
