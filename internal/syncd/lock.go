package syncd

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Acquire when another process holds the lock.
var ErrLocked = errors.New("another sync daemon is already running")

// FileLock is an advisory flock keeping one daemon per store. The lock
// is released when the holding process exits, so a crashed daemon never
// leaves a stale lock behind.
type FileLock struct {
	path string
	f    *os.File
}

// NewFileLock creates a lock for the file at path. The file is not
// touched until Acquire.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking. A lock held elsewhere
// returns ErrLocked.
func (l *FileLock) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("%w (lock file %s)", ErrLocked, l.path)
	}

	// Leave our pid in the file for debugging; the flock is what
	// enforces exclusion.
	_ = f.Truncate(0)
	fmt.Fprintf(f, "%d\n", os.Getpid())

	l.f = f
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op. The lock
// file itself is left in place; removing it would race with a daemon
// that just opened it.
func (l *FileLock) Release() error {
	if l.f == nil {
		return nil
	}

	flockErr := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()
	l.f = nil

	if flockErr != nil {
		return fmt.Errorf("failed to release lock: %w", flockErr)
	}
	return closeErr
}
