//go:build !windows

// Package lockfile implements the application's named mutual-exclusion
// handle as an advisory flock on a well-known file. The installed
// application acquires the handle at startup; the uninstaller probes it to
// refuse uninstalling while the application runs. On Windows the compiled
// installer uses a kernel mutex for the same purpose, so this package only
// backs the portable install path.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned by Acquire when another process holds the handle.
var ErrHeld = errors.New("instance handle already held")

// Lock is an acquired instance handle. Release it before process exit;
// the kernel also drops it when the process dies.
type Lock struct {
	file *os.File
	path string
}

// Path returns the lock file backing the named handle.
func Path(name string) string {
	return filepath.Join(os.TempDir(), name+".lock")
}

// Acquire takes the named handle exclusively without blocking.
func Acquire(name string) (*Lock, error) {
	path := Path(name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrHeld, name)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	return &Lock{file: file, path: path}, nil
}

// Release drops the handle. The lock file itself is left behind; an
// unlocked file is indistinguishable from no file for Held.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Held reports whether the named handle is currently held by any process.
// It satisfies wizard.InstanceProbe.
func Held(name string) (bool, error) {
	file, err := os.Open(Path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}
	defer file.Close()

	err = unix.Flock(int(file.Fd()), unix.LOCK_SH|unix.LOCK_NB)
	if err == nil {
		// We got the shared lock, so nobody holds it exclusively.
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		return false, nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return true, nil
	}
	return false, fmt.Errorf("probe lock file: %w", err)
}
