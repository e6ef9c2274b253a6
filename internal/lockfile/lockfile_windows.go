//go:build windows

// On Windows the compiled installer owns the real kernel mutex; this
// fallback only covers the portable install path, using an exclusively
// opened lock file as the handle.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrHeld is returned by Acquire when another process holds the handle.
var ErrHeld = errors.New("instance handle already held")

// Lock is an acquired instance handle.
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
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrHeld, name)
		}
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	return &Lock{file: file, path: path}, nil
}

// Release drops the handle and removes its lock file.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if removeErr := os.Remove(l.path); err == nil {
		err = removeErr
	}
	return err
}

// Held reports whether the named handle is currently held.
func Held(name string) (bool, error) {
	_, err := os.Stat(Path(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe lock file: %w", err)
	}
	return true, nil
}
