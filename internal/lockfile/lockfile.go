// Package lockfile guards an output directory against concurrent builds.
//
// The lock is a file named .lock.pid created with O_EXCL and holding the
// owner's pid. Where the platform supports it the file is also flocked, so
// a crashed owner leaves a file that is recognizably stale.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/facebookarchive/commoner/internal/module"
)

// Name is the lock file name inside the output directory.
const Name = ".lock.pid"

// Lock is a held output directory lock.
type Lock struct {
	dir     string
	path    string
	file    *os.File
	logger  *slog.Logger
	release sync.Once
}

// Acquire creates dir if needed and locks it. A held lock fails with an
// OUTPUT_LOCKED build error naming the owner; a lock left by a dead process
// fails the same way but says so, and is never removed automatically.
func Acquire(dir string, logger *slog.Logger) (*Lock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, Name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil, module.NewLockedError(dir, describeOwner(path))
	}
	if err != nil {
		return nil, fmt.Errorf("create lock file %s: %w", path, err)
	}

	if err := flock(f); err != nil {
		f.Close()
		os.Remove(path)
		if errors.Is(err, errWouldBlock) {
			return nil, module.NewLockedError(dir, "")
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		funlock(f)
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write lock file %s: %w", path, err)
	}

	logger.Debug("output directory locked", "dir", dir, "pid", os.Getpid())
	return &Lock{dir: dir, path: path, file: f, logger: logger}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	var err error
	l.release.Do(func() {
		if uerr := funlock(l.file); uerr != nil {
			l.logger.Debug("flock unlock failed", "error", uerr)
		}
		if cerr := l.file.Close(); cerr != nil {
			l.logger.Debug("lock file close failed", "error", cerr)
		}
		if rerr := os.Remove(l.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = fmt.Errorf("remove lock file %s: %w", l.path, rerr)
			return
		}
		l.logger.Debug("output directory unlocked", "dir", l.dir)
	})
	return err
}

// describeOwner reads the pid in an existing lock file.
func describeOwner(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return fmt.Sprintf("unreadable lock file %s", path)
	}
	if !processAlive(pid) {
		return fmt.Sprintf("stale lock from pid %d; remove %s", pid, path)
	}
	return fmt.Sprintf("held by pid %d", pid)
}
