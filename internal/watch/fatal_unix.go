//go:build unix

package watch

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isFatalFsnotifyError reports inotify or descriptor exhaustion, after which
// the watcher cannot recover.
func isFatalFsnotifyError(err error) bool {
	return errors.Is(err, unix.ENOSPC) ||
		errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE)
}
