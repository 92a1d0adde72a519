//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/zonesync/internal/logger"
)

// ErrAlreadyRunning is returned when another live process holds the lock.
var ErrAlreadyRunning = errors.New("another sync is already running")

const (
	lockPermissions os.FileMode = 0o644

	// unreadableLockLifetime is how long a lock without a readable PID is
	// assumed to be in the middle of being written by its owner.
	unreadableLockLifetime = 30 * time.Second
)

// Lock is a PID file guarding the cache and deploy directories.
type Lock struct {
	path string
}

// AcquireLock creates the lock file at path. A lock left behind by a process
// that no longer exists is discarded and taken over.
func AcquireLock(ctx context.Context, path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	// One retry: the second attempt only happens after a stale lock was discarded.
	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockPermissions)
		if err == nil {
			_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			closeErr := file.Close()

			if err = errors.Join(writeErr, closeErr); err != nil {
				_ = os.Remove(path)

				return nil, fmt.Errorf("write lock: %w", err)
			}

			return &Lock{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}

		pid, seen, held := lockHolder(path)
		if held {
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrAlreadyRunning, pid, path)
		}

		if seen == nil {
			continue
		}

		logger.WarnKV(ctx, "Removing stale lock", "path", path, "pid", pid)

		taken, err := takeOver(path, seen)
		if err != nil {
			return nil, err
		}

		if !taken {
			break
		}
	}

	return nil, fmt.Errorf("%w: lock %s was recreated concurrently", ErrAlreadyRunning, path)
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}

	return nil
}

// takeOver moves the stale lock aside and discards it only when it is still
// the file that was judged stale. A lock another process wrote in the meantime
// is put back and false is returned.
func takeOver(path string, seen os.FileInfo) (bool, error) {
	aside := fmt.Sprintf("%s.stale-%d", path, os.Getpid())

	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}

		return false, fmt.Errorf("move stale lock aside: %w", err)
	}

	moved, err := os.Lstat(aside)
	if err == nil && os.SameFile(seen, moved) && seen.ModTime().Equal(moved.ModTime()) {
		if err = os.Remove(aside); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("remove stale lock: %w", err)
		}

		return true, nil
	}

	// Link never replaces, so a lock created after the rename wins.
	if err = os.Link(aside, path); err != nil && !errors.Is(err, os.ErrExist) {
		return false, fmt.Errorf("restore lock: %w", err)
	}

	_ = os.Remove(aside)

	return false, nil
}

// lockHolder reports the PID recorded in the lock, the lock file as it was
// inspected, and whether the holder is still ours to wait for.
// A nil FileInfo means the lock vanished.
func lockHolder(path string) (int, os.FileInfo, bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, nil, false
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, info, time.Since(info.ModTime()) <= unreadableLockLifetime
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, info, time.Since(info.ModTime()) <= unreadableLockLifetime
	}

	return pid, info, isSameProgramAlive(pid)
}

// isSameProgramAlive reports whether pid is running and is the same executable
// as this process. A recycled PID belonging to something else does not count.
func isSameProgramAlive(pid int) bool {
	holder, err := ps.FindProcess(pid)
	if err != nil {
		// Cannot tell; err on the side of not running twice.
		return true
	}

	if holder == nil {
		return false
	}

	self, err := ps.FindProcess(os.Getpid())
	if err != nil || self == nil {
		return true
	}

	return holder.Executable() == self.Executable()
}
