package session

import (
	"context"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// Default lock timing, matching the teacher's SessionLocker defaults
// (internal/sessions/write_lock.go DefaultLockTimeout) generalized to the
// file-lock protocol described in spec §4.1.
const (
	DefaultLockWaitMs  = 5000
	DefaultLockStaleMs = 30000
	lockPollInterval   = 20 * time.Millisecond
)

// fileLock implements the sibling `<session>.lock` protocol: acquire by
// taking a non-blocking exclusive flock on the file (flock.Flock.TryLock,
// which creates it if absent), reclaim an abandoned lock once its mtime
// exceeds staleMs, and poll until waitMs is exhausted. The file is not
// created with O_EXCL, so a leftover lock file that no process holds is
// taken over at once.
type fileLock struct {
	path string
	fl   *flock.Flock
}

func newFileLock(sessionPath string) *fileLock {
	return &fileLock{path: sessionPath + ".lock"}
}

// Acquire blocks until the lock is held, the wait budget is exhausted
// (returning ErrLockTimeout), or ctx is cancelled.
func (l *fileLock) Acquire(ctx context.Context, waitMs, staleMs int) error {
	if waitMs <= 0 {
		waitMs = DefaultLockWaitMs
	}
	if staleMs <= 0 {
		staleMs = DefaultLockStaleMs
	}
	deadline := time.Now().Add(time.Duration(waitMs) * time.Millisecond)
	stale := time.Duration(staleMs) * time.Millisecond

	fl := flock.New(l.path)
	for {
		locked, err := fl.TryLock()
		if err != nil {
			return err
		}
		if locked {
			l.fl = fl
			return nil
		}

		l.reclaimIfStale(stale)

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// reclaimIfStale removes the lock file when its mtime is older than
// stale, treating it as abandoned by a crashed holder.
func (l *fileLock) reclaimIfStale(stale time.Duration) {
	info, err := os.Stat(l.path)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > stale {
		_ = os.Remove(l.path)
	}
}

// Release unlocks and removes the lock file on every exit path, including
// when the caller panics (use with defer immediately after a successful
// Acquire).
func (l *fileLock) Release() {
	if l.fl == nil {
		return
	}
	_ = l.fl.Unlock()
	_ = os.Remove(l.path)
	l.fl = nil
}
