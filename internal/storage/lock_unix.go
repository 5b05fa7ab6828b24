//go:build unix

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// NewLocker returns the platform locker: flock(2)-based on unix.
func NewLocker() Locker { return &flockLocker{} }

// flockLocker implements Locker with BSD advisory locks. flock is
// per-open-file, so two processes (or two lockers in one process)
// contend correctly; locks vanish with the descriptor on process death,
// which is exactly the crash behavior we want.
type flockLocker struct{}

// Poll bounds for lock acquisition. The first attempt is non-blocking;
// contention falls back to capped exponential backoff so a brief hold
// is picked up quickly and a long hold does not spin.
const (
	lockMinBackoff = 10 * time.Millisecond
	lockMaxBackoff = 500 * time.Millisecond
)

func (l *flockLocker) Acquire(ctx context.Context, path string, timeout time.Duration) (func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	release := func() {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		return release, nil
	} else if !errors.Is(err, syscall.EWOULDBLOCK) {
		file.Close()
		if errors.Is(err, syscall.ENOTSUP) || errors.Is(err, syscall.EOPNOTSUPP) {
			return nil, ErrLockUnsupported
		}
		return nil, fmt.Errorf("flock: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := lockMinBackoff
	for {
		select {
		case <-lockCtx.Done():
			file.Close()
			if errors.Is(lockCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %v", ErrLockTimeout, timeout)
			}
			return nil, lockCtx.Err()
		case <-time.After(backoff):
			err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
			if err == nil {
				return release, nil
			}
			if !errors.Is(err, syscall.EWOULDBLOCK) {
				file.Close()
				return nil, fmt.Errorf("flock: %w", err)
			}
			backoff *= 2
			if backoff > lockMaxBackoff {
				backoff = lockMaxBackoff
			}
		}
	}
}
