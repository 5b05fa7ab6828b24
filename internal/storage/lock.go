package storage

import (
	"context"
	"errors"
	"time"
)

// Lock-related sentinels. ErrLockUnsupported is an explicit capability
// signal, not a failure: advisory locking does not exist on every
// platform and is unreliable on some network filesystems, and callers
// must opt in to proceeding without serialization.
var (
	ErrLockTimeout     = errors.New("lock acquisition timed out")
	ErrLockUnsupported = errors.New("advisory locking unsupported")
)

// Locker serializes writers on a lock file path. Acquire blocks until
// the lock is held, the timeout expires (ErrLockTimeout), or the
// context is done. The returned release function must be called exactly
// once.
type Locker interface {
	Acquire(ctx context.Context, path string, timeout time.Duration) (release func(), err error)
}
