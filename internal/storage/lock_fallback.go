//go:build !unix

package storage

import (
	"context"
	"time"
)

// NewLocker returns the platform locker. This platform has no flock
// support, so every Acquire reports ErrLockUnsupported and the store
// decides, per its configuration, whether to write unserialized.
func NewLocker() Locker { return unsupportedLocker{} }

type unsupportedLocker struct{}

func (unsupportedLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, ErrLockUnsupported
}
