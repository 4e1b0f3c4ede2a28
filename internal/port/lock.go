package port

import (
	"context"
	"time"
)

// DistributedLock is a cross-process advisory lock with a lease: the hold
// auto-expires after leaseTime even if the holder crashes. Correctness never
// depends on the lease window being overlap-free; the lock only reduces
// contention on compound critical sections.
type DistributedLock interface {
	// Acquire blocks up to wait attempting to take the lock and returns
	// domain.ErrLockBusy once wait elapses.
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (Unlocker, error)
}

type Unlocker interface {
	Release(ctx context.Context) error
}
