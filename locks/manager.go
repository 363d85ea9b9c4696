// Package locks provides the lock managers that serialize non-atomic
// delegate operations such as object-store renames.
package locks

import (
	"context"
	"errors"
	"fmt"

	"github.com/ebogdum/fsbridge/metrics"
)

// ErrLockHeld is returned by With when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another operation")

// Manager defines the interface for distributed locking operations
type Manager interface {
	// Acquire attempts to acquire a distributed lock for the given key
	// Returns true if the lock was acquired, false if it was already held by another process
	Acquire(ctx context.Context, key string) (bool, error)

	// Release releases a previously acquired lock for the given key
	// Only the process that acquired the lock can release it
	Release(ctx context.Context, key string) error

	// Close closes the lock manager and releases any resources
	Close() error
}

// With runs fn while holding the lock for key. The lock is released with a
// context that outlives ctx cancellation.
func With(ctx context.Context, m Manager, key string, fn func() error) (err error) {
	acquired, err := m.Acquire(ctx, key)
	if err != nil {
		metrics.LockOperationsTotal.WithLabelValues("acquire", "failure").Inc()
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		metrics.LockOperationsTotal.WithLabelValues("acquire", "failure").Inc()
		return fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	metrics.LockOperationsTotal.WithLabelValues("acquire", "success").Inc()
	metrics.ActiveLocks.Inc()

	defer func() {
		metrics.ActiveLocks.Dec()
		if releaseErr := m.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
			metrics.LockOperationsTotal.WithLabelValues("release", "failure").Inc()
			err = errors.Join(err, fmt.Errorf("failed to release lock %s: %w", key, releaseErr))
			return
		}
		metrics.LockOperationsTotal.WithLabelValues("release", "success").Inc()
	}()

	return fn()
}
