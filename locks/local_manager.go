package locks

import (
	"context"
	"sync"
	"time"
)

// LocalManager serializes operations within a single process. It is enough
// when one fsbridge instance owns the bucket.
type LocalManager struct {
	mu    sync.Mutex
	locks map[string]time.Time // key -> expiry, zero means no expiry
	ttl   time.Duration
	now   func() time.Time
}

// NewLocalManager creates an in-memory lock manager whose locks never expire.
func NewLocalManager() *LocalManager {
	return NewLocalManagerWithTTL(0)
}

// NewLocalManagerWithTTL creates an in-memory lock manager. A lock that is
// not released within ttl may be taken over, mirroring the Redis manager.
func NewLocalManagerWithTTL(ttl time.Duration) *LocalManager {
	return &LocalManager{
		locks: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Acquire acquires a lock if it is free or its holder's lease has expired.
func (m *LocalManager) Acquire(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, exists := m.locks[key]; exists && (expiry.IsZero() || now.Before(expiry)) {
		return false, nil
	}

	var expiry time.Time
	if m.ttl > 0 {
		expiry = now.Add(m.ttl)
	}
	m.locks[key] = expiry
	return true, nil
}

// Release releases a previously acquired lock.
func (m *LocalManager) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

// Close clears all local locks.
func (m *LocalManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = make(map[string]time.Time)
	return nil
}
