package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keyPrefix = "fsbridge:lock:"

// RedisOptions configures a RedisManager.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a crashed holder can keep a lock
	TTL time.Duration
}

// RedisManager implements distributed locking with a single Redis node:
// SET NX with an owner token, released by a compare-and-delete script.
type RedisManager struct {
	client  *redis.Client
	logger  *zap.Logger
	ttl     time.Duration
	ownerID string // Unique identifier for this lock manager instance
}

// NewRedisManager creates a new Redis-based lock manager
func NewRedisManager(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &RedisManager{
		client:  client,
		logger:  logger,
		ttl:     ttl,
		ownerID: uuid.NewString(),
	}, nil
}

// releaseScript deletes the lock only if this manager owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Acquire attempts to acquire a distributed lock for the given key
func (m *RedisManager) Acquire(ctx context.Context, key string) (bool, error) {
	lockKey := keyPrefix + key

	// Use SET with NX (only if not exists) and EX (expiration) with unique owner value
	result := m.client.SetNX(ctx, lockKey, m.ownerID, m.ttl)
	if err := result.Err(); err != nil {
		return false, fmt.Errorf("failed to acquire lock for key %s: %w", key, err)
	}

	acquired := result.Val()

	if acquired {
		m.logger.Debug("Lock acquired",
			zap.String("key", key),
			zap.String("owner", m.ownerID),
			zap.Duration("ttl", m.ttl))
	} else {
		m.logger.Debug("Lock already held", zap.String("key", key))
	}

	return acquired, nil
}

// Release releases a previously acquired lock for the given key
func (m *RedisManager) Release(ctx context.Context, key string) error {
	lockKey := keyPrefix + key

	// Use Lua script to ensure atomicity (only delete if we own the lock)
	result := releaseScript.Run(ctx, m.client, []string{lockKey}, m.ownerID)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to release lock for key %s: %w", key, err)
	}

	deleted, _ := result.Val().(int64)
	if deleted == 1 {
		m.logger.Debug("Lock released",
			zap.String("key", key),
			zap.String("owner", m.ownerID))
	} else {
		m.logger.Debug("Lock not owned or already released",
			zap.String("key", key),
			zap.String("owner", m.ownerID))
	}

	return nil
}

// Close closes the Redis client connection
func (m *RedisManager) Close() error {
	return m.client.Close()
}
