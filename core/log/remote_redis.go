package log

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClientFactory appends entries to a Redis stream named after the log
// channel. Each handle owns a pipeline that is executed on Flush.
type RedisClientFactory struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisClientFactory creates a factory writing to stream on client. The
// stream is trimmed to roughly maxLen entries when maxLen is positive.
func NewRedisClientFactory(client *redis.Client, stream string, maxLen int64) *RedisClientFactory {
	if stream == "" {
		stream = LogName
	}
	return &RedisClientFactory{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// DialRedisClientFactory connects to addr and verifies the connection.
func DialRedisClientFactory(ctx context.Context, addr, password string, db int, stream string, maxLen int64) (*RedisClientFactory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis log stream: %w", err)
	}
	return NewRedisClientFactory(client, stream, maxLen), nil
}

// NewClient returns a handle with its own pipeline.
func (f *RedisClientFactory) NewClient(ctx context.Context) (Client, error) {
	return &redisClient{factory: f, pipe: f.client.Pipeline()}, nil
}

// Close closes the shared connection pool.
func (f *RedisClientFactory) Close() error {
	return f.client.Close()
}

type redisClient struct {
	factory *RedisClientFactory
	pipe    redis.Pipeliner
	queued  int
	closed  bool
}

func (c *redisClient) Write(ctx context.Context, entries []Entry) error {
	if c.closed {
		return errors.New("remote log client closed")
	}
	for _, e := range entries {
		c.pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: c.factory.stream,
			MaxLen: c.factory.maxLen,
			Approx: c.factory.maxLen > 0,
			Values: map[string]interface{}{
				"severity":     e.Severity.String(),
				"message":      e.Message,
				"logName":      e.LogName,
				"timestamp":    e.Timestamp.Format(time.RFC3339Nano),
				"invocationId": e.InvocationID,
			},
		})
		c.queued++
	}
	return nil
}

func (c *redisClient) Flush(ctx context.Context) error {
	if c.closed {
		return errors.New("remote log client closed")
	}
	if c.queued == 0 {
		return nil
	}
	if _, err := c.pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to log stream %s: %w", c.factory.stream, err)
	}
	c.queued = 0
	return nil
}

func (c *redisClient) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.pipe.Discard()
}

// NopClientFactory accepts and discards every entry.
type NopClientFactory struct{}

func (NopClientFactory) NewClient(ctx context.Context) (Client, error) {
	return nopClient{}, nil
}

func (NopClientFactory) Close() error { return nil }

type nopClient struct{}

func (nopClient) Write(ctx context.Context, entries []Entry) error { return nil }
func (nopClient) Flush(ctx context.Context) error                  { return nil }
func (nopClient) Close() error                                     { return nil }
