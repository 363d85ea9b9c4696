// Package redis implements the attribute store on Redis. Each path is a JSON
// value; a lexicographically ordered index of all paths answers subtree
// queries.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

const storeName = "redis"

type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string, logger *zap.Logger) (*RedisStore, error) {
	if prefix == "" {
		prefix = "fsbridge:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis attribute store: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix, logger), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, path string) (*metadata.Attributes, error) {
	defer metrics.ObserveAttributeStore(storeName, "get", time.Now())

	raw, err := s.client.Get(ctx, s.attributesKey(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attributes: %w", err)
	}

	var attrs metadata.Attributes
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	return &attrs, nil
}

func (s *RedisStore) Put(ctx context.Context, attrs *metadata.Attributes) error {
	defer metrics.ObserveAttributeStore(storeName, "put", time.Now())

	attrs.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.attributesKey(attrs.Path), raw, 0)
		pipe.ZAdd(ctx, s.indexKey(), &redis.Z{Member: attrs.Path})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put attributes: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	defer metrics.ObserveAttributeStore(storeName, "delete", time.Now())

	paths, err := s.subtree(ctx, path)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.remove(ctx, pipe, paths)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete attributes: %w", err)
	}
	return nil
}

// Rename moves src and its descendants below dst. It is not atomic with
// respect to concurrent writers of the same subtree; callers serialize
// renames with a lock.
func (s *RedisStore) Rename(ctx context.Context, src, dst string) error {
	defer metrics.ObserveAttributeStore(storeName, "rename", time.Now())

	if src == "/" {
		return metadata.ErrForbidden
	}

	moving, err := s.subtree(ctx, src)
	if err != nil {
		return err
	}
	replaced, err := s.subtree(ctx, dst)
	if err != nil {
		return err
	}

	var stale []string
	for _, p := range replaced {
		if !metadata.IsDescendant(src, p) {
			stale = append(stale, p)
		}
	}

	moved := make([]*metadata.Attributes, 0, len(moving))
	for _, p := range moving {
		attrs, err := s.Get(ctx, p)
		if errors.Is(err, metadata.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		attrs.Path = dst + p[len(src):]
		attrs.UpdatedAt = time.Now().UTC()
		moved = append(moved, attrs)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.remove(ctx, pipe, stale)
		s.remove(ctx, pipe, moving)
		for _, attrs := range moved {
			raw, err := json.Marshal(attrs)
			if err != nil {
				return fmt.Errorf("failed to encode attributes: %w", err)
			}
			pipe.Set(ctx, s.attributesKey(attrs.Path), raw, 0)
			pipe.ZAdd(ctx, s.indexKey(), &redis.Z{Member: attrs.Path})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rename attributes: %w", err)
	}

	s.logger.Debug("Attributes renamed",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.Int("paths", len(moved)))
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// subtree lists root and every indexed path below it.
func (s *RedisStore) subtree(ctx context.Context, root string) ([]string, error) {
	min, max := "["+root+"/", "("+root+"0" // '0' sorts right after '/'
	if root == "/" {
		min, max = "[/", "+"
	}

	paths, err := s.client.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan attribute index: %w", err)
	}
	if root != "/" {
		paths = append(paths, root)
	}
	return paths, nil
}

func (s *RedisStore) remove(ctx context.Context, pipe redis.Pipeliner, paths []string) {
	if len(paths) == 0 {
		return
	}
	keys := make([]string, 0, len(paths))
	members := make([]interface{}, 0, len(paths))
	for _, p := range paths {
		keys = append(keys, s.attributesKey(p))
		members = append(members, p)
	}
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
}

func (s *RedisStore) attributesKey(path string) string {
	return s.prefix + "attr:" + path
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "attr-index"
}
