// Package memory provides an in-process attribute store for single-node
// deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

const storeName = "memory"

// MemoryStore keeps attributes in a map guarded by a mutex.
type MemoryStore struct {
	mu    sync.RWMutex
	attrs map[string]metadata.Attributes
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attrs: make(map[string]metadata.Attributes)}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (*metadata.Attributes, error) {
	defer metrics.ObserveAttributeStore(storeName, "get", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	attrs, ok := s.attrs[path]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	return &attrs, nil
}

func (s *MemoryStore) Put(ctx context.Context, attrs *metadata.Attributes) error {
	defer metrics.ObserveAttributeStore(storeName, "put", time.Now())

	stored := *attrs
	stored.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.attrs[attrs.Path] = stored
	s.mu.Unlock()

	attrs.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	defer metrics.ObserveAttributeStore(storeName, "delete", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	for p := range s.attrs {
		if metadata.IsDescendant(path, p) {
			delete(s.attrs, p)
		}
	}
	return nil
}

func (s *MemoryStore) Rename(ctx context.Context, src, dst string) error {
	defer metrics.ObserveAttributeStore(storeName, "rename", time.Now())

	if src == "/" {
		return metadata.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for p := range s.attrs {
		if metadata.IsDescendant(dst, p) && !metadata.IsDescendant(src, p) {
			delete(s.attrs, p)
		}
	}

	moved := make(map[string]metadata.Attributes)
	for p, attrs := range s.attrs {
		if metadata.IsDescendant(src, p) {
			attrs.Path = dst + p[len(src):]
			moved[attrs.Path] = attrs
			delete(s.attrs, p)
		}
	}
	for p, attrs := range moved {
		s.attrs[p] = attrs
	}
	return nil
}

// Close does nothing for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
