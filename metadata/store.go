package metadata

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Common filesystem errors
var (
	ErrNotFound        = errors.New("path not found")
	ErrAlreadyExists   = errors.New("path already exists")
	ErrForbidden       = errors.New("access forbidden")
	ErrInvalidPath     = errors.New("invalid path")
	ErrParentNotFound  = errors.New("parent directory not found")
	ErrNotSupported    = errors.New("operation not supported")
	ErrBackendDisabled = errors.New("backend not enabled")
	ErrIsDirectory     = errors.New("path is a directory")
	ErrNotEmpty        = errors.New("directory not empty")
)

// Attributes holds the POSIX-style attributes an object store cannot keep
// natively. A zero time means the value was never set.
type Attributes struct {
	Path       string     `json:"path"`
	Permission Permission `json:"permission"`
	Owner      string     `json:"owner"`
	Group      string     `json:"group"`
	MTime      time.Time  `json:"mtime"`
	ATime      time.Time  `json:"atime"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Store defines the interface for attribute storage operations
type Store interface {
	// Get retrieves attributes for a path
	Get(ctx context.Context, path string) (*Attributes, error)

	// Put creates or replaces the attributes of a path
	Put(ctx context.Context, attrs *Attributes) error

	// Delete removes the attributes of a path and all of its descendants
	Delete(ctx context.Context, path string) error

	// Rename moves the attributes of a path and all of its descendants
	Rename(ctx context.Context, src, dst string) error

	// Close closes the store connection
	Close() error
}

// IsDescendant reports whether p equals root or lies below it.
func IsDescendant(root, p string) bool {
	if root == "/" {
		return true
	}
	if p == root {
		return true
	}
	return len(p) > len(root) && p[:len(root)] == root && p[len(root)] == '/'
}

// DescendantPattern returns a SQL LIKE pattern, escaped with '\', matching
// every path strictly below root.
func DescendantPattern(root string) string {
	if root == "/" {
		return "/%"
	}
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(root)
	return escaped + "/%"
}
