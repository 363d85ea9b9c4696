// Package backends provides the delegate file systems the adapter forwards to.
// It includes implementations for the local filesystem, S3 object storage and
// a disabled placeholder.
package backends

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/ebogdum/fsbridge/metadata"
)

// FileSystem defines the complete hierarchical file system contract a
// delegate implements. Paths are either absolute ("/a/b") or fully qualified
// URIs ("s3://bucket/a/b").
type FileSystem interface {
	// Scheme returns the URI scheme the delegate serves, e.g. "s3"
	Scheme() string

	// Initialize binds the delegate to uri; it is called exactly once
	Initialize(ctx context.Context, uri *url.URL) error

	// URI returns the identity URI of the initialized delegate
	URI() *url.URL

	// DefaultPort returns the port implied by URIs without one, or -1
	DefaultPort() int

	// AuthorityNeeded reports whether URIs must carry an authority
	AuthorityNeeded() bool

	// CheckPath rejects paths the delegate cannot serve
	CheckPath(path string) error

	// Create creates a file, creating missing parents, and returns a writer
	Create(ctx context.Context, path string, permission metadata.Permission, overwrite bool,
		bufferSize int, replication int16, blockSize int64, progress metadata.Progressable) (io.WriteCloser, error)

	// Mkdirs creates a directory and all missing parents
	Mkdirs(ctx context.Context, path string, permission metadata.Permission) error

	// Delete removes a file or directory and reports whether anything was removed
	Delete(ctx context.Context, path string, recursive bool) (bool, error)

	// Open opens a file for reading
	Open(ctx context.Context, path string, bufferSize int) (io.ReadCloser, error)

	// Rename moves src to dst
	Rename(ctx context.Context, src, dst string) error

	// SetPermission changes the permission of a path
	SetPermission(ctx context.Context, path string, permission metadata.Permission) error

	// SetOwner changes the owner and/or group of a path; empty values are left unchanged
	SetOwner(ctx context.Context, path, username, groupname string) error

	// SetTimes changes modification and access times; zero values are left unchanged
	SetTimes(ctx context.Context, path string, mtime, atime time.Time) error

	// SetReplication sets the replication factor and reports whether it was applied
	SetReplication(ctx context.Context, path string, replication int16) (bool, error)

	// GetFileChecksum returns the checksum of a file, or nil if unavailable
	GetFileChecksum(ctx context.Context, path string) (*metadata.FileChecksum, error)

	// GetFileStatus returns the status of a path
	GetFileStatus(ctx context.Context, path string) (*metadata.FileStatus, error)

	// GetFileBlockLocations returns the locations of blocks overlapping [start, start+length)
	GetFileBlockLocations(ctx context.Context, path string, start, length int64) ([]metadata.BlockLocation, error)

	// GetStatus returns capacity and usage of the file system
	GetStatus(ctx context.Context) (*metadata.FsStatus, error)

	// ListStatus returns the status of every child of a directory, or of the file itself
	ListStatus(ctx context.Context, path string) ([]*metadata.FileStatus, error)

	// SetVerifyChecksum toggles checksum verification on read
	SetVerifyChecksum(verify bool)

	// GetServerDefaults returns the defaults applied to new files
	GetServerDefaults(ctx context.Context) (*metadata.ServerDefaults, error)

	// Close closes any resources used by the delegate
	Close() error
}
