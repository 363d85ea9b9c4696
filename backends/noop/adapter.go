package noop

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/ebogdum/fsbridge/metadata"
)

// NoopFS is a delegate that fails every operation with
// metadata.ErrBackendDisabled. It is used when no backend is configured.
type NoopFS struct {
	uri *url.URL
}

// NewNoopFS creates a disabled delegate for scheme.
func NewNoopFS(scheme string) *NoopFS {
	return &NoopFS{uri: &url.URL{Scheme: scheme, Host: "disabled"}}
}

func disabled(op, path string) error {
	return fmt.Errorf("%w: cannot %s %s", metadata.ErrBackendDisabled, op, path)
}

func (n *NoopFS) Scheme() string        { return n.uri.Scheme }
func (n *NoopFS) URI() *url.URL         { return n.uri }
func (n *NoopFS) DefaultPort() int      { return -1 }
func (n *NoopFS) AuthorityNeeded() bool { return false }

// Initialize records the URI so the adapter can still report an identity.
func (n *NoopFS) Initialize(ctx context.Context, uri *url.URL) error {
	n.uri = uri
	return nil
}

// CheckPath accepts every path; the operations themselves fail.
func (n *NoopFS) CheckPath(path string) error {
	return nil
}

func (n *NoopFS) Create(ctx context.Context, path string, permission metadata.Permission, overwrite bool,
	bufferSize int, replication int16, blockSize int64, progress metadata.Progressable) (io.WriteCloser, error) {
	return nil, disabled("create", path)
}

func (n *NoopFS) Mkdirs(ctx context.Context, path string, permission metadata.Permission) error {
	return disabled("create directory", path)
}

func (n *NoopFS) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	return false, disabled("delete", path)
}

func (n *NoopFS) Open(ctx context.Context, path string, bufferSize int) (io.ReadCloser, error) {
	return nil, disabled("open", path)
}

func (n *NoopFS) Rename(ctx context.Context, src, dst string) error {
	return disabled("rename", src)
}

func (n *NoopFS) SetPermission(ctx context.Context, path string, permission metadata.Permission) error {
	return disabled("set permission on", path)
}

func (n *NoopFS) SetOwner(ctx context.Context, path, username, groupname string) error {
	return disabled("set owner on", path)
}

func (n *NoopFS) SetTimes(ctx context.Context, path string, mtime, atime time.Time) error {
	return disabled("set times on", path)
}

func (n *NoopFS) SetReplication(ctx context.Context, path string, replication int16) (bool, error) {
	return false, disabled("set replication on", path)
}

func (n *NoopFS) GetFileChecksum(ctx context.Context, path string) (*metadata.FileChecksum, error) {
	return nil, disabled("checksum", path)
}

func (n *NoopFS) GetFileStatus(ctx context.Context, path string) (*metadata.FileStatus, error) {
	return nil, disabled("stat", path)
}

func (n *NoopFS) GetFileBlockLocations(ctx context.Context, path string, start, length int64) ([]metadata.BlockLocation, error) {
	return nil, disabled("locate blocks of", path)
}

func (n *NoopFS) GetStatus(ctx context.Context) (*metadata.FsStatus, error) {
	return nil, disabled("report status of", n.uri.String())
}

func (n *NoopFS) ListStatus(ctx context.Context, path string) ([]*metadata.FileStatus, error) {
	return nil, disabled("list", path)
}

// SetVerifyChecksum does nothing for the disabled delegate
func (n *NoopFS) SetVerifyChecksum(verify bool) {}

func (n *NoopFS) GetServerDefaults(ctx context.Context) (*metadata.ServerDefaults, error) {
	return nil, disabled("report defaults of", n.uri.String())
}

// Close does nothing for noop backend
func (n *NoopFS) Close() error {
	return nil
}
