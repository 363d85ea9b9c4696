package localfs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/internal/pathutil"
	"github.com/ebogdum/fsbridge/metadata"
)

const (
	// Scheme is the URI scheme served by the local delegate.
	Scheme = "file"

	backendType = "localfs"
	maxNameLen  = 255
)

// Options configures the local delegate.
type Options struct {
	// BlockSize is reported in file status and server defaults
	BlockSize int64
}

// LocalFS implements backends.FileSystem on a directory of the local
// filesystem. The path component of a file URI is resolved below the root
// given at initialization, so "file:///data" serves "/a" from "/data/a".
type LocalFS struct {
	opts           Options
	rootPath       string
	uri            *url.URL
	verifyChecksum atomic.Bool
	logger         *zap.Logger
}

// NewLocalFS creates an uninitialized local delegate.
func NewLocalFS(opts Options, logger *zap.Logger) *LocalFS {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 32 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fs := &LocalFS{opts: opts, logger: logger}
	fs.verifyChecksum.Store(true)
	return fs
}

func (a *LocalFS) Scheme() string        { return Scheme }
func (a *LocalFS) DefaultPort() int      { return -1 }
func (a *LocalFS) AuthorityNeeded() bool { return false }
func (a *LocalFS) URI() *url.URL         { return a.uri }

// Initialize binds the delegate to the root directory named by uri.
func (a *LocalFS) Initialize(ctx context.Context, uri *url.URL) error {
	rootPath := filepath.FromSlash(uri.Path)
	if rootPath == "" {
		rootPath = string(filepath.Separator)
	}

	// Ensure root path exists
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return fmt.Errorf("failed to create root path %s: %w", rootPath, err)
	}

	// Verify path is accessible
	info, err := os.Stat(rootPath)
	if err != nil {
		return fmt.Errorf("root path %s is not accessible: %w", rootPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path %s is not a directory", rootPath)
	}

	a.rootPath = rootPath
	a.uri = &url.URL{Scheme: Scheme, Host: uri.Host, Path: uri.Path}
	a.logger.Info("Local delegate initialized", zap.String("root", rootPath))
	return nil
}

// CheckPath rejects paths that escape the root or carry overlong names.
func (a *LocalFS) CheckPath(path string) error {
	logical, err := logicalPath(path)
	if err != nil {
		return err
	}
	for _, segment := range strings.Split(logical, pathutil.Separator) {
		if len(segment) > maxNameLen {
			return fmt.Errorf("%w: name %.16s... exceeds %d bytes", metadata.ErrInvalidPath, segment, maxNameLen)
		}
	}
	return nil
}

func (a *LocalFS) SetVerifyChecksum(verify bool) {
	a.verifyChecksum.Store(verify)
}

// GetServerDefaults returns the defaults applied to new local files.
func (a *LocalFS) GetServerDefaults(ctx context.Context) (*metadata.ServerDefaults, error) {
	return &metadata.ServerDefaults{
		BlockSize:        a.opts.BlockSize,
		BytesPerChecksum: 512,
		WritePacketSize:  64 << 10,
		Replication:      1,
		FileBufferSize:   4096,
		TrashInterval:    0,
		ChecksumType:     checksumAlgorithm,
	}, nil
}

// GetStatus reports capacity and usage of the volume holding the root.
func (a *LocalFS) GetStatus(ctx context.Context) (*metadata.FsStatus, error) {
	return volumeStatus(a.rootPath)
}

// Close closes any resources used by the delegate
func (a *LocalFS) Close() error {
	// No resources to close for local filesystem
	return nil
}

// logicalPath strips scheme and authority from p and cleans it.
func logicalPath(p string) (string, error) {
	if !strings.HasPrefix(p, pathutil.Separator) {
		u, err := url.Parse(p)
		if err != nil {
			return "", fmt.Errorf("%w: %v", metadata.ErrInvalidPath, err)
		}
		p = u.Path
	}

	clean, err := pathutil.Clean(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s escapes the root", metadata.ErrInvalidPath, p)
	}
	return clean, nil
}

// resolve maps p to its logical path and its location on disk.
func (a *LocalFS) resolve(p string) (logical, full string, err error) {
	logical, err = logicalPath(p)
	if err != nil {
		return "", "", err
	}

	full, err = pathutil.SafeJoin(a.rootPath, logical)
	if err != nil {
		return "", "", metadata.ErrForbidden
	}
	return logical, full, nil
}

func notExist(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", metadata.ErrNotFound, path)
	}
	return err
}
