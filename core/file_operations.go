package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/ebogdum/fsbridge/internal/pathutil"
	"github.com/ebogdum/fsbridge/invocation"
	"github.com/ebogdum/fsbridge/metadata"
)

// Create creates a file and returns a writer for its content. The delegate is
// always asked to overwrite: flags are logged but not forwarded. When
// createParent is false the adapter's Policy decides what happens.
func (a *Adapter) Create(ctx context.Context, path string, flags metadata.CreateFlag, permission metadata.Permission,
	bufferSize int, replication int16, blockSize int64, progress metadata.Progressable,
	checksumOpt *metadata.ChecksumOpt, createParent bool) (w io.WriteCloser, err error) {
	defer a.observe("create", time.Now(), &err)

	id := invocation.Current(ctx)
	a.logger.Finest(ctx, "%s: create(file: %s, flag: %s, absolutePermission: %s, bufferSize: %d, replication: %d, blockSize: %d, progress: %v, checksumOpt: %s, createParent: %t)",
		id, path, flags, permission, bufferSize, replication, blockSize, progress, checksumOpt, createParent)

	if err = a.CheckPath(path); err != nil {
		return nil, err
	}
	if !createParent {
		if err = a.overrideCreateParent(ctx, path); err != nil {
			return nil, err
		}
	}

	return a.delegate.Create(ctx, path, permission, true, bufferSize, replication, blockSize, progress)
}

// Open opens a file for reading.
func (a *Adapter) Open(ctx context.Context, path string, bufferSize int) (r io.ReadCloser, err error) {
	defer a.observe("open", time.Now(), &err)
	a.logger.Finest(ctx, "%s: open(file: %s, bufferSize: %d)", invocation.Current(ctx), path, bufferSize)

	if err = a.CheckPath(path); err != nil {
		return nil, err
	}
	return a.delegate.Open(ctx, path, bufferSize)
}

// Delete removes a file or directory and reports whether anything was removed.
func (a *Adapter) Delete(ctx context.Context, path string, recursive bool) (deleted bool, err error) {
	defer a.observe("delete", time.Now(), &err)
	a.logger.Finest(ctx, "%s: delete(f: %s, recursive: %t)", invocation.Current(ctx), path, recursive)

	if err = a.CheckPath(path); err != nil {
		return false, err
	}
	return a.delegate.Delete(ctx, path, recursive)
}

// Rename moves src to dst.
func (a *Adapter) Rename(ctx context.Context, src, dst string) (err error) {
	defer a.observe("rename", time.Now(), &err)
	a.logger.Finest(ctx, "%s: rename(src: %s, dst: %s)", invocation.Current(ctx), src, dst)

	if err = a.CheckPath(src); err != nil {
		return err
	}
	if err = a.CheckPath(dst); err != nil {
		return err
	}
	return a.delegate.Rename(ctx, src, dst)
}

// SetReplication forwards the replication factor and reports whether the
// delegate applied it.
func (a *Adapter) SetReplication(ctx context.Context, path string, replication int16) (applied bool, err error) {
	defer a.observe("set_replication", time.Now(), &err)
	a.logger.Finest(ctx, "%s: setReplication(f: %s, replication: %d)", invocation.Current(ctx), path, replication)

	if err = a.CheckPath(path); err != nil {
		return false, err
	}
	return a.delegate.SetReplication(ctx, path, replication)
}

func (a *Adapter) GetFileChecksum(ctx context.Context, path string) (checksum *metadata.FileChecksum, err error) {
	defer a.observe("get_file_checksum", time.Now(), &err)
	a.logger.Finest(ctx, "%s: getFileChecksum(f: %s)", invocation.Current(ctx), path)

	if err = a.CheckPath(path); err != nil {
		return nil, err
	}
	return a.delegate.GetFileChecksum(ctx, path)
}

func (a *Adapter) GetFileStatus(ctx context.Context, path string) (status *metadata.FileStatus, err error) {
	defer a.observe("get_file_status", time.Now(), &err)
	a.logger.Finest(ctx, "%s: getFileStatus(f: %s)", invocation.Current(ctx), path)

	if err = a.CheckPath(path); err != nil {
		return nil, err
	}
	return a.delegate.GetFileStatus(ctx, path)
}

func (a *Adapter) GetFileBlockLocations(ctx context.Context, path string, start, length int64) (locations []metadata.BlockLocation, err error) {
	defer a.observe("get_file_block_locations", time.Now(), &err)
	a.logger.Finest(ctx, "%s: getFileBlockLocations(f: %s, start: %d, len: %d)", invocation.Current(ctx), path, start, length)

	if err = a.CheckPath(path); err != nil {
		return nil, err
	}
	return a.delegate.GetFileBlockLocations(ctx, path, start, length)
}

// overrideCreateParent applies the policy to a createParent=false request.
func (a *Adapter) overrideCreateParent(ctx context.Context, path string) error {
	id := invocation.Current(ctx)
	if a.policy.LenientParentCreation {
		a.logger.Fine(ctx, "%s: Ignoring createParent=false. Creating parents anyways.", id)
		return nil
	}

	parent := parentOf(path)
	status, err := a.delegate.GetFileStatus(ctx, parent)
	if errors.Is(err, metadata.ErrNotFound) {
		return fmt.Errorf("%w: %s", metadata.ErrParentNotFound, parent)
	}
	if err != nil {
		return err
	}
	if !status.IsDir {
		return fmt.Errorf("%w: %s is not a directory", metadata.ErrParentNotFound, parent)
	}
	return nil
}

// parentOf returns the parent of an absolute path or URI, keeping the scheme
// and authority of the latter.
func parentOf(p string) string {
	if strings.HasPrefix(p, pathutil.Separator) {
		return pathutil.Parent(strings.TrimSuffix(p, pathutil.Separator))
	}
	u, err := url.Parse(p)
	if err != nil {
		return p
	}
	parent := *u
	parent.Path = pathutil.Parent(strings.TrimSuffix(u.Path, pathutil.Separator))
	parent.RawPath = ""
	return parent.String()
}
