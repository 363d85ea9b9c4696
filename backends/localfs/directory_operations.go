package localfs

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"

	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

// Mkdirs creates a directory and any missing parents. The permission applies
// to the leaf; parents get the default directory permission.
func (a *LocalFS) Mkdirs(ctx context.Context, p string, permission metadata.Permission) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "mkdir").Inc()

	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return err
	}

	// Check if path already exists as a file
	if info, err := os.Stat(fullPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s exists as a file", metadata.ErrAlreadyExists, logical)
		}
		// Directory already exists - this is not an error for Mkdirs
		return nil
	}

	if err := os.MkdirAll(fullPath, metadata.DefaultDirPermission.FileMode()); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", logical, err)
	}
	if err := os.Chmod(fullPath, permission.FileMode()); err != nil {
		return fmt.Errorf("failed to set permission on %s: %w", logical, err)
	}

	a.logger.Debug("Directory created", zap.String("path", logical), zap.Stringer("permission", permission))
	return nil
}

// GetFileStatus returns the status of a file or directory
func (a *LocalFS) GetFileStatus(ctx context.Context, p string) (*metadata.FileStatus, error) {
	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, notExist(logical, err)
	}

	return a.toFileStatus(logical, info), nil
}

// ListStatus returns the status of every child of a directory, sorted by
// name, or the status of the file itself.
func (a *LocalFS) ListStatus(ctx context.Context, p string) ([]*metadata.FileStatus, error) {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "list").Inc()

	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, notExist(logical, err)
	}
	if !info.IsDir() {
		return []*metadata.FileStatus{a.toFileStatus(logical, info)}, nil
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", logical, err)
	}

	children := make([]*metadata.FileStatus, 0, len(entries))
	for _, entry := range entries {
		childInfo, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info
			continue
		}
		children = append(children, a.toFileStatus(path.Join(logical, entry.Name()), childInfo))
	}

	sort.Slice(children, func(i, j int) bool {
		return children[i].Path < children[j].Path
	})
	return children, nil
}

func (a *LocalFS) toFileStatus(logical string, info os.FileInfo) *metadata.FileStatus {
	uid, gid, atime := extractOwnership(info)

	status := &metadata.FileStatus{
		Path:             logical,
		IsDir:            info.IsDir(),
		Replication:      1,
		BlockSize:        a.opts.BlockSize,
		ModificationTime: info.ModTime(),
		AccessTime:       atime,
		Permission:       metadata.PermissionFromMode(info.Mode()),
		Owner:            userName(uid),
		Group:            groupName(gid),
	}
	if !info.IsDir() {
		status.Length = info.Size()
	}
	return status
}
