package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

// SetPermission records a permission in the attribute store.
func (a *S3FS) SetPermission(ctx context.Context, p string, permission metadata.Permission) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "set_permission").Inc()

	return a.updateAttributes(ctx, p, func(attrs *metadata.Attributes) {
		attrs.Permission = permission
	})
}

// SetOwner records owner and group. Empty values are left unchanged.
func (a *S3FS) SetOwner(ctx context.Context, p, username, groupname string) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "set_owner").Inc()

	if username == "" && groupname == "" {
		_, err := a.existing(ctx, p)
		return err
	}
	return a.updateAttributes(ctx, p, func(attrs *metadata.Attributes) {
		if username != "" {
			attrs.Owner = username
		}
		if groupname != "" {
			attrs.Group = groupname
		}
	})
}

// SetTimes records modification and access times. Zero values are left
// unchanged.
func (a *S3FS) SetTimes(ctx context.Context, p string, mtime, atime time.Time) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "set_times").Inc()

	if mtime.IsZero() && atime.IsZero() {
		_, err := a.existing(ctx, p)
		return err
	}
	return a.updateAttributes(ctx, p, func(attrs *metadata.Attributes) {
		if !mtime.IsZero() {
			attrs.MTime = mtime.UTC()
		}
		if !atime.IsZero() {
			attrs.ATime = atime.UTC()
		}
	})
}

func (a *S3FS) existing(ctx context.Context, p string) (string, error) {
	logical, err := logicalPath(p)
	if err != nil {
		return "", err
	}
	if _, err := a.stat(ctx, logical); err != nil {
		return "", err
	}
	return logical, nil
}

// updateAttributes applies fn to the stored attributes of an existing path.
func (a *S3FS) updateAttributes(ctx context.Context, p string, fn func(*metadata.Attributes)) error {
	if a.store == nil {
		return fmt.Errorf("%w: no attribute store configured", metadata.ErrNotSupported)
	}

	logical, err := a.existing(ctx, p)
	if err != nil {
		return err
	}

	attrs, err := a.store.Get(ctx, logical)
	if errors.Is(err, metadata.ErrNotFound) {
		attrs = &metadata.Attributes{Path: logical}
	} else if err != nil {
		return fmt.Errorf("failed to get attributes of %s: %w", logical, err)
	}

	fn(attrs)
	if err := a.store.Put(ctx, attrs); err != nil {
		return fmt.Errorf("failed to put attributes of %s: %w", logical, err)
	}
	return nil
}

// putAttributes replaces the attributes of a newly written path.
func (a *S3FS) putAttributes(ctx context.Context, attrs *metadata.Attributes) error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Put(ctx, attrs); err != nil {
		return fmt.Errorf("failed to put attributes of %s: %w", attrs.Path, err)
	}
	return nil
}
