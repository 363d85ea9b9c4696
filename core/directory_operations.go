package core

import (
	"context"
	"time"

	"github.com/ebogdum/fsbridge/invocation"
	"github.com/ebogdum/fsbridge/metadata"
)

// Mkdir creates a directory. Delegates always create missing parents, so
// createParent=false is resolved by the adapter's Policy.
func (a *Adapter) Mkdir(ctx context.Context, dir string, permission metadata.Permission, createParent bool) (err error) {
	defer a.observe("mkdir", time.Now(), &err)
	a.logger.Finest(ctx, "%s: mkdir(dir: %s, permission: %s, createParent %t)", invocation.Current(ctx), dir, permission, createParent)

	if err = a.CheckPath(dir); err != nil {
		return err
	}
	if !createParent {
		if err = a.overrideCreateParent(ctx, dir); err != nil {
			return err
		}
	}

	return a.delegate.Mkdirs(ctx, dir, permission)
}

// ListStatus returns the status of every child of a directory.
func (a *Adapter) ListStatus(ctx context.Context, path string) (entries []*metadata.FileStatus, err error) {
	defer a.observe("list_status", time.Now(), &err)
	a.logger.Finest(ctx, "%s: listStatus(f: %s)", invocation.Current(ctx), path)

	if err = a.CheckPath(path); err != nil {
		return nil, err
	}
	return a.delegate.ListStatus(ctx, path)
}
