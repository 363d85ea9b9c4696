package core

import (
	"context"
	"time"

	"github.com/ebogdum/fsbridge/invocation"
	"github.com/ebogdum/fsbridge/metadata"
)

func (a *Adapter) SetPermission(ctx context.Context, path string, permission metadata.Permission) (err error) {
	defer a.observe("set_permission", time.Now(), &err)
	a.logger.Finest(ctx, "%s: setPermission(f: %s, permission: %s)", invocation.Current(ctx), path, permission)

	if err = a.CheckPath(path); err != nil {
		return err
	}
	return a.delegate.SetPermission(ctx, path, permission)
}

// SetOwner changes owner and group. An empty value leaves that attribute
// unchanged.
func (a *Adapter) SetOwner(ctx context.Context, path, username, groupname string) (err error) {
	defer a.observe("set_owner", time.Now(), &err)
	a.logger.Finest(ctx, "%s: setOwner(f: %s, username: %s, groupname: %s)", invocation.Current(ctx), path, username, groupname)

	if err = a.CheckPath(path); err != nil {
		return err
	}
	return a.delegate.SetOwner(ctx, path, username, groupname)
}

// SetTimes changes modification and access times. A zero time leaves that
// attribute unchanged.
func (a *Adapter) SetTimes(ctx context.Context, path string, mtime, atime time.Time) (err error) {
	defer a.observe("set_times", time.Now(), &err)
	a.logger.Finest(ctx, "%s: setTimes(f: %s, mtime: %s, atime: %s)", invocation.Current(ctx), path, formatTime(mtime), formatTime(atime))

	if err = a.CheckPath(path); err != nil {
		return err
	}
	return a.delegate.SetTimes(ctx, path, mtime, atime)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unchanged"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
