package localfs

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metrics"
)

// SetPermission changes the permission bits of a path.
func (a *LocalFS) SetPermission(ctx context.Context, p string, permission metadata.Permission) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "set_permission").Inc()

	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Chmod(fullPath, permission.FileMode()); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", logical, notExist(logical, err))
	}
	return nil
}

// SetOwner changes owner and group. Names are resolved through the local
// user database; numeric ids are accepted as-is.
func (a *LocalFS) SetOwner(ctx context.Context, p, username, groupname string) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "set_owner").Inc()

	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return err
	}
	if username == "" && groupname == "" {
		return nil
	}

	uid, gid := -1, -1
	if username != "" {
		if uid, err = lookupUID(username); err != nil {
			return err
		}
	}
	if groupname != "" {
		if gid, err = lookupGID(groupname); err != nil {
			return err
		}
	}

	if err := os.Lchown(fullPath, uid, gid); err != nil {
		return fmt.Errorf("failed to chown %s: %w", logical, notExist(logical, err))
	}
	return nil
}

// SetTimes changes modification and access times. Zero values keep the
// current time of that kind.
func (a *LocalFS) SetTimes(ctx context.Context, p string, mtime, atime time.Time) error {
	metrics.BackendOpsTotal.WithLabelValues(backendType, "set_times").Inc()

	logical, fullPath, err := a.resolve(p)
	if err != nil {
		return err
	}
	if mtime.IsZero() && atime.IsZero() {
		return nil
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return notExist(logical, err)
	}
	if mtime.IsZero() {
		mtime = info.ModTime()
	}
	if atime.IsZero() {
		_, _, atime = extractOwnership(info)
	}

	if err := os.Chtimes(fullPath, atime, mtime); err != nil {
		return fmt.Errorf("failed to set times on %s: %w", logical, err)
	}
	return nil
}

var (
	userNames  sync.Map // uid -> name
	groupNames sync.Map // gid -> name
)

func userName(uid string) string {
	if uid == "" {
		return ""
	}
	if name, ok := userNames.Load(uid); ok {
		return name.(string)
	}
	name := uid
	if u, err := user.LookupId(uid); err == nil {
		name = u.Username
	}
	userNames.Store(uid, name)
	return name
}

func groupName(gid string) string {
	if gid == "" {
		return ""
	}
	if name, ok := groupNames.Load(gid); ok {
		return name.(string)
	}
	name := gid
	if g, err := user.LookupGroupId(gid); err == nil {
		name = g.Name
	}
	groupNames.Store(gid, name)
	return name
}

func lookupUID(username string) (int, error) {
	if id, err := strconv.Atoi(username); err == nil {
		return id, nil
	}
	u, err := user.Lookup(username)
	if err != nil {
		return -1, fmt.Errorf("%w: unknown user %q", metadata.ErrNotFound, username)
	}
	return strconv.Atoi(u.Uid)
}

func lookupGID(groupname string) (int, error) {
	if id, err := strconv.Atoi(groupname); err == nil {
		return id, nil
	}
	g, err := user.LookupGroup(groupname)
	if err != nil {
		return -1, fmt.Errorf("%w: unknown group %q", metadata.ErrNotFound, groupname)
	}
	return strconv.Atoi(g.Gid)
}
