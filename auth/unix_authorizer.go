package auth

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/ebogdum/fsbridge/metadata"
)

// StatFunc reports the status of a path, typically the adapter's
// GetFileStatus.
type StatFunc func(ctx context.Context, path string) (*metadata.FileStatus, error)

// UnixAuthorizer implements Unix-style permission checking against the
// owner, group and permission bits the file system reports.
type UnixAuthorizer struct {
	stat StatFunc
}

// NewUnixAuthorizer creates a new Unix-style authorizer
func NewUnixAuthorizer(stat StatFunc) *UnixAuthorizer {
	return &UnixAuthorizer{stat: stat}
}

// Authorize checks if a user has the specified permission for a path. Writes
// to a missing path are checked against its nearest existing ancestor.
func (a *UnixAuthorizer) Authorize(ctx context.Context, userID string, p string, perm PermissionType) error {
	// Root user bypasses all permission checks
	if userID == SuperUser {
		return nil
	}

	status, err := a.stat(ctx, p)
	if errors.Is(err, metadata.ErrNotFound) {
		if perm == ReadPerm {
			// Let the operation itself report the missing path.
			return nil
		}
		return a.checkAncestor(ctx, userID, p)
	}
	if err != nil {
		return fmt.Errorf("failed to get status for authorization: %w", err)
	}

	if perm == DeletePerm && p != "/" {
		// Removing an entry modifies its parent directory
		return a.checkAncestor(ctx, userID, p)
	}
	return checkPermissionBits(status, userID, perm)
}

func (a *UnixAuthorizer) checkAncestor(ctx context.Context, userID string, p string) error {
	for parent := path.Dir(p); ; parent = path.Dir(parent) {
		status, err := a.stat(ctx, parent)
		if err == nil {
			return checkPermissionBits(status, userID, WritePerm)
		}
		if !errors.Is(err, metadata.ErrNotFound) {
			return fmt.Errorf("failed to get parent status for authorization: %w", err)
		}
		if parent == "/" || parent == "." {
			return ErrPermissionDenied
		}
	}
}

// checkPermissionBits selects the owner, group or other triplet and tests
// the bit for perm.
func checkPermissionBits(status *metadata.FileStatus, userID string, perm PermissionType) error {
	mode := uint16(status.Permission)

	var shift uint
	switch {
	case userID == status.Owner:
		shift = 6
	case userID == status.Group:
		shift = 3
	default:
		shift = 0
	}

	var bit uint16 = 4 // read
	if perm != ReadPerm {
		bit = 2 // write
	}

	if (mode>>shift)&bit == 0 {
		return fmt.Errorf("%w: %s access to %s", ErrPermissionDenied, perm, status.Path)
	}
	return nil
}
