//go:build linux || darwin || freebsd

package localfs

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ebogdum/fsbridge/metadata"
)

// volumeStatus reports the capacity of the volume holding root.
func volumeStatus(root string) (*metadata.FsStatus, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return nil, fmt.Errorf("failed to statfs %s: %w", root, err)
	}

	blockSize := int64(st.Bsize)
	capacity := int64(st.Blocks) * blockSize
	free := int64(st.Bfree) * blockSize

	return &metadata.FsStatus{
		Capacity:  capacity,
		Used:      capacity - free,
		Remaining: int64(st.Bavail) * blockSize,
	}, nil
}
