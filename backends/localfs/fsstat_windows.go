//go:build windows

package localfs

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/ebogdum/fsbridge/metadata"
)

// volumeStatus reports the capacity of the volume holding root.
func volumeStatus(root string) (*metadata.FsStatus, error) {
	dir, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %s: %w", root, err)
	}

	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &available, &total, &free); err != nil {
		return nil, fmt.Errorf("failed to query free space of %s: %w", root, err)
	}

	return &metadata.FsStatus{
		Capacity:  int64(total),
		Used:      int64(total - free),
		Remaining: int64(available),
	}, nil
}
