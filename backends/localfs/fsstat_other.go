//go:build !linux && !darwin && !freebsd && !windows

package localfs

import (
	"fmt"

	"github.com/ebogdum/fsbridge/metadata"
)

func volumeStatus(root string) (*metadata.FsStatus, error) {
	return nil, fmt.Errorf("%w: volume status on this platform", metadata.ErrNotSupported)
}
