//go:build !windows

package localfs

import (
	"os"
	"strconv"
	"syscall"
	"time"
)

// extractOwnership returns the numeric owner, group and access time of a file.
func extractOwnership(info os.FileInfo) (uid, gid string, atime time.Time) {
	atime = info.ModTime()

	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		uid = strconv.FormatUint(uint64(stat.Uid), 10)
		gid = strconv.FormatUint(uint64(stat.Gid), 10)
		atime = accessTime(stat)
	}

	return
}
