//go:build linux

package localfs

import (
	"syscall"
	"time"
)

// accessTime extracts the access time from syscall.Stat_t on Linux
func accessTime(stat *syscall.Stat_t) time.Time {
	return time.Unix(int64(stat.Atim.Sec), int64(stat.Atim.Nsec)) //nolint:unconvert // int32 on 32-bit platforms
}
