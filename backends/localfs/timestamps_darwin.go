//go:build darwin

package localfs

import (
	"syscall"
	"time"
)

// accessTime extracts the access time from syscall.Stat_t on macOS
func accessTime(stat *syscall.Stat_t) time.Time {
	return time.Unix(stat.Atimespec.Sec, stat.Atimespec.Nsec)
}
