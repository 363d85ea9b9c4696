//go:build openbsd

package localfs

import (
	"syscall"
	"time"
)

// accessTime extracts the access time from syscall.Stat_t on OpenBSD
func accessTime(stat *syscall.Stat_t) time.Time {
	return time.Unix(int64(stat.Atim.Sec), int64(stat.Atim.Nsec))
}
