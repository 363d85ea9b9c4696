//go:build windows

package localfs

import (
	"os"
	"time"
)

// extractOwnership has no owner information on Windows; the access time
// falls back to the modification time.
func extractOwnership(info os.FileInfo) (uid, gid string, atime time.Time) {
	return "", "", info.ModTime()
}
