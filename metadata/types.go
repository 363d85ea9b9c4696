// Package metadata defines the record types exchanged between the adapter and
// its delegates, the sentinel errors they share and the attribute store used
// by object-store delegates.
package metadata

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"
)

// Permission is a POSIX permission mask (the low nine bits plus sticky).
type Permission uint16

// Default permissions applied when a caller passes none.
const (
	DefaultFilePermission Permission = 0o644
	DefaultDirPermission  Permission = 0o755
)

// ParsePermission parses an octal string such as "0755" or "644".
func ParsePermission(s string) (Permission, error) {
	v, err := strconv.ParseUint(s, 8, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid permission %q: %w", s, err)
	}
	if v > 0o1777 {
		return 0, fmt.Errorf("invalid permission %q: out of range", s)
	}
	return Permission(v), nil
}

// FileMode converts the permission into an fs.FileMode.
func (p Permission) FileMode() fs.FileMode {
	m := fs.FileMode(p) & fs.ModePerm
	if p&0o1000 != 0 {
		m |= fs.ModeSticky
	}
	return m
}

// PermissionFromMode extracts the permission bits of an fs.FileMode.
func PermissionFromMode(m fs.FileMode) Permission {
	p := Permission(m.Perm())
	if m&fs.ModeSticky != 0 {
		p |= 0o1000
	}
	return p
}

// String renders the permission the way ls does, e.g. "rwxr-xr-x".
func (p Permission) String() string {
	s := p.FileMode().Perm().String()[1:]
	if p&0o1000 != 0 {
		if s[8] == 'x' {
			s = s[:8] + "t"
		} else {
			s = s[:8] + "T"
		}
	}
	return s
}

// Octal renders the permission as a four digit octal string.
func (p Permission) Octal() string {
	return fmt.Sprintf("%04o", uint16(p))
}

// CreateFlag is a set of create-mode bits.
type CreateFlag uint8

const (
	CreateFlagCreate CreateFlag = 1 << iota
	CreateFlagOverwrite
	CreateFlagAppend
	CreateFlagSyncBlock
	CreateFlagLazyPersist
)

// Has reports whether all bits of f are set.
func (c CreateFlag) Has(f CreateFlag) bool {
	return c&f == f
}

// String lists the set flags, e.g. "[CREATE, OVERWRITE]".
func (c CreateFlag) String() string {
	names := []struct {
		flag CreateFlag
		name string
	}{
		{CreateFlagCreate, "CREATE"},
		{CreateFlagOverwrite, "OVERWRITE"},
		{CreateFlagAppend, "APPEND"},
		{CreateFlagSyncBlock, "SYNC_BLOCK"},
		{CreateFlagLazyPersist, "LAZY_PERSIST"},
	}
	var set []string
	for _, n := range names {
		if c.Has(n.flag) {
			set = append(set, n.name)
		}
	}
	return "[" + strings.Join(set, ", ") + "]"
}

// ChecksumOpt describes the checksum a writer should produce.
type ChecksumOpt struct {
	Type             string
	BytesPerChecksum int
}

func (o *ChecksumOpt) String() string {
	if o == nil {
		return "null"
	}
	return fmt.Sprintf("%s:%d", o.Type, o.BytesPerChecksum)
}

// Progressable is notified while a long write makes progress.
type Progressable interface {
	Progress()
}

// ProgressFunc adapts a plain function to Progressable.
type ProgressFunc func()

// Progress calls f.
func (f ProgressFunc) Progress() { f() }

// FileStatus describes a file or directory.
type FileStatus struct {
	Path             string     `json:"path"`
	Length           int64      `json:"length"`
	IsDir            bool       `json:"is_dir"`
	Replication      int16      `json:"replication"`
	BlockSize        int64      `json:"block_size"`
	ModificationTime time.Time  `json:"modification_time"`
	AccessTime       time.Time  `json:"access_time"`
	Permission       Permission `json:"permission"`
	Owner            string     `json:"owner"`
	Group            string     `json:"group"`
}

// BlockLocation describes where a byte range of a file is stored.
type BlockLocation struct {
	Names  []string `json:"names"`
	Hosts  []string `json:"hosts"`
	Offset int64    `json:"offset"`
	Length int64    `json:"length"`
}

// FileChecksum is an opaque checksum of a file's content.
type FileChecksum struct {
	Algorithm string `json:"algorithm"`
	Bytes     []byte `json:"bytes"`
}

// Length returns the checksum length in bytes.
func (c *FileChecksum) Length() int {
	return len(c.Bytes)
}

func (c *FileChecksum) String() string {
	return c.Algorithm + ": " + hex.EncodeToString(c.Bytes)
}

// FsStatus reports the capacity and usage of a file system.
type FsStatus struct {
	Capacity  int64 `json:"capacity"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// ServerDefaults are the defaults a delegate applies to new files.
type ServerDefaults struct {
	BlockSize           int64  `json:"block_size"`
	BytesPerChecksum    int    `json:"bytes_per_checksum"`
	WritePacketSize     int    `json:"write_packet_size"`
	Replication         int16  `json:"replication"`
	FileBufferSize      int    `json:"file_buffer_size"`
	EncryptDataTransfer bool   `json:"encrypt_data_transfer"`
	TrashInterval       int64  `json:"trash_interval"`
	ChecksumType        string `json:"checksum_type"`
}
