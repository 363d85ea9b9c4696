package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/locks"
	"github.com/ebogdum/fsbridge/metadata"
	raftstore "github.com/ebogdum/fsbridge/metadata/raft"
)

func TestParseFilePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"empty is root", "", "/", false},
		{"slash is root", "/", "/", false},
		{"file", "a/b/file.txt", "/a/b/file.txt", false},
		{"trailing slash", "a/b/", "/a/b", false},
		{"duplicate slashes", "a//b", "/a/b", false},
		{"dot dot", "a/../b", "", true},
		{"leading dot dot", "../etc/passwd", "", true},
		{"dot", "a/./b", "", true},
		{"backslash", "a\\b", "", true},
		{"null byte", "a\x00b", "", true},
		{"dots inside a name", "a/..b/c..", "/a/..b/c..", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilePath(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, metadata.ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrapped: %w", metadata.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{metadata.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
		{metadata.ErrInvalidPath, http.StatusBadRequest, "INVALID_PATH"},
		{metadata.ErrParentNotFound, http.StatusNotFound, "PARENT_NOT_FOUND"},
		{metadata.ErrNotEmpty, http.StatusConflict, "DIRECTORY_NOT_EMPTY"},
		{metadata.ErrNotSupported, http.StatusNotImplemented, "NOT_SUPPORTED"},
		{metadata.ErrBackendDisabled, http.StatusServiceUnavailable, "BACKEND_DISABLED"},
		{fmt.Errorf("%w: rename:/a", locks.ErrLockHeld), http.StatusLocked, "LOCKED"},
		{auth.ErrPermissionDenied, http.StatusForbidden, "PERMISSION_DENIED"},
		{fmt.Errorf("%w: leader is \"node-2\"", raftstore.ErrNotLeader), http.StatusServiceUnavailable, "NOT_LEADER"},
		{badRequest("bad %s", "thing"), http.StatusBadRequest, "BAD_REQUEST"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
