package handlers

import (
	"net/http"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/server/middleware"
)

// FileInfo represents file/directory information for JSON responses
type FileInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Length      int64  `json:"length"`
	Replication int16  `json:"replication"`
	BlockSize   int64  `json:"block_size"`
	Permission  string `json:"permission"`
	Owner       string `json:"owner"`
	Group       string `json:"group"`
	MTime       string `json:"mtime,omitempty"`
	ATime       string `json:"atime,omitempty"`
}

func newFileInfo(status *metadata.FileStatus) FileInfo {
	info := FileInfo{
		Name:        path.Base(status.Path),
		Path:        status.Path,
		Type:        "file",
		Length:      status.Length,
		Replication: status.Replication,
		BlockSize:   status.BlockSize,
		Permission:  status.Permission.Octal(),
		Owner:       status.Owner,
		Group:       status.Group,
		MTime:       formatTime(status.ModificationTime),
		ATime:       formatTime(status.AccessTime),
	}
	if status.IsDir {
		info.Type = "directory"
	}
	if status.Path == "/" {
		info.Name = ""
	}
	return info
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// setStatusHeaders describes a file in X-FSBridge-* response headers.
func setStatusHeaders(w http.ResponseWriter, status *metadata.FileStatus) {
	info := newFileInfo(status)
	w.Header().Set("X-FSBridge-Type", info.Type)
	w.Header().Set("X-FSBridge-Length", strconv.FormatInt(info.Length, 10))
	w.Header().Set("X-FSBridge-Permission", info.Permission)
	w.Header().Set("X-FSBridge-Owner", info.Owner)
	w.Header().Set("X-FSBridge-Group", info.Group)
	if info.MTime != "" {
		w.Header().Set("X-FSBridge-MTime", info.MTime)
	}
}

// authorize resolves the caller of r and checks perm on p. On failure the
// error response has been sent and ok is false.
func authorize(w http.ResponseWriter, r *http.Request, authorizer auth.Authorizer, logger *zap.Logger,
	p string, perm auth.PermissionType) (userID string, ok bool) {
	userID, ok = middleware.GetUserID(r.Context())
	if !ok {
		SendErrorResponse(w, logger, auth.ErrAuthenticationFailed)
		return "", false
	}

	if err := authorizer.Authorize(r.Context(), userID, p, perm); err != nil {
		SendErrorResponse(w, logger, err)
		return "", false
	}
	return userID, true
}

// pathAndAuthorize combines requestPath and authorize.
func pathAndAuthorize(w http.ResponseWriter, r *http.Request, authorizer auth.Authorizer, logger *zap.Logger,
	perm auth.PermissionType) (p, userID string, ok bool) {
	p, err := requestPath(r)
	if err != nil {
		SendErrorResponse(w, logger, err)
		return "", "", false
	}
	userID, ok = authorize(w, r, authorizer, logger, p, perm)
	return p, userID, ok
}

// queryReplication parses the replication parameter, which must fit a
// positive int16.
func queryReplication(r *http.Request) (int16, error) {
	v := r.URL.Query().Get("replication")
	if v == "" {
		return 1, nil
	}
	n, err := strconv.ParseInt(v, 10, 16)
	if err != nil || n < 1 {
		return 0, badRequest("invalid replication %q", v)
	}
	return int16(n), nil
}

func queryBool(r *http.Request, name string, def bool) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequest("invalid %s %q", name, v)
	}
	return b, nil
}

func queryInt64(r *http.Request, name string, def int64) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, badRequest("invalid %s %q", name, v)
	}
	return n, nil
}

func queryPermission(r *http.Request, def metadata.Permission) (metadata.Permission, error) {
	v := r.URL.Query().Get("permission")
	if v == "" {
		return def, nil
	}
	p, err := metadata.ParsePermission(v)
	if err != nil {
		return 0, badRequest("%v", err)
	}
	return p, nil
}
