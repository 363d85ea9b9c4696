package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ebogdum/fsbridge/auth"
	"github.com/ebogdum/fsbridge/backends/localfs"
	"github.com/ebogdum/fsbridge/config"
	"github.com/ebogdum/fsbridge/core"
	"github.com/ebogdum/fsbridge/core/log"
	"github.com/ebogdum/fsbridge/invocation"
	"github.com/ebogdum/fsbridge/server/handlers"
)

const (
	rootKey  = "root-key"
	aliceKey = "alice-key"
)

type testServer struct {
	*httptest.Server
	root string
}

func newTestServer(t *testing.T, serverConfig config.ServerConfig) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	root := t.TempDir()

	uri := &url.URL{Scheme: localfs.Scheme, Path: filepath.ToSlash(root)}
	adapter, err := core.NewAdapter(context.Background(), localfs.NewLocalFS(localfs.Options{}, logger), uri,
		log.New("adapter", logger, nil), core.DefaultPolicy())
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close(context.Background()) })

	authenticator := auth.NewAPIKeyAuthenticator([]string{rootKey, "alice:" + aliceKey})
	authorizer := auth.NewUnixAuthorizer(adapter.GetFileStatus)

	router := NewRouter(adapter, authenticator, authorizer, &serverConfig, log.RedactNone, logger)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, root: root}
}

func (s *testServer) do(t *testing.T, method, path, key string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthAndAuthentication(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	resp := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.True(t, invocation.Valid(resp.Header.Get(invocation.Header)))

	resp = s.do(t, http.MethodGet, "/v1/status/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/status/", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var errResp handlers.ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "AUTHENTICATION_FAILED", errResp.Code)
}

func TestInboundInvocationIDIsEchoed(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	id := invocation.Current(invocation.Begin(context.Background()))

	req, err := http.NewRequest(http.MethodGet, s.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(invocation.Header, id)
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, id, resp.Header.Get(invocation.Header))
}

func TestFileLifecycle(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	resp := s.do(t, http.MethodPut, "/v1/files/docs/readme.txt?permission=0640", rootKey, strings.NewReader("hello fsbridge"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var info handlers.FileInfo
	decode(t, resp, &info)
	assert.Equal(t, "/docs/readme.txt", info.Path)
	assert.Equal(t, "readme.txt", info.Name)
	assert.Equal(t, "file", info.Type)
	assert.Equal(t, int64(14), info.Length)
	assert.Equal(t, "0640", info.Permission)

	resp = s.do(t, http.MethodPut, "/v1/files/docs/readme.txt", rootKey, strings.NewReader("hi"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/files/docs/readme.txt", rootKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))
	assert.Equal(t, "2", resp.Header.Get("X-FSBridge-Length"))

	resp = s.do(t, http.MethodHead, "/v1/files/docs/readme.txt", rootKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "file", resp.Header.Get("X-FSBridge-Type"))

	resp = s.do(t, http.MethodHead, "/v1/files/docs/missing", rootKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/files/docs/", rootKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing handlers.DirectoryListingResponse
	decode(t, resp, &listing)
	assert.Equal(t, "/docs", listing.Path)
	require.Equal(t, 1, listing.Count)
	assert.Equal(t, "/docs/readme.txt", listing.Items[0].Path)

	resp = s.do(t, http.MethodDelete, "/v1/files/docs/readme.txt", rootKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted handlers.DeleteResponse
	decode(t, resp, &deleted)
	assert.True(t, deleted.Deleted)

	resp = s.do(t, http.MethodDelete, "/v1/files/docs/readme.txt", rootKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &deleted)
	assert.False(t, deleted.Deleted)

	resp = s.do(t, http.MethodGet, "/v1/files/docs/readme.txt", rootKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDirectories(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	resp := s.do(t, http.MethodPost, "/v1/directories/a/b/c?permission=0750", rootKey, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var info handlers.FileInfo
	decode(t, resp, &info)
	assert.Equal(t, "directory", info.Type)
	assert.Equal(t, "0750", info.Permission)

	resp = s.do(t, http.MethodGet, "/v1/directories/a", rootKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing handlers.DirectoryListingResponse
	decode(t, resp, &listing)
	require.Len(t, listing.Items, 1)
	assert.Equal(t, "/a/b", listing.Items[0].Path)

	resp = s.do(t, http.MethodDelete, "/v1/files/a", rootKey, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/v1/files/a?recursive=true", rootKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/v1/files/a?recursive=maybe", rootKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvalidPaths(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	tests := []struct {
		name string
		path string
	}{
		{"dot dot", "/v1/status/a/../../etc"},
		{"encoded dot dot", "/v1/status/a/%2e%2e/b"},
		{"backslash", "/v1/status/a%5Cb"},
		{"control character", "/v1/status/a%01b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, s.URL+"/healthz", nil)
			require.NoError(t, err)
			req.URL.Opaque = tt.path
			req.Header.Set("Authorization", "Bearer "+rootKey)
			resp, err := s.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRenameChecksumAndBlocks(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	resp := s.do(t, http.MethodPut, "/v1/files/src.bin", rootKey, strings.NewReader("0123456789"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body, err := json.Marshal(handlers.RenameRequest{Source: "/src.bin", Destination: "/moved/dst.bin"})
	require.NoError(t, err)
	resp = s.do(t, http.MethodPost, "/v1/rename", rootKey, bytes.NewReader(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info handlers.FileInfo
	decode(t, resp, &info)
	assert.Equal(t, "/moved/dst.bin", info.Path)

	resp = s.do(t, http.MethodPost, "/v1/rename", rootKey, strings.NewReader(`{"src":"/src.bin"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/checksum/moved/dst.bin", rootKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var checksum handlers.ChecksumResponse
	decode(t, resp, &checksum)
	assert.NotEmpty(t, checksum.Algorithm)
	assert.NotEmpty(t, checksum.Checksum)

	resp = s.do(t, http.MethodGet, "/v1/blocks/moved/dst.bin", rootKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var blocks handlers.BlockLocationsResponse
	decode(t, resp, &blocks)
	assert.Equal(t, int64(10), blocks.Length)
	assert.NotEmpty(t, blocks.Locations)

	resp = s.do(t, http.MethodGet, "/v1/blocks/moved/dst.bin?start=-1", rootKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReplicationBounds(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	tests := []struct {
		name        string
		replication string
		wantStatus  int
	}{
		{"default", "", http.StatusCreated},
		{"one", "1", http.StatusOK},
		{"max int16", "32767", http.StatusOK},
		{"zero", "0", http.StatusBadRequest},
		{"negative", "-1", http.StatusBadRequest},
		{"below int16", "-70000", http.StatusBadRequest},
		{"above int16", "70000", http.StatusBadRequest},
		{"not a number", "three", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/v1/files/replicated.txt"
			if tt.replication != "" {
				path += "?replication=" + url.QueryEscape(tt.replication)
			}
			resp := s.do(t, http.MethodPut, path, rootKey, strings.NewReader("r"))
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	resp := s.do(t, http.MethodPatch, "/v1/attributes/replicated.txt", rootKey, strings.NewReader(`{"replication":-3}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = s.do(t, http.MethodPatch, "/v1/attributes/replicated.txt", rootKey, strings.NewReader(`{"replication":70000}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPatchAttributes(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	resp := s.do(t, http.MethodPut, "/v1/files/data.txt", rootKey, strings.NewReader("x"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	body, err := json.Marshal(map[string]interface{}{
		"permission":  "0600",
		"mtime":       mtime,
		"replication": 3,
	})
	require.NoError(t, err)

	resp = s.do(t, http.MethodPatch, "/v1/attributes/data.txt", rootKey, bytes.NewReader(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var attrs handlers.AttributesResponse
	decode(t, resp, &attrs)
	assert.Equal(t, "0600", attrs.Permission)
	assert.Equal(t, mtime.Format(time.RFC3339Nano), attrs.MTime)
	require.NotNil(t, attrs.ReplicationApplied)
	assert.False(t, *attrs.ReplicationApplied)

	resp = s.do(t, http.MethodPatch, "/v1/attributes/data.txt", rootKey, strings.NewReader(`{"permission":"999"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPermissionChecks(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	resp := s.do(t, http.MethodPut, "/v1/files/private.txt?permission=0600", rootKey, strings.NewReader("secret"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = s.do(t, http.MethodPost, "/v1/directories/public?permission=0777", rootKey, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/files/private.txt", aliceKey, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var errResp handlers.ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "PERMISSION_DENIED", errResp.Code)

	resp = s.do(t, http.MethodPut, "/v1/files/public/notes.txt", aliceKey, strings.NewReader("mine"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPatch, "/v1/attributes/public/notes.txt", aliceKey, strings.NewReader(`{"owner":"alice"}`))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPut, "/v1/fs/verify_checksum", aliceKey, strings.NewReader(`{"verify":false}`))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFs(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	resp := s.do(t, http.MethodGet, "/v1/fs", rootKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fs handlers.FsResponse
	decode(t, resp, &fs)
	assert.True(t, strings.HasPrefix(fs.URI, "file://"))
	assert.Equal(t, -1, fs.DefaultPort)
	assert.True(t, fs.Lenient)
	require.NotNil(t, fs.Defaults)
	assert.Positive(t, fs.Defaults.BlockSize)

	resp = s.do(t, http.MethodPut, "/v1/fs/verify_checksum", rootKey, strings.NewReader(`{"verify":false}`))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPut, "/v1/fs/verify_checksum", rootKey, strings.NewReader(`{}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		resp := s.do(t, http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
