package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ebogdum/fsbridge/internal/pathutil"
	"github.com/ebogdum/fsbridge/metadata"
)

// ParseFilePath turns the wildcard part of a route into an absolute path.
// A trailing slash is ignored and the empty path is the root. Backslashes,
// control characters and dot segments are rejected rather than cleaned so a
// request never addresses a different path than the one it names.
func ParseFilePath(urlPath string) (string, error) {
	cleanPath := strings.Trim(urlPath, "/")
	if cleanPath == "" {
		return "/", nil
	}

	if strings.Contains(cleanPath, "\\") {
		return "", fmt.Errorf("%w: backslash in path", metadata.ErrInvalidPath)
	}
	if err := pathutil.ValidateChars(cleanPath); err != nil {
		return "", err
	}
	if pathutil.HasDotSegment(cleanPath) {
		return "", fmt.Errorf("%w: dot segment in path", metadata.ErrInvalidPath)
	}

	return pathutil.Clean("/" + cleanPath)
}

// requestPath parses the wildcard route parameter of r. chi matches on the
// raw path when one is set, leaving the parameter escaped.
func requestPath(r *http.Request) (string, error) {
	param := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(param)
		if err != nil {
			return "", fmt.Errorf("%w: %v", metadata.ErrInvalidPath, err)
		}
		param = unescaped
	}
	return ParseFilePath(param)
}
