// Package pathutil provides path handling utilities shared by the adapter and
// its delegates.
package pathutil

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/ebogdum/fsbridge/metadata"
)

// Separator is the hierarchical path separator.
const Separator = "/"

// HasDotSegment reports whether any non-empty segment of p is "." or "..".
func HasDotSegment(p string) bool {
	for _, segment := range strings.Split(p, Separator) {
		if segment == "." || segment == ".." {
			return true
		}
	}
	return false
}

// ValidateChars rejects paths containing NUL or control characters.
func ValidateChars(p string) error {
	// Null bytes can be used to bypass suffix checks
	if strings.Contains(p, "\x00") {
		return fmt.Errorf("%w: path contains a null byte", metadata.ErrInvalidPath)
	}

	for _, char := range p {
		if char < 32 && char != '\t' {
			return fmt.Errorf("%w: path contains control character %#x", metadata.ErrInvalidPath, char)
		}
	}

	return nil
}

// Clean normalizes an absolute path. It rejects paths that would climb above
// the root.
func Clean(p string) (string, error) {
	if p == "" {
		return "/", nil
	}

	depth := 0
	for _, part := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		switch part {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", metadata.ErrForbidden
			}
		default:
			depth++
		}
	}

	return path.Clean("/" + strings.TrimPrefix(p, "/")), nil
}

// Parent returns the parent of a cleaned absolute path. The parent of "/" is "/".
func Parent(p string) string {
	return path.Dir(p)
}

// SafeJoin safely joins a root path with a relative path, ensuring
// the result stays within the root directory boundary.
// Returns an error if the path would escape the root.
func SafeJoin(root, rel string) (string, error) {
	cleanRoot := filepath.Clean(root)

	cleanRel, err := Clean(rel)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(cleanRoot, filepath.FromSlash(strings.TrimPrefix(cleanRel, "/")))

	// Resolve symbolic links where the target exists and check the real path.
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// The file might not exist yet; check its closest existing directory.
		dir := filepath.Dir(joined)
		if dir != cleanRoot {
			if resolvedDir, dirErr := filepath.EvalSymlinks(dir); dirErr == nil && !within(cleanRoot, resolvedDir) {
				return "", metadata.ErrForbidden
			}
		}
		if !within(cleanRoot, joined) {
			return "", metadata.ErrForbidden
		}
		return joined, nil
	}

	if !within(cleanRoot, resolved) {
		return "", metadata.ErrForbidden
	}
	return joined, nil
}

func within(root, p string) bool {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolvedRoot = root
	}
	for _, r := range []string{root, resolvedRoot} {
		rel, err := filepath.Rel(r, p)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
