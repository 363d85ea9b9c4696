package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ebogdum/fsbridge/metadata"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		shouldError bool
	}{
		{
			name:     "empty path",
			input:    "",
			expected: "/",
		},
		{
			name:     "simple path",
			input:    "file.txt",
			expected: "/file.txt",
		},
		{
			name:     "nested path",
			input:    "/dir/subdir/file.txt",
			expected: "/dir/subdir/file.txt",
		},
		{
			name:     "root path",
			input:    "/",
			expected: "/",
		},
		{
			name:     "trailing slash",
			input:    "/dir/",
			expected: "/dir",
		},
		{
			name:        "directory traversal",
			input:       "../../../etc/passwd",
			shouldError: true,
		},
		{
			name:        "mixed traversal",
			input:       "/dir/../../../etc/passwd",
			shouldError: true,
		},
		{
			name:     "safe relative navigation",
			input:    "dir/../file.txt",
			expected: "/file.txt",
		},
		{
			name:     "current directory",
			input:    "./file.txt",
			expected: "/file.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Clean(tt.input)

			if tt.shouldError {
				if err == nil {
					t.Errorf("Expected error for input %q, but got none", tt.input)
				}
				if !errors.Is(err, metadata.ErrForbidden) {
					t.Errorf("Expected ErrForbidden, got %v", err)
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error for input %q: %v", tt.input, err)
				return
			}

			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestValidateChars(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "/a/b", false},
		{"tab allowed", "/a\tb", false},
		{"unicode", "/données/файл", false},
		{"null byte", "/a\x00b", true},
		{"newline", "/a\nb", true},
		{"escape", "/a\x1bb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChars(tt.input)
			if tt.wantErr {
				if !errors.Is(err, metadata.ErrInvalidPath) {
					t.Errorf("Expected ErrInvalidPath for %q, got %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error for %q: %v", tt.input, err)
			}
		})
	}
}

func TestHasDotSegment(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"/a/b", false},
		{"/a/./b", true},
		{"/a/../b", true},
		{"/a/..b/c", false},
		{"/a/.hidden", false},
		{".", true},
	}

	for _, tt := range tests {
		if got := HasDotSegment(tt.input); got != tt.expected {
			t.Errorf("HasDotSegment(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParent(t *testing.T) {
	if got := Parent("/a/b"); got != "/a" {
		t.Errorf("Parent(/a/b) = %q", got)
	}
	if got := Parent("/"); got != "/" {
		t.Errorf("Parent(/) = %q", got)
	}
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name        string
		rel         string
		expected    string
		shouldError bool
	}{
		{
			name:     "simple file",
			rel:      "/file.txt",
			expected: filepath.Join(root, "file.txt"),
		},
		{
			name:     "nested file",
			rel:      "/dir/file.txt",
			expected: filepath.Join(root, "dir", "file.txt"),
		},
		{
			name:     "root",
			rel:      "/",
			expected: root,
		},
		{
			name:        "directory traversal",
			rel:         "../../../etc/passwd",
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SafeJoin(root, tt.rel)

			if tt.shouldError {
				if err == nil {
					t.Errorf("Expected error for %q, but got %q", tt.rel, result)
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error for %q: %v", tt.rel, err)
				return
			}

			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestSafeJoinRejectsEscapingSymlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := SafeJoin(root, "/escape/secret"); !errors.Is(err, metadata.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
}
