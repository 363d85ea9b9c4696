package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/fsbridge/metadata"
)

// useFsConfig points the fs commands at a fresh local backend and returns
// its root directory.
func useFsConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	path := filepath.Join(dir, "config.yaml")
	content := "log:\n  level: error\n  format: console\n" +
		"auth:\n  api_keys: [\"test-key\"]\n" +
		"logging:\n  remote:\n    type: none\n" +
		"backend:\n  uri: file://" + filepath.ToSlash(root) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	previous := configFilePath
	configFilePath = path
	t.Cleanup(func() { configFilePath = previous })
	return root
}

func runFs(args ...string) (stdout, stderr string, err error) {
	cmd := newFsCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func statOf(t *testing.T, p string) metadata.FileStatus {
	t.Helper()
	out, _, err := runFs("stat", p)
	require.NoError(t, err)
	var status metadata.FileStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	return status
}

func TestFsCommands(t *testing.T) {
	root := useFsConfig(t)
	local := filepath.Join(t.TempDir(), "readme.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello fsbridge"), 0o600))

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, stdout, stderr string)
	}{
		{
			name: "mkdir",
			args: []string{"mkdir", "--mode", "0750", "/docs"},
			check: func(t *testing.T, stdout, stderr string) {
				info, err := os.Stat(filepath.Join(root, "docs"))
				require.NoError(t, err)
				assert.True(t, info.IsDir())
			},
		},
		{
			name:    "mkdir bad mode",
			args:    []string{"mkdir", "--mode", "999", "/other"},
			wantErr: true,
		},
		{
			name: "put",
			args: []string{"put", "--mode", "0640", local, "/docs/readme.txt"},
			check: func(t *testing.T, stdout, stderr string) {
				data, err := os.ReadFile(filepath.Join(root, "docs", "readme.txt"))
				require.NoError(t, err)
				assert.Equal(t, "hello fsbridge", string(data))
			},
		},
		{
			name:    "put missing local file",
			args:    []string{"put", filepath.Join(t.TempDir(), "absent"), "/docs/absent.txt"},
			wantErr: true,
		},
		{
			name: "ls",
			args: []string{"ls", "/docs"},
			check: func(t *testing.T, stdout, stderr string) {
				assert.Regexp(t, `(?m)^-rw-r-----\s.*\s14\s.*/docs/readme\.txt$`, stdout)
			},
		},
		{
			name: "ls root",
			args: []string{"ls"},
			check: func(t *testing.T, stdout, stderr string) {
				assert.Regexp(t, `(?m)^drwxr-x---\s.*/docs$`, stdout)
			},
		},
		{
			name: "stat",
			args: []string{"stat", "/docs/readme.txt"},
			check: func(t *testing.T, stdout, stderr string) {
				var status metadata.FileStatus
				require.NoError(t, json.Unmarshal([]byte(stdout), &status))
				assert.Equal(t, "/docs/readme.txt", status.Path)
				assert.Equal(t, int64(14), status.Length)
				assert.False(t, status.IsDir)
				assert.Equal(t, metadata.Permission(0o640), status.Permission)
			},
		},
		{
			name:    "stat missing",
			args:    []string{"stat", "/docs/absent.txt"},
			wantErr: true,
		},
		{
			name: "cat",
			args: []string{"cat", "/docs/readme.txt"},
			check: func(t *testing.T, stdout, stderr string) {
				assert.Equal(t, "hello fsbridge", stdout)
			},
		},
		{
			name: "chmod",
			args: []string{"chmod", "0600", "/docs/readme.txt"},
			check: func(t *testing.T, stdout, stderr string) {
				assert.Equal(t, metadata.Permission(0o600), statOf(t, "/docs/readme.txt").Permission)
			},
		},
		{
			name:    "chmod bad mode",
			args:    []string{"chmod", "rwx", "/docs/readme.txt"},
			wantErr: true,
		},
		{
			name: "chown to current user",
			args: []string{"chown", strconv.Itoa(os.Getuid()) + ":" + strconv.Itoa(os.Getgid()), "/docs/readme.txt"},
		},
		{
			name: "checksum",
			args: []string{"checksum", "/docs/readme.txt"},
			check: func(t *testing.T, stdout, stderr string) {
				assert.Regexp(t, regexp.MustCompile(`^/docs/readme\.txt\tCOMPOSITE-CRC32C\t[0-9a-f]{8}\n$`), stdout)
			},
		},
		{
			name:    "checksum of directory",
			args:    []string{"checksum", "/docs"},
			wantErr: true,
		},
		{
			name: "mv",
			args: []string{"mv", "/docs/readme.txt", "/docs/moved.txt"},
			check: func(t *testing.T, stdout, stderr string) {
				_, _, err := runFs("cat", "/docs/readme.txt")
				assert.Error(t, err)
				out, _, err := runFs("cat", "/docs/moved.txt")
				require.NoError(t, err)
				assert.Equal(t, "hello fsbridge", out)
			},
		},
		{
			name: "df",
			args: []string{"df"},
			check: func(t *testing.T, stdout, stderr string) {
				assert.Contains(t, stdout, "CAPACITY")
				assert.Contains(t, stdout, filepath.ToSlash(root))
			},
		},
		{
			name:    "rm non-empty directory",
			args:    []string{"rm", "/docs"},
			wantErr: true,
		},
		{
			name: "rm recursive",
			args: []string{"rm", "-r", "/docs"},
			check: func(t *testing.T, stdout, stderr string) {
				_, err := os.Stat(filepath.Join(root, "docs"))
				assert.True(t, os.IsNotExist(err))
			},
		},
		{
			name: "rm missing",
			args: []string{"rm", "/docs"},
			check: func(t *testing.T, stdout, stderr string) {
				assert.Equal(t, "/docs: nothing to delete\n", stderr)
			},
		},
		{
			name:    "too many arguments",
			args:    []string{"stat", "/a", "/b"},
			wantErr: true,
		},
	}

	// Steps run in order against the same backend.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, err := runFs(tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, stdout, stderr)
			}
		})
	}
}

func TestFsCommandsRequireConfig(t *testing.T) {
	previous := configFilePath
	configFilePath = filepath.Join(t.TempDir(), "absent.yaml")
	t.Cleanup(func() { configFilePath = previous })

	_, _, err := runFs("ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}
