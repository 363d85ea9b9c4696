package noop

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/fsbridge/backends"
	"github.com/ebogdum/fsbridge/metadata"
)

var _ backends.FileSystem = (*NoopFS)(nil)

func TestNoopFSFailsEveryOperation(t *testing.T) {
	ctx := context.Background()
	fs := NewNoopFS("s3")

	uri := &url.URL{Scheme: "s3", Host: "bucket"}
	require.NoError(t, fs.Initialize(ctx, uri))
	assert.Same(t, uri, fs.URI())
	assert.Equal(t, "s3", fs.Scheme())
	assert.NoError(t, fs.CheckPath("/anything"))

	ops := map[string]func() error{
		"create": func() error {
			_, err := fs.Create(ctx, "/f", 0o644, true, 0, 1, 0, nil)
			return err
		},
		"mkdirs": func() error { return fs.Mkdirs(ctx, "/d", 0o755) },
		"delete": func() error {
			_, err := fs.Delete(ctx, "/f", true)
			return err
		},
		"open": func() error {
			_, err := fs.Open(ctx, "/f", 0)
			return err
		},
		"rename": func() error { return fs.Rename(ctx, "/a", "/b") },
		"status": func() error {
			_, err := fs.GetFileStatus(ctx, "/f")
			return err
		},
		"list": func() error {
			_, err := fs.ListStatus(ctx, "/")
			return err
		},
		"fs status": func() error {
			_, err := fs.GetStatus(ctx)
			return err
		},
		"defaults": func() error {
			_, err := fs.GetServerDefaults(ctx)
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), metadata.ErrBackendDisabled)
		})
	}

	assert.NoError(t, fs.Close())
}
