// Package storetest holds behaviour tests shared by every metadata.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/fsbridge/metadata"
)

// Run exercises a store created fresh for every subtest by newStore.
func Run(t *testing.T, newStore func(t *testing.T) metadata.Store) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "/missing")
		assert.ErrorIs(t, err, metadata.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		mtime := time.Date(2021, 5, 6, 7, 8, 9, 0, time.UTC)

		require.NoError(t, s.Put(ctx, &metadata.Attributes{
			Path:       "/a/file",
			Permission: 0o640,
			Owner:      "alice",
			Group:      "staff",
			MTime:      mtime,
		}))

		got, err := s.Get(ctx, "/a/file")
		require.NoError(t, err)
		assert.Equal(t, "/a/file", got.Path)
		assert.Equal(t, metadata.Permission(0o640), got.Permission)
		assert.Equal(t, "alice", got.Owner)
		assert.Equal(t, "staff", got.Group)
		assert.True(t, mtime.Equal(got.MTime))
		assert.True(t, got.ATime.IsZero())
		assert.False(t, got.UpdatedAt.IsZero())

		require.NoError(t, s.Put(ctx, &metadata.Attributes{Path: "/a/file", Permission: 0o600}))
		got, err = s.Get(ctx, "/a/file")
		require.NoError(t, err)
		assert.Equal(t, metadata.Permission(0o600), got.Permission)
		assert.Empty(t, got.Owner)
	})

	t.Run("delete removes subtree only", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, p := range []string{"/d", "/d/x", "/d/x/y", "/d2", "/d_x"} {
			require.NoError(t, s.Put(ctx, &metadata.Attributes{Path: p}))
		}

		require.NoError(t, s.Delete(ctx, "/d"))

		for _, p := range []string{"/d", "/d/x", "/d/x/y"} {
			_, err := s.Get(ctx, p)
			assert.ErrorIs(t, err, metadata.ErrNotFound, p)
		}
		for _, p := range []string{"/d2", "/d_x"} {
			_, err := s.Get(ctx, p)
			assert.NoError(t, err, p)
		}

		require.NoError(t, s.Delete(ctx, "/never-stored"))
	})

	t.Run("rename moves subtree", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, &metadata.Attributes{Path: "/src", Owner: "root"}))
		require.NoError(t, s.Put(ctx, &metadata.Attributes{Path: "/src/f", Owner: "bob"}))
		require.NoError(t, s.Put(ctx, &metadata.Attributes{Path: "/srcx", Owner: "carol"}))
		require.NoError(t, s.Put(ctx, &metadata.Attributes{Path: "/dst/stale", Owner: "dave"}))

		require.NoError(t, s.Rename(ctx, "/src", "/dst"))

		got, err := s.Get(ctx, "/dst/f")
		require.NoError(t, err)
		assert.Equal(t, "bob", got.Owner)
		assert.Equal(t, "/dst/f", got.Path)

		got, err = s.Get(ctx, "/dst")
		require.NoError(t, err)
		assert.Equal(t, "root", got.Owner)

		_, err = s.Get(ctx, "/src/f")
		assert.ErrorIs(t, err, metadata.ErrNotFound)
		_, err = s.Get(ctx, "/dst/stale")
		assert.ErrorIs(t, err, metadata.ErrNotFound)

		got, err = s.Get(ctx, "/srcx")
		require.NoError(t, err)
		assert.Equal(t, "carol", got.Owner)
	})

	t.Run("rename root is forbidden", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.Rename(context.Background(), "/", "/elsewhere"), metadata.ErrForbidden)
	})
}
