package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metadata/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metadata.Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "attrs.db"), zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStoreInMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metadata.Store {
		s, err := NewSQLiteStore(":memory:", nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestDescendantPatternEscapesWildcards(t *testing.T) {
	require.Equal(t, `/d\_x/%`, metadata.DescendantPattern("/d_x"))
	require.Equal(t, "/%", metadata.DescendantPattern("/"))
}
