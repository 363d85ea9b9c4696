package locks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalManager(t *testing.T) {
	m := NewLocalManager()
	ctx := context.Background()

	acquired, err := m.Acquire(ctx, "rename:/a")
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = m.Acquire(ctx, "rename:/a")
	require.NoError(t, err)
	assert.False(t, acquired)

	acquired, err = m.Acquire(ctx, "rename:/b")
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, m.Release(ctx, "rename:/a"))
	acquired, err = m.Acquire(ctx, "rename:/a")
	require.NoError(t, err)
	assert.True(t, acquired)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Acquire(cancelled, "rename:/c")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, m.Close())
}

func TestLocalManagerLeaseExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewLocalManagerWithTTL(30 * time.Second)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	acquired, err := m.Acquire(ctx, "rename:/a")
	require.NoError(t, err)
	require.True(t, acquired)

	now = now.Add(29 * time.Second)
	acquired, err = m.Acquire(ctx, "rename:/a")
	require.NoError(t, err)
	assert.False(t, acquired)

	now = now.Add(2 * time.Second)
	acquired, err = m.Acquire(ctx, "rename:/a")
	require.NoError(t, err)
	assert.True(t, acquired, "an expired lease can be taken over")
}

func TestWith(t *testing.T) {
	m := NewLocalManager()
	ctx := context.Background()

	t.Run("runs fn and releases", func(t *testing.T) {
		ran := false
		err := With(ctx, m, "k", func() error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)

		acquired, err := m.Acquire(ctx, "k")
		require.NoError(t, err)
		assert.True(t, acquired)
		require.NoError(t, m.Release(ctx, "k"))
	})

	t.Run("returns fn error and releases", func(t *testing.T) {
		boom := errors.New("copy failed")
		err := With(ctx, m, "k", func() error { return boom })
		assert.ErrorIs(t, err, boom)

		acquired, err := m.Acquire(ctx, "k")
		require.NoError(t, err)
		assert.True(t, acquired)
		require.NoError(t, m.Release(ctx, "k"))
	})

	t.Run("held lock", func(t *testing.T) {
		acquired, err := m.Acquire(ctx, "busy")
		require.NoError(t, err)
		require.True(t, acquired)

		ran := false
		err = With(ctx, m, "busy", func() error {
			ran = true
			return nil
		})
		assert.ErrorIs(t, err, ErrLockHeld)
		assert.False(t, ran)
	})
}
