//go:build unix

package flock_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/flock"
)

func TestExclusive(t *testing.T) {
	t.Run("second descriptor cannot lock a held file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.lock")

		f1, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 -- test temp dir
		require.NoError(t, err)
		defer func() { _ = f1.Close() }()
		require.NoError(t, flock.Exclusive(f1.Fd()))

		f2, err := os.OpenFile(path, os.O_RDWR, 0o600) // #nosec G304 -- test temp dir
		require.NoError(t, err)
		defer func() { _ = f2.Close() }()
		require.Error(t, flock.Exclusive(f2.Fd()))

		require.NoError(t, flock.Unlock(f1.Fd()))
		require.NoError(t, flock.Exclusive(f2.Fd()))
		require.NoError(t, flock.Unlock(f2.Fd()))
	})
}

func TestAcquire(t *testing.T) {
	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", ".lock")

		lock, err := flock.Acquire(context.Background(), path)
		require.NoError(t, err)
		assert.FileExists(t, path)
		require.NoError(t, lock.Release())
	})

	t.Run("times out while another holder keeps the lock", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".lock")

		held, err := flock.Acquire(context.Background(), path)
		require.NoError(t, err)
		defer func() { _ = held.Release() }()

		_, err = flock.AcquireWithTimeout(context.Background(), path, 120*time.Millisecond)
		require.ErrorIs(t, err, forgeerrors.ErrLockTimeout)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".lock")

		held, err := flock.Acquire(context.Background(), path)
		require.NoError(t, err)
		defer func() { _ = held.Release() }()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = flock.Acquire(ctx, path)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		lock, err := flock.Acquire(context.Background(), filepath.Join(t.TempDir(), ".lock"))
		require.NoError(t, err)
		require.NoError(t, lock.Release())
		require.NoError(t, lock.Release())

		var nilLock *flock.Lock
		require.NoError(t, nilLock.Release())
	})
}
