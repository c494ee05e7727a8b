package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

func newMemoryBadger(t *testing.T) *BadgerStore {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	s := NewBadgerStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"badger": newMemoryBadger(t),
		"file":   newFileStore(t),
	}
}

func checkpointFor(threadID string, status constants.WorkflowStatus, next string) *domain.Checkpoint {
	st := domain.NewWorkflowState(threadID, "proj-1", "build a todo app")
	st.Status = status
	return &domain.Checkpoint{ThreadID: threadID, State: *st, NextNode: next}
}

func TestStore_SaveLoad(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := checkpointFor("thread-a", constants.StatusStart, "overseer")
			require.NoError(t, s.Save(ctx, first))
			assert.NotEmpty(t, first.Revision)
			assert.Equal(t, constants.CheckpointSchemaVersion, first.SchemaVersion)
			assert.False(t, first.SavedAt.IsZero())

			second := checkpointFor("thread-a", constants.StatusWaitingApproval, "spec_approval")
			second.Paused = true
			require.NoError(t, s.Save(ctx, second))
			assert.Greater(t, second.Revision, first.Revision)

			got, err := s.Load(ctx, "thread-a")
			require.NoError(t, err)
			assert.Equal(t, second.Revision, got.Revision)
			assert.Equal(t, constants.StatusWaitingApproval, got.State.Status)
			assert.Equal(t, "spec_approval", got.NextNode)
			assert.True(t, got.Paused)
			assert.Equal(t, "build a todo app", got.State.Goal)
		})
	}
}

func TestStore_LoadErrors(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Load(ctx, "missing")
			require.ErrorIs(t, err, forgeerrors.ErrThreadNotFound)

			_, err = s.Load(ctx, "../etc/passwd")
			require.ErrorIs(t, err, forgeerrors.ErrInvalidConfig)

			_, err = s.Load(ctx, "")
			require.ErrorIs(t, err, forgeerrors.ErrEmptyValue)

			canceled, cancel := context.WithCancel(ctx)
			cancel()
			_, err = s.Load(canceled, "thread-a")
			require.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestStore_ListAndPurge(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, checkpointFor("one", constants.StatusStart, "overseer")))
			require.NoError(t, s.Save(ctx, checkpointFor("one", constants.StatusCoding, "executor")))
			require.NoError(t, s.Save(ctx, checkpointFor("two", constants.StatusQAPassed, "end")))

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)

			byID := map[string]Summary{}
			for _, sum := range list {
				byID[sum.ThreadID] = sum
			}
			assert.Equal(t, constants.StatusCoding, byID["one"].Status)
			assert.Equal(t, "executor", byID["one"].NextNode)
			assert.Equal(t, "proj-1", byID["two"].ProjectID)

			require.NoError(t, s.Purge(ctx, "one"))
			_, err = s.Load(ctx, "one")
			require.ErrorIs(t, err, forgeerrors.ErrThreadNotFound)

			require.NoError(t, s.Purge(ctx, "never-existed"))

			list, err = s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "two", list[0].ThreadID)
		})
	}
}

func TestBadgerStore_PrunesOldRevisions(t *testing.T) {
	s := newMemoryBadger(t)
	ctx := context.Background()

	var last string
	for range keepRevisions + 5 {
		cp := checkpointFor("busy", constants.StatusCoding, "executor")
		require.NoError(t, s.Save(ctx, cp))
		last = cp.Revision
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := threadPrefix("busy")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, keepRevisions, count)

	got, err := s.Load(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, last, got.Revision)
}

func TestFileStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o600))

	_, err = s.Load(context.Background(), "bad")
	require.ErrorIs(t, err, forgeerrors.ErrCheckpointCorrupt)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpen(t *testing.T) {
	t.Run("file backend", func(t *testing.T) {
		home := t.TempDir()
		cfg := &config.Config{Checkpoint: config.CheckpointConfig{Backend: "file"}}

		s, err := Open(cfg, home)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		assert.IsType(t, &FileStore{}, s)
		assert.DirExists(t, filepath.Join(home, constants.CheckpointsDir, "files"))
	})

	t.Run("badger backend", func(t *testing.T) {
		cfg := &config.Config{Checkpoint: config.CheckpointConfig{Backend: "badger", Dir: t.TempDir()}}

		s, err := Open(cfg, "")
		require.NoError(t, err)
		assert.IsType(t, &BadgerStore{}, s)
		require.NoError(t, s.Close())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := &config.Config{Checkpoint: config.CheckpointConfig{Backend: "etcd"}}

		_, err := Open(cfg, t.TempDir())
		require.ErrorIs(t, err, forgeerrors.ErrUnknownBackend)
	})
}
