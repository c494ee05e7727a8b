package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/flock"
)

// Directory and file permission constants.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// FileStore keeps the latest checkpoint of each thread as <dir>/<thread>.json.
// Writes are atomic and serialized per thread with a lock file.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory %w", forgeerrors.ErrEmptyValue)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(threadID string) string {
	return filepath.Join(s.dir, threadID+".json")
}

func (s *FileStore) lockPath(threadID string) string {
	return filepath.Join(s.dir, threadID+".lock")
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("checkpoint %w", forgeerrors.ErrEmptyValue)
	}
	if err := ValidateThreadID(cp.ThreadID); err != nil {
		return err
	}

	lock, err := flock.Acquire(ctx, s.lockPath(cp.ThreadID))
	if err != nil {
		return fmt.Errorf("failed to save thread '%s': %w", cp.ThreadID, err)
	}
	defer func() { _ = lock.Release() }()

	stamp(cp)
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := atomicWrite(s.path(cp.ThreadID), data); err != nil {
		return fmt.Errorf("failed to save thread '%s': %w", cp.ThreadID, err)
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	return s.read(s.path(threadID), threadID)
}

func (s *FileStore) read(path, threadID string) (*domain.Checkpoint, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is built from a validated thread id
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load thread '%s': %w", threadID, forgeerrors.ErrThreadNotFound)
		}
		return nil, fmt.Errorf("failed to load thread '%s': %w", threadID, err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to load thread '%s': %w: %w", threadID, forgeerrors.ErrCheckpointCorrupt, err)
	}
	return &cp, nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		threadID := strings.TrimSuffix(name, ".json")
		cp, err := s.read(filepath.Join(s.dir, name), threadID)
		if err != nil {
			continue
		}
		summaries = append(summaries, summarize(cp))
	}
	sortSummaries(summaries)
	return summaries, nil
}

// Purge implements Store.
func (s *FileStore) Purge(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateThreadID(threadID); err != nil {
		return err
	}

	for _, p := range []string{s.path(threadID), s.lockPath(threadID)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to purge thread '%s': %w", threadID, err)
		}
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

// atomicWrite writes data to a file atomically using write-then-rename.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
