package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/sandbox"
)

// Indexer rebuilds and queries project indexes. A rebuild exports the
// sandbox codebase to a local snapshot directory and embeds it from scratch.
type Indexer struct {
	mgr          sandbox.Manager
	store        *IndexStore
	emb          Embedder
	snapshotsDir string
	cfg          config.MemoryConfig
	logger       zerolog.Logger

	mu    sync.Mutex
	cache map[string]*Index
}

// NewIndexer creates an Indexer.
func NewIndexer(mgr sandbox.Manager, store *IndexStore, emb Embedder, snapshotsDir string, cfg config.MemoryConfig, logger zerolog.Logger) *Indexer {
	return &Indexer{
		mgr:          mgr,
		store:        store,
		emb:          emb,
		snapshotsDir: snapshotsDir,
		cfg:          cfg,
		logger:       logger,
		cache:        make(map[string]*Index),
	}
}

// Reindex rebuilds the index of project from the sandbox's current files.
func (ix *Indexer) Reindex(ctx context.Context, sandboxName, project string) (*Index, error) {
	start := time.Now()
	dest := filepath.Join(ix.snapshotsDir, sandbox.StableName(project))
	if err := ix.mgr.CopyOut(ctx, sandboxName, ".", dest); err != nil {
		return nil, fmt.Errorf("failed to export codebase: %w", err)
	}

	index, err := Build(ctx, project, dest, ix.emb, BuildOptions{
		ChunkLines:   ix.cfg.ChunkLines,
		MaxFileBytes: ix.cfg.MaxFileBytes,
	})
	if err != nil {
		return nil, err
	}
	if err := ix.store.Save(ctx, index); err != nil {
		return nil, err
	}

	ix.mu.Lock()
	ix.cache[project] = index
	ix.mu.Unlock()

	ix.logger.Info().
		Str("project", project).
		Str("sandbox", sandboxName).
		Int("files", index.Files).
		Int("chunks", len(index.Chunks)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("memory index rebuilt")
	return index, nil
}

func (ix *Indexer) load(project string) (*Index, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if cached, ok := ix.cache[project]; ok {
		return cached, nil
	}
	index, err := ix.store.Load(project)
	if err != nil {
		return nil, err
	}
	ix.cache[project] = index
	return index, nil
}

// Search returns the top-k snippets of project for query. A project that has
// never been indexed yields no snippets.
func (ix *Indexer) Search(ctx context.Context, project, query string) ([]Snippet, error) {
	index, err := ix.load(project)
	if err != nil {
		return nil, err
	}
	return index.Search(ctx, ix.emb, query, ix.cfg.TopK)
}
