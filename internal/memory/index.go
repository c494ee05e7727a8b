package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/flock"
	"github.com/mrz1836/forge/internal/sandbox"
)

// Chunk is one indexed slice of a file.
type Chunk struct {
	Path      string    `json:"path"`
	StartLine int       `json:"start_line"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
}

// Index is the persisted semantic index of one project.
type Index struct {
	Project    string    `json:"project"`
	Dimensions int       `json:"dimensions"`
	BuiltAt    time.Time `json:"built_at"`
	Files      int       `json:"files"`
	Chunks     []Chunk   `json:"chunks"`
}

// Snippet is a search hit.
type Snippet struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	Text      string  `json:"text"`
	Score     float32 `json:"score"`
}

// BuildOptions bounds what Build reads.
type BuildOptions struct {
	ChunkLines   int
	MaxFileBytes int
	Workers      int
}

// Build walks root and embeds every text file in chunks of ChunkLines lines.
// Files in excluded directories, binary files, and files larger than
// MaxFileBytes are skipped.
func Build(ctx context.Context, project, root string, emb Embedder, opts BuildOptions) (*Index, error) {
	if opts.ChunkLines <= 0 {
		opts.ChunkLines = 40
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	var pending []Chunk
	files := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && sandbox.Excluded(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if opts.MaxFileBytes > 0 && info.Size() > int64(opts.MaxFileBytes) {
			return nil
		}

		data, err := os.ReadFile(p) //#nosec G304 -- walking the exported snapshot
		if err != nil {
			return err
		}
		if bytes.IndexByte(data, 0) >= 0 {
			return nil
		}
		files++
		pending = append(pending, chunkText(rel, string(data), opts.ChunkLines)...)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range pending {
		g.Go(func() error {
			vec, err := emb.Embed(gctx, pending[i].Path+"\n"+pending[i].Text)
			if err != nil {
				return err
			}
			pending[i].Vector = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	return &Index{
		Project:    project,
		Dimensions: emb.Dimensions(),
		BuiltAt:    time.Now().UTC(),
		Files:      files,
		Chunks:     pending,
	}, nil
}

func chunkText(path, text string, size int) []Chunk {
	lines := strings.Split(text, "\n")
	var chunks []Chunk
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		chunks = append(chunks, Chunk{Path: path, StartLine: start + 1, Text: body})
	}
	return chunks
}

// Search returns the k chunks most similar to query, best first.
func (ix *Index) Search(ctx context.Context, emb Embedder, query string, k int) ([]Snippet, error) {
	if ix == nil || len(ix.Chunks) == 0 || k <= 0 {
		return nil, nil
	}
	q, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits := make([]Snippet, 0, len(ix.Chunks))
	for _, c := range ix.Chunks {
		hits = append(hits, Snippet{
			Path:      c.Path,
			StartLine: c.StartLine,
			Text:      c.Text,
			Score:     cosine(q, c.Vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// IndexStore persists one index file per project under dir.
type IndexStore struct {
	dir string
}

// NewIndexStore creates an IndexStore rooted at dir.
func NewIndexStore(dir string) *IndexStore {
	return &IndexStore{dir: dir}
}

// path keys the file by the project's stable slug so any project id is usable.
func (s *IndexStore) path(project string) string {
	return filepath.Join(s.dir, sandbox.StableName(project)+".json")
}

// Load returns the stored index, or an empty index when none exists.
func (s *IndexStore) Load(project string) (*Index, error) {
	if project == "" {
		return nil, fmt.Errorf("project %w", forgeerrors.ErrEmptyValue)
	}
	data, err := os.ReadFile(s.path(project)) //#nosec G304 -- path is a slug under the index directory
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Index{Project: project}, nil
		}
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("failed to decode index for %s: %w", project, err)
	}
	return &ix, nil
}

// Save replaces the stored index atomically.
func (s *IndexStore) Save(ctx context.Context, ix *Index) error {
	if ix == nil {
		return fmt.Errorf("index %w", forgeerrors.ErrEmptyValue)
	}
	if ix.Project == "" {
		return fmt.Errorf("project %w", forgeerrors.ErrEmptyValue)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	lock, err := flock.Acquire(ctx, s.path(ix.Project)+".lock")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	data, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	tmp := s.path(ix.Project) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmp, s.path(ix.Project)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}
