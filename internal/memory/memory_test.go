package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/llm/llmtest"
	"github.com/mrz1836/forge/internal/sandbox/sandboxtest"
)

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "user login with password")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "user login with password")
	require.NoError(t, err)
	assert.Equal(t, a, b, "embedding is deterministic")
	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-5)

	related, err := e.Embed(ctx, "login password check for user")
	require.NoError(t, err)
	unrelated, err := e.Embed(ctx, "render chart colors in svg")
	require.NoError(t, err)
	assert.Greater(t, cosine(a, related), cosine(a, unrelated))

	empty, err := e.Embed(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, float32(0), cosine(a, empty))
}

func TestTokenize(t *testing.T) {
	got := tokenize("getUserName = x_y")
	assert.Equal(t, []string{"getusername", "get", "user", "name"}, got)
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("line\n", 5) + "last"
	chunks := chunkText("a.txt", text, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, "line\nlast", chunks[2].Text)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for p, body := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o600))
	}
}

func TestBuildAndSearch(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/auth.js":         "function login(user, password) { return checkPassword(user, password) }",
		"src/math.js":         "function add(a, b) { return a + b }\nfunction subtract(a, b) { return a - b }",
		"node_modules/x/i.js": "login password login password",
		"assets/logo.png":     "\x89PNG\x00\x00binary",
		"big.txt":             strings.Repeat("login ", 1000),
	})

	emb := NewHashEmbedder(256)
	ix, err := Build(context.Background(), "acme", root, emb, BuildOptions{ChunkLines: 10, MaxFileBytes: 1024})
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Files)
	assert.Equal(t, 256, ix.Dimensions)

	hits, err := ix.Search(context.Background(), emb, "user login password", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "src/auth.js", hits[0].Path)

	var empty *Index
	hits, err = empty.Search(context.Background(), emb, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexStore(t *testing.T) {
	store := NewIndexStore(t.TempDir())
	ctx := context.Background()

	ix, err := store.Load("Acme Startup")
	require.NoError(t, err)
	assert.Empty(t, ix.Chunks)

	require.NoError(t, store.Save(ctx, &Index{
		Project:    "Acme Startup",
		Dimensions: 2,
		Chunks:     []Chunk{{Path: "a.js", StartLine: 1, Text: "x", Vector: []float32{1, 0}}},
	}))

	ix, err = store.Load("Acme Startup")
	require.NoError(t, err)
	require.Len(t, ix.Chunks, 1)
	assert.Equal(t, "a.js", ix.Chunks[0].Path)

	require.Error(t, store.Save(ctx, &Index{}))
}

func testMemoryConfig() config.MemoryConfig {
	return config.DefaultConfig().Memory
}

func TestIndexer_ReindexRebuildsWholesale(t *testing.T) {
	fake := sandboxtest.New()
	fake.SetFile("src/auth.js", "function login(user, password) {}")
	fake.SetFile("src/old.js", "legacy payment code")

	home := t.TempDir()
	indexer := NewIndexer(fake, NewIndexStore(filepath.Join(home, "index")), NewHashEmbedder(64),
		filepath.Join(home, "snapshots"), testMemoryConfig(), zerolog.Nop())
	ctx := context.Background()

	ix, err := indexer.Reindex(ctx, "forge-acme", "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Files)

	delete(fake.Files, "src/old.js")
	ix, err = indexer.Reindex(ctx, "forge-acme", "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Files)

	hits, err := indexer.Search(ctx, "acme", "payment")
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "src/old.js", h.Path)
	}

	reloaded := NewIndexer(fake, NewIndexStore(filepath.Join(home, "index")), NewHashEmbedder(64),
		filepath.Join(home, "snapshots"), testMemoryConfig(), zerolog.Nop())
	hits, err = reloaded.Search(ctx, "acme", "login")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "src/auth.js", hits[0].Path)
}

func TestSelector(t *testing.T) {
	files := []string{"a.js", "b.js", "c.js", "d.js", "e.js", "f.js", "g.js"}

	t.Run("filters and caps", func(t *testing.T) {
		client := llmtest.NewScripted().Queue("memory",
			`{"files": ["a.js", "invented.js", "./b.js", "a.js", "c.js", "d.js", "e.js", "f.js", "g.js"]}`)
		s := NewSelector(client, 5, zerolog.Nop())

		got := s.Select(context.Background(), "goal", files)
		assert.Equal(t, []string{"a.js", "b.js", "c.js", "d.js", "e.js"}, got)
	})

	t.Run("model failure gives empty shortlist", func(t *testing.T) {
		client := llmtest.NewScripted().QueueError("memory", errors.New("down"))
		s := NewSelector(client, 5, zerolog.Nop())

		assert.Empty(t, s.Select(context.Background(), "goal", files))
	})

	t.Run("no files skips the model", func(t *testing.T) {
		client := llmtest.NewScripted()
		s := NewSelector(client, 5, zerolog.Nop())

		assert.Empty(t, s.Select(context.Background(), "goal", nil))
		assert.Empty(t, client.Calls())
	})
}

func TestAssembler(t *testing.T) {
	fake := sandboxtest.New()
	fake.SetFile("PROGRESS.md", "# Progress\n- [x] set up express")
	fake.SetFile("src/server.js", "const app = express()\napp.listen(3000)")
	fake.SetFile("src/util.js", "export const sum = (a, b) => a + b")

	home := t.TempDir()
	cfg := testMemoryConfig()
	indexer := NewIndexer(fake, NewIndexStore(filepath.Join(home, "index")), NewHashEmbedder(64),
		filepath.Join(home, "snapshots"), cfg, zerolog.Nop())
	client := llmtest.NewScripted().Queue("memory", `{"files":["src/server.js"]}`)
	a := NewAssembler(fake, NewSelector(client, cfg.ShortlistCap, zerolog.Nop()), indexer, cfg, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, a.Reindex(ctx, "forge-acme", "acme"))

	out, err := a.Assemble(ctx, "forge-acme", "acme", "add an express endpoint")
	require.NoError(t, err)
	assert.Contains(t, out, "## Project History (PROGRESS.md)")
	assert.Contains(t, out, "set up express")
	assert.Contains(t, out, "## Relevant Snippets")
	assert.Contains(t, out, "## Selected Files\n\n### src/server.js")
	assert.Less(t, strings.Index(out, "Project History"), strings.Index(out, "Selected Files"))
}

func TestAssembler_EmptyProject(t *testing.T) {
	fake := sandboxtest.New()
	home := t.TempDir()
	cfg := testMemoryConfig()
	indexer := NewIndexer(fake, NewIndexStore(home), NewHashEmbedder(64), home, cfg, zerolog.Nop())
	a := NewAssembler(fake, NewSelector(llmtest.NewScripted(), 5, zerolog.Nop()), indexer, cfg, zerolog.Nop())

	out, err := a.Assemble(context.Background(), "forge-acme", "acme", "goal")
	require.NoError(t, err)
	assert.Contains(t, out, "No history yet.")
	assert.NotContains(t, out, "Selected Files")
}
