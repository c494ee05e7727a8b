package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/sandbox"
)

// Assembler builds the context string for the reasoning and planning nodes:
// project history, semantic snippets, then the full text of shortlisted files.
type Assembler struct {
	mgr      sandbox.Manager
	selector *Selector
	indexer  *Indexer
	cfg      config.MemoryConfig
	logger   zerolog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(mgr sandbox.Manager, selector *Selector, indexer *Indexer, cfg config.MemoryConfig, logger zerolog.Logger) *Assembler {
	return &Assembler{mgr: mgr, selector: selector, indexer: indexer, cfg: cfg, logger: logger}
}

// Reindex rebuilds the project index from the sandbox.
func (a *Assembler) Reindex(ctx context.Context, sandboxName, project string) error {
	_, err := a.indexer.Reindex(ctx, sandboxName, project)
	return err
}

type fileBody struct {
	path string
	text string
}

// Assemble returns the context for goal. Missing pieces are left out rather
// than failing the call; only context cancellation is an error.
func (a *Assembler) Assemble(ctx context.Context, sandboxName, project, goal string) (string, error) {
	log := a.logger.With().Str("sandbox", sandboxName).Str("project", project).Logger()

	files, err := a.mgr.ListFiles(ctx, sandboxName, ".")
	if err != nil {
		log.Warn().Err(err).Msg("could not list sandbox files")
	}
	shortlist := a.selector.Select(ctx, goal, files)

	var (
		history  string
		snippets []Snippet
		bodies   = make([]fileBody, len(shortlist))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := a.mgr.ReadFile(gctx, sandboxName, constants.ProgressFileName)
		if err == nil {
			history = string(data)
		}
		return gctx.Err()
	})
	g.Go(func() error {
		hits, err := a.indexer.Search(gctx, project, goal)
		if err != nil {
			log.Warn().Err(err).Msg("semantic search failed")
			return gctx.Err()
		}
		snippets = hits
		return nil
	})
	for i, p := range shortlist {
		g.Go(func() error {
			data, err := a.mgr.ReadFile(gctx, sandboxName, p)
			if err != nil {
				log.Debug().Err(err).Str("path", p).Msg("shortlisted file unreadable")
				return gctx.Err()
			}
			bodies[i] = fileBody{path: p, text: truncate(string(data), a.cfg.MaxFileBytes)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	log.Debug().Int("shortlist", len(shortlist)).Int("snippets", len(snippets)).Msg("context assembled")
	return render(history, snippets, bodies), nil
}

func render(history string, snippets []Snippet, bodies []fileBody) string {
	var b strings.Builder

	b.WriteString("## Project History (" + constants.ProgressFileName + ")\n")
	if strings.TrimSpace(history) == "" {
		b.WriteString("No history yet.\n")
	} else {
		b.WriteString(strings.TrimSpace(history))
		b.WriteString("\n")
	}

	if len(snippets) > 0 {
		b.WriteString("\n## Relevant Snippets\n")
		for _, s := range snippets {
			fmt.Fprintf(&b, "\n### %s:%d\n```\n%s\n```\n", s.Path, s.StartLine, s.Text)
		}
	}

	wrote := false
	for _, f := range bodies {
		if f.path == "" {
			continue
		}
		if !wrote {
			b.WriteString("\n## Selected Files\n")
			wrote = true
		}
		fmt.Fprintf(&b, "\n### %s\n```\n%s\n```\n", f.path, f.text)
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... (truncated)"
}
