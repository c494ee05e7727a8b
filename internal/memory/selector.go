package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/llm"
)

// maxListing bounds how many paths are shown to the model.
const maxListing = 400

const selectorSystem = `You are a senior engineer choosing which existing project files are needed to work on a goal.
Answer with JSON of the form {"files": ["path/one", "path/two"]}. Choose at most %d paths, only from the listing.
Choose an empty list when no file is relevant.`

type selection struct {
	Files []string `json:"files"`
}

// Selector asks the model to shortlist files relevant to a goal.
type Selector struct {
	client   llm.Client
	cap      int
	attempts int
	logger   zerolog.Logger
}

// NewSelector creates a Selector returning at most limit paths.
func NewSelector(client llm.Client, limit int, logger zerolog.Logger) *Selector {
	if limit <= 0 {
		limit = 5
	}
	return &Selector{client: client, cap: limit, attempts: 2, logger: logger}
}

// Select returns up to the cap of paths from files. Paths the model invents are
// dropped. Any model failure yields an empty shortlist.
func (s *Selector) Select(ctx context.Context, goal string, files []string) []string {
	if len(files) == 0 {
		return nil
	}

	listing := files
	if len(listing) > maxListing {
		listing = listing[:maxListing]
	}
	prompt := fmt.Sprintf("Goal:\n%s\n\nFile listing:\n%s", goal, strings.Join(listing, "\n"))

	sel, err := llm.CompleteJSON[selection](ctx, s.client, llm.Request{
		Node:     "memory",
		System:   fmt.Sprintf(selectorSystem, s.cap),
		Messages: []llm.Message{llm.User(prompt)},
	}, s.attempts, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("file shortlist selection failed, continuing without")
		return nil
	}
	return filterSelection(sel.Files, files, s.cap)
}

func filterSelection(chosen, files []string, limit int) []string {
	known := make(map[string]bool, len(files))
	for _, f := range files {
		known[f] = true
	}

	seen := make(map[string]bool)
	out := make([]string, 0, limit)
	for _, c := range chosen {
		c = strings.TrimPrefix(strings.TrimSpace(c), "./")
		if !known[c] || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}
