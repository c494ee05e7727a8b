// Package memory assembles project context for the reasoning and planning
// nodes. It keeps a per-project semantic index of the sandboxed codebase,
// rebuilt wholesale after each completed task, and asks the model to shortlist
// the files most relevant to a goal.
package memory

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Embedder turns text into a fixed-width vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder produces feature-hashed bag-of-token vectors. It needs no model
// or network and gives identical vectors for identical text, which keeps the
// index reproducible.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder of dims dimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions implements Embedder.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// Embed implements Embedder.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	tf := make(map[string]int)
	for _, tok := range tokenize(text) {
		tf[tok]++
	}

	for tok, count := range tf {
		weight := float32(1 + math.Log(float64(count)))
		h1 := hashString(tok, 0)
		h2 := hashString(tok, 1)
		add(vec, h1, weight)
		add(vec, h2, weight*0.5)
	}

	normalize(vec)
	return vec, nil
}

func add(vec []float32, h uint64, w float32) {
	pos := int(h % uint64(len(vec)))
	if h&(1<<63) == 0 {
		vec[pos] += w
	} else {
		vec[pos] -= w
	}
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// tokenize lowercases words and also splits camelCase identifiers, so
// "getUserName" yields getusername, get, user, and name.
func tokenize(text string) []string {
	var tokens []string
	for _, w := range wordPattern.FindAllString(text, -1) {
		lower := strings.ToLower(w)
		if len(lower) >= 2 {
			tokens = append(tokens, lower)
		}
		parts := splitCamel(w)
		if len(parts) > 1 {
			for _, p := range parts {
				if len(p) >= 2 {
					tokens = append(tokens, strings.ToLower(p))
				}
			}
		}
	}
	return tokens
}

func splitCamel(w string) []string {
	var parts []string
	start := 0
	runes := []rune(w)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && !unicode.IsUpper(runes[i-1]) {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}

func hashString(s string, seed byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte{seed})
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

// cosine returns the cosine similarity of a and b.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
