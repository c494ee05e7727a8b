package tui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// MarkdownWidth is the word wrap width for rendered documents.
const MarkdownWidth = 80

var (
	markdownRenderer     *glamour.TermRenderer //nolint:gochecknoglobals // cached renderer
	markdownRendererOnce sync.Once             //nolint:gochecknoglobals // guards markdownRenderer
)

func renderer() *glamour.TermRenderer {
	markdownRendererOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(MarkdownWidth),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	return markdownRenderer
}

// RenderMarkdown renders a document such as the specification for the
// terminal. It returns the source unchanged when color is off or rendering
// fails.
func RenderMarkdown(source string) string {
	if !HasColorSupport() {
		return source
	}
	r := renderer()
	if r == nil {
		return source
	}
	out, err := r.Render(source)
	if err != nil {
		return source
	}
	return strings.TrimRight(out, "\n") + "\n"
}
