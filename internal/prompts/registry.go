package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/common/*.tmpl templates/agents/*.tmpl
var templateFS embed.FS

// promptSet is every parsed node prompt. It is built once and never mutated.
type promptSet struct {
	templates map[PromptID]*template.Template
	sources   map[PromptID]string
}

//nolint:gochecknoglobals // embedded templates are parsed once on first use
var loadPrompts = sync.OnceValues(func() (*promptSet, error) {
	return parseAll(templateFS)
})

var funcs = template.FuncMap{ //nolint:gochecknoglobals // read-only
	"join":       strings.Join,
	"hasContent": func(s string) bool { return strings.TrimSpace(s) != "" },
	"inc":        func(i int) int { return i + 1 },
	"upper":      strings.ToUpper,
}

// parseAll parses templates/agents/*.tmpl. Each agent template can call the
// partials under templates/common as {{template "common/<name>" .}}.
func parseAll(fsys fs.FS) (*promptSet, error) {
	partials, err := fs.Glob(fsys, "templates/common/*.tmpl")
	if err != nil {
		return nil, err
	}
	base := template.New("").Funcs(funcs).Option("missingkey=error")
	for _, p := range partials {
		body, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("reading partial %s: %w", p, err)
		}
		name := "common/" + strings.TrimSuffix(strings.TrimPrefix(p, "templates/common/"), ".tmpl")
		if _, err := base.New(name).Parse(string(body)); err != nil {
			return nil, fmt.Errorf("parsing partial %s: %w", p, err)
		}
	}

	agents, err := fs.Glob(fsys, "templates/agents/*.tmpl")
	if err != nil {
		return nil, err
	}
	set := &promptSet{
		templates: make(map[PromptID]*template.Template, len(agents)),
		sources:   make(map[PromptID]string, len(agents)),
	}
	for _, p := range agents {
		body, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("reading prompt %s: %w", p, err)
		}
		id := PromptID(strings.TrimSuffix(strings.TrimPrefix(p, "templates/"), ".tmpl"))

		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		tmpl, err := clone.New(string(id)).Parse(string(body))
		if err != nil {
			return nil, fmt.Errorf("parsing prompt %s: %w", p, err)
		}
		set.templates[id] = tmpl
		set.sources[id] = string(body)
	}
	return set, nil
}

func lookup(id PromptID) (*template.Template, string, error) {
	set, err := loadPrompts()
	if err != nil {
		return nil, "", fmt.Errorf("embedded prompts: %w", err)
	}
	tmpl, ok := set.templates[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tmpl, set.sources[id], nil
}

func ids() []PromptID {
	set, err := loadPrompts()
	if err != nil {
		return nil
	}
	return slices.Sorted(maps.Keys(set.templates))
}
