// Package jsonrepair extracts and repairs structured output from free-form
// model text: fenced code blocks, prose around the object, // comments, and
// trailing commas.
package jsonrepair

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// fencePattern matches a fenced block whose markers sit at the start of a line.
var fencePattern = regexp.MustCompile("(?ms)^[ \t]*```(?:json|JSON)?[ \t]*\r?\n(.*?)\r?\n[ \t]*```") //nolint:gochecknoglobals // Compiled once

// Extract returns the most likely JSON candidate inside text.
func Extract(text string) string {
	return Candidates(text)[0]
}

// Candidates returns the JSON candidates inside text, most likely first. A
// fenced block leads unless it opens inside the first balanced object (a fence
// in a string value); then come the first balanced object, everything between
// the first '{' and the last '}', the first balanced array, and the trimmed
// text itself. The slice is never empty.
func Candidates(text string) []string {
	var out []string
	add := func(c string) {
		for _, seen := range out {
			if seen == c {
				return
			}
		}
		out = append(out, c)
	}

	objStart, objEnd, objOK := balanced(text, '{', '}')
	for _, m := range fencePattern.FindAllStringSubmatchIndex(text, -1) {
		if objOK && m[0] > objStart && m[0] < objEnd {
			continue
		}
		if body := strings.TrimSpace(text[m[2]:m[3]]); body != "" {
			add(body)
			break
		}
	}

	if objOK {
		add(text[objStart:objEnd])
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		add(text[start : end+1])
	}
	if start, end, ok := balanced(text, '[', ']'); ok {
		add(text[start:end])
	}
	add(strings.TrimSpace(text))
	return out
}

// balanced scans from the first open rune to its matching close, ignoring
// brackets inside string literals. It returns the half-open span of the value.
func balanced(text string, open, closeCh byte) (int, int, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return 0, 0, false
	}

	depth := 0
	var st stringState
	for i := start; i < len(text); i++ {
		c := text[i]
		if st.step(c) {
			continue
		}
		switch c {
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}
	return 0, 0, false
}

// Repair removes // and /* */ comments, then trailing commas, outside of
// string literals.
func Repair(s string) string {
	return stripTrailingCommas(stripComments(s))
}

// stringState tracks whether a scan position is inside a JSON string literal.
type stringState struct {
	in      bool
	escaped bool
}

// step consumes c and reports whether c belongs to a string literal.
func (st *stringState) step(c byte) bool {
	if st.in {
		switch {
		case st.escaped:
			st.escaped = false
		case c == '\\':
			st.escaped = true
		case c == '"':
			st.in = false
		}
		return true
	}
	if c == '"' {
		st.in = true
		return true
	}
	return false
}

func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var st stringState
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.step(c) {
			b.WriteByte(c)
			continue
		}

		switch {
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 3
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var st stringState
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.step(c) {
			b.WriteByte(c)
			continue
		}
		if c == ',' && closesNext(s[i+1:]) {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closesNext reports whether the next significant character closes a container.
func closesNext(rest string) bool {
	t := strings.TrimLeft(rest, " \t\r\n")
	return strings.HasPrefix(t, "}") || strings.HasPrefix(t, "]")
}

// Parse extracts a JSON value from text, repairing it if the raw candidate does
// not parse. It fails only when both the raw and the repaired candidate are
// unparseable.
func Parse(text string) (any, error) {
	return Decode[any](text)
}

// Decode is Parse into a typed value. Each candidate is tried raw, then
// repaired; the first that parses wins.
func Decode[T any](text string) (T, error) {
	var out T
	var firstErr error
	for _, candidate := range Candidates(text) {
		if candidate == "" {
			continue
		}
		v, err := decodeCandidate[T](candidate)
		if err == nil {
			return v, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		return out, fmt.Errorf("%w: no json found", forgeerrors.ErrJSONRepair)
	}
	return out, fmt.Errorf("%w: %w", forgeerrors.ErrJSONRepair, firstErr)
}

func decodeCandidate[T any](candidate string) (T, error) {
	var out T
	rawErr := json.Unmarshal([]byte(candidate), &out)
	if rawErr == nil {
		return out, nil
	}
	var repaired T
	if err := json.Unmarshal([]byte(Repair(candidate)), &repaired); err != nil {
		return out, err
	}
	return repaired, nil
}
