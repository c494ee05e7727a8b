package sandbox

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mrz1836/forge/internal/constants"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// CleanPath normalizes a model-supplied path to be relative to the sandbox
// workdir. The workdir prefix and leading slashes are stripped; any path that
// would escape the workdir is rejected.
func CleanPath(workdir, p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if workdir != "" {
		wd := strings.TrimSuffix(workdir, "/")
		if p == wd {
			return ".", nil
		}
		p = strings.TrimPrefix(p, wd+"/")
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ".", nil
	}

	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes the workdir", forgeerrors.ErrInvalidPath, p)
		}
	}
	return path.Clean(p), nil
}

// Excluded reports whether a workdir-relative path falls in a build,
// dependency, or VCS directory.
func Excluded(rel string) bool {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	for _, pattern := range constants.SandboxExcludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// The directory itself, not only its contents.
		if ok, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), rel); ok {
			return true
		}
	}
	return false
}

// ShellQuote wraps s in single quotes for sh.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
