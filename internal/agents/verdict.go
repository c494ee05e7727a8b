package agents

import (
	"regexp"
	"strings"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
)

// Verdict is the reviewer's judgement of one execution result.
type Verdict struct {
	Success  bool
	Category constants.ErrorCategory
	// Reason is the line that decided a failure, or a short description.
	Reason string
}

//nolint:gochecknoglobals // Constant-like lookup tables
var (
	idempotentPhrases = []string{
		"already exists",
		"file exists",
		"already installed",
		"already up-to-date",
		"already up to date",
		"up to date",
		"nothing to commit",
		"already initialized",
		"reinitialized existing",
	}

	failurePattern = regexp.MustCompile(`(?i)(errors?\b|\berr!|\bfailed\b|\bfailure\b|\bexception\b|traceback|\bfatal\b|` +
		`command not found|no such file|cannot find module|permission denied|connection refused|` +
		`syntaxerror|\benoent\b|\bpanic:|segmentation fault|\bnot found\b)`)

	// benignPattern removes counters like "0 errors" before failure matching.
	benignPattern = regexp.MustCompile(`(?i)\b0 (errors?|failures?|failed|vulnerabilities)\b|\bwithout errors?\b|\bno errors?\b`)

	warningPattern = regexp.MustCompile(`(?i)^\s*(npm )?(warn|warning)\b|\bdeprecat`)

	categoryKeywords = []struct {
		category constants.ErrorCategory
		keywords []string
	}{
		{constants.CategoryInfrastructure, []string{
			"connection refused", "cannot connect to the docker daemon", "no space left",
			"address already in use", "port is already allocated", "container not running",
			"is not running", "sandbox runtime error", "sandbox not found", "health check failed",
		}},
		{constants.CategoryLogicSyntax, []string{
			"syntaxerror", "syntax error", "traceback", "compile", "lint", "error ts",
			"test failed", "tests failed", "assertion", "typeerror", "referenceerror",
		}},
		{constants.CategoryMissingImplementation, []string{
			"no such file", "enoent", "cannot find module", "not found", "modulenotfounderror",
		}},
	}
)

// Assess judges res. Textual failure keywords win over the exit code; lines
// reporting an idempotent condition such as "already exists" are not
// failures, and output made only of warnings is a success.
func Assess(res *domain.ExecResult) Verdict {
	if res == nil {
		return Verdict{Category: constants.CategoryMissingImplementation, Reason: "no execution result"}
	}

	output := res.Output
	if res.Lint != "" && !strings.Contains(output, res.Lint) {
		output += "\n" + res.Lint
	}

	var failureLine string
	idempotent := false
	warningsOnly := true
	nonBlank := 0
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonBlank++
		lower := strings.ToLower(trimmed)
		if containsAny(lower, idempotentPhrases) {
			idempotent = true
			continue
		}
		if !warningPattern.MatchString(trimmed) {
			warningsOnly = false
		}
		if failureLine == "" && failurePattern.MatchString(benignPattern.ReplaceAllString(trimmed, "")) &&
			!warningPattern.MatchString(trimmed) {
			failureLine = trimmed
		}
	}

	switch {
	case failureLine != "":
		return Verdict{Category: Categorize(output), Reason: failureLine}
	case res.ExitCode == 0:
		return Verdict{Success: true}
	case idempotent:
		return Verdict{Success: true, Reason: "idempotent condition"}
	case nonBlank > 0 && warningsOnly:
		return Verdict{Success: true, Reason: "warnings only"}
	case nonBlank == 0:
		return Verdict{Category: constants.CategoryMissingImplementation, Reason: "command failed without output"}
	default:
		return Verdict{Category: Categorize(output), Reason: lastLine(output)}
	}
}

// Categorize classifies failure output. Infrastructure keywords win over
// code-level ones.
func Categorize(output string) constants.ErrorCategory {
	lower := strings.ToLower(output)
	for _, c := range categoryKeywords {
		if containsAny(lower, c.keywords) {
			return c.category
		}
	}
	return constants.CategoryUnknown
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
