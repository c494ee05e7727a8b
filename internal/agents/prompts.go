package agents

import (
	"regexp"
	"strings"

	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/prompts"
)

// System prompts, one per model-calling role.
const (
	architectSystem = `You are a software architect. You write concise, buildable technical specifications
for small web applications that run inside a single Linux container.`

	taskManagerSystem = `You are a technical project manager. You split a specification into a short ordered
list of coarse, independently verifiable tasks.`

	reasoningSystem = `You are a senior engineer. You decide how a task is implemented before anyone writes code.`

	plannerSystem = `You are a senior engineer turning a task into exact executable steps. Steps either run a
shell command or write a complete file. Never leave placeholders in file content.`

	debuggerSystem = `You are a debugging expert. Given a failed step and its output, you propose exactly one
step that fixes the cause.`

	strategistSystem = `You are an engineering lead. Local fixes have failed repeatedly. Decide how the team
recovers: REPLAN, PIVOT, SKIP, or ABORT.`

	testGenSystem = `You write small POSIX shell scripts that verify a running web application end to end.`
)

func renderUser(id prompts.PromptID, data any) ([]llm.Message, error) {
	text, err := prompts.Render(id, data)
	if err != nil {
		return nil, err
	}
	return []llm.Message{llm.User(text)}, nil
}

var fencePattern = regexp.MustCompile("(?s)^```[A-Za-z0-9_+.-]*[ \t]*\r?\n(.*?)\r?\n?```\\s*$")

// StripFences removes a code fence wrapping the whole of s. Content that merely
// contains fenced blocks is left alone.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		if !strings.Contains(m[1], "```") {
			return m[1] + "\n"
		}
	}
	return s
}
