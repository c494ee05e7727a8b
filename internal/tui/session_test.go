package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
)

func TestWriteSession(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	st := domain.NewWorkflowState("thread-1", "acme", "serve json")
	st.Status = constants.StatusWaitingInteraction
	st.TotalTasks = 2
	st.CompletedTasks = 1
	st.CurrentTask = "serve json"
	st.ErrorHistory = []string{"[step-1] run npm test failed\nstack trace"}
	st.Plan = []domain.PlanStep{
		{ID: "step-1", Action: constants.ActionCommand, Command: "npm install"},
		{ID: "step-2", Action: constants.ActionCommand, Command: "npm login", Interactive: true},
		{ID: "step-3", Action: constants.ActionWriteFile, FilePath: "/workspace/app.js"},
	}
	st.CurrentStepIndex = 1

	var buf bytes.Buffer
	WriteSession(&buf, SessionView{State: st, NextNode: "executor", Paused: true})
	out := buf.String()

	assert.Contains(t, out, "thread-1")
	assert.Contains(t, out, "⚠ waiting_interaction")
	assert.Contains(t, out, "Tasks:       1/2")
	assert.Contains(t, out, "Next node:   executor")
	assert.Contains(t, out, "[step-1] run npm test failed")
	assert.NotContains(t, out, "stack trace")
	assert.Contains(t, out, "forge terminal attach")
	assert.Contains(t, out, "✓ [step-1] run npm install")
	assert.Contains(t, out, "▶ [step-2] run npm login (interactive)")
	assert.Contains(t, out, "○ [step-3] write /workspace/app.js")
}

func TestRenderMarkdown_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	src := "# Specification\n\nserve json\n"
	assert.Equal(t, src, RenderMarkdown(src))
}

func TestRenderMarkdown(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	out := RenderMarkdown("# Specification\n\nserve json\n")
	assert.Contains(t, out, "serve json")
}
