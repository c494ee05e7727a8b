package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
)

func failedState() *domain.WorkflowState {
	st := newState()
	st.CurrentTask = "serve json"
	st.Plan = []domain.PlanStep{
		{ID: "step-1", Action: constants.ActionCommand, Command: "npm init -y"},
		{ID: "step-2", Action: constants.ActionCommand, Command: "node server.js"},
		{ID: "step-3", Action: constants.ActionCommand, Command: "npm test"},
	}
	st.CurrentStepIndex = 1
	st.Status = constants.StatusFailed
	st.ErrorCategory = constants.CategoryMissingImplementation
	st.LastResult = &domain.ExecResult{ExitCode: 1, Output: "Error: Cannot find module 'express'"}
	st.ErrorHistory = []string{"[step-2] run node server.js failed: Error: Cannot find module 'express'"}
	return st
}

func TestDebugger_InsertsFix(t *testing.T) {
	h := newHarness(t)
	h.model.Queue("debugger", "```json\n"+
		`{"step": {"id": "x", "description": "install express", "action": "command", "command": "npm install express"}}`+
		"\n```")
	st := failedState()

	apply(t, &Debugger{deps: h.deps}, st)

	assert.Equal(t, constants.StatusCoding, st.Status)
	assert.Equal(t, 1, st.CurrentStepIndex)
	require.Len(t, st.Plan, 4)
	assert.Equal(t, "fix-1", st.Plan[1].ID)
	assert.Equal(t, "npm install express", st.Plan[1].Command)
	assert.Equal(t, "step-2", st.Plan[2].ID, "failed step retried after the fix")
	assert.Nil(t, st.LastResult)

	calls := h.model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, "Cannot find module 'express'")
}

func TestDebugger_ReplacesFailedStep(t *testing.T) {
	h := newHarness(t)
	h.model.Queue("debugger",
		`{"step": {"action": "write_file", "file_path": "server.js", "content": "require('http')"}, "replaces_failed_step": true}`)
	st := failedState()
	st.Plan[0].ID = "fix-1"

	apply(t, &Debugger{deps: h.deps}, st)

	require.Len(t, st.Plan, 3)
	assert.Equal(t, "fix-2", st.Plan[1].ID)
	assert.Equal(t, constants.ActionWriteFile, st.Plan[1].Action)
	assert.Equal(t, "step-3", st.Plan[2].ID)
}

func TestDebugger_InvalidProposalFails(t *testing.T) {
	h := newHarness(t)
	h.model.Queue("debugger", `{"step": {"action": "command", "command": ""}}`)
	st := failedState()

	apply(t, &Debugger{deps: h.deps}, st)

	assert.Equal(t, constants.StatusFailed, st.Status)
	assert.Len(t, st.Plan, 3)
	require.Len(t, st.ErrorHistory, 2)
	assert.Contains(t, st.ErrorHistory[1], "debugger failed")
	assert.Equal(t, 1, h.model.CallsFor("debugger"), "the debugger does not retry")
}

func TestDebugger_SanitizesFix(t *testing.T) {
	h := newHarness(t)
	h.model.Queue("debugger",
		`{"step": {"action": "write_file", "file_path": "/workspace/server.js", "content": "`+"```js\\nrequire('http')\\n```"+`"}, "replaces_failed_step": true}`)
	st := failedState()

	apply(t, &Debugger{deps: h.deps}, st)

	require.Len(t, st.Plan, 3)
	fix := st.Plan[1]
	assert.Equal(t, "server.js", fix.FilePath)
	assert.Equal(t, "require('http')\n", fix.Content)

	apply(t, &Executor{deps: h.deps}, st)

	content, ok := h.box.File("server.js")
	require.True(t, ok)
	assert.Equal(t, "require('http')\n", content)
}

func TestDebugger_EscapingFixFails(t *testing.T) {
	h := newHarness(t)
	h.model.Queue("debugger",
		`{"step": {"action": "write_file", "file_path": "../etc/passwd", "content": "x"}}`)
	st := failedState()

	apply(t, &Debugger{deps: h.deps}, st)

	assert.Equal(t, constants.StatusFailed, st.Status)
	assert.Len(t, st.Plan, 3)
	require.Len(t, st.ErrorHistory, 2)
	assert.Contains(t, st.ErrorHistory[1], "escapes the workdir")
}
