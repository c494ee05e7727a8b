package cli

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/checkpoint"
	"github.com/mrz1836/forge/internal/constants"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

func TestRun_YoloPasses(t *testing.T) {
	env := newTestEnv(t)
	env.scriptSession()

	err := env.exec(t, "run", "--yolo", "--project", "acme", "--thread", "t1", "serve", "json")
	require.NoError(t, err)

	out := env.out.String()
	assert.Contains(t, out, "Session t1")
	assert.Contains(t, out, "✓ qa_passed")
	assert.Contains(t, out, "session t1 passed verification")

	server, ok := env.box.File("server.js")
	require.True(t, ok)
	assert.Equal(t, "require('http')\n", server)
}

func TestRun_JSONOutput(t *testing.T) {
	env := newTestEnv(t)
	env.scriptSession()

	require.NoError(t, env.exec(t, "run", "-o", "json", "--yolo", "--thread", "t1", "serve json"))

	var view resultView
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &view))
	assert.Equal(t, "t1", view.ThreadID)
	assert.Equal(t, constants.StatusQAPassed, view.Status)
	assert.True(t, view.Finished)
	assert.False(t, view.Paused)
	assert.Equal(t, 1, view.CompletedTasks)
}

func TestRun_PausesAndApproves(t *testing.T) {
	env := newTestEnv(t)
	env.scriptSession()

	err := env.exec(t, "run", "--project", "acme", "--thread", "t1", "serve json")
	requireExitCode(t, ExitPaused, err)
	assert.Contains(t, env.out.String(), "forge approve t1")
	assert.Empty(t, env.stderr.String(), "a pause is not reported as an error")

	err = env.exec(t, "approve", "t1", "--yes")
	requireExitCode(t, ExitPaused, err)
	assert.Contains(t, env.out.String(), "paused before executor")
	assert.Empty(t, env.confirmed)

	require.NoError(t, env.exec(t, "approve", "t1", "--yes"))
	assert.Contains(t, env.out.String(), "passed verification")

	err = env.exec(t, "approve", "t1", "--yes")
	requireExitCode(t, ExitError, err)
	require.ErrorIs(t, err, forgeerrors.ErrSessionFinished)
}

func TestApprove_ShowsSpecAndConfirms(t *testing.T) {
	env := newTestEnv(t)
	env.scriptSession()
	requireExitCode(t, ExitPaused, env.exec(t, "run", "--thread", "t1", "serve json"))

	env.answer = false
	err := env.exec(t, "approve", "t1")
	require.ErrorIs(t, err, forgeerrors.ErrUserCanceled)
	assert.Contains(t, env.out.String(), "Specification for: serve json")
	assert.Contains(t, env.out.String(), "Serve a static JSON message.")
	assert.Equal(t, []string{"Approve and resume?"}, env.confirmed)

	env.answer = true
	requireExitCode(t, ExitPaused, env.exec(t, "approve", "t1"))

	env.answer = false
	require.ErrorIs(t, env.exec(t, "approve", "t1"), forgeerrors.ErrUserCanceled)
	assert.Contains(t, env.out.String(), "Next step 1/1")
	assert.Contains(t, env.out.String(), "write /workspace/server.js")
}

func TestApprove_WithoutTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.scriptSession()
	requireExitCode(t, ExitPaused, env.exec(t, "run", "--thread", "t1", "serve json"))

	env.answerErr = forgeerrors.ErrNonInteractive
	err := env.exec(t, "approve", "t1")
	requireExitCode(t, ExitInvalidInput, err)
	assert.Contains(t, env.stderr.String(), "--yes")
}

func TestApprove_NotPaused(t *testing.T) {
	env := newTestEnv(t)
	env.scriptSession()
	require.NoError(t, env.exec(t, "run", "--yolo", "--thread", "t1", "serve json"))

	err := env.exec(t, "approve", "t1", "--yes")
	require.ErrorIs(t, err, forgeerrors.ErrSessionFinished)

	err = env.exec(t, "approve", "missing", "--yes")
	require.ErrorIs(t, err, forgeerrors.ErrThreadNotFound)
}

func TestRun_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing goal", args: []string{"run"}},
		{name: "bad output", args: []string{"run", "-o", "yaml", "goal"}},
		{name: "unknown flag", args: []string{"run", "--nope", "goal"}},
		{name: "approve without thread", args: []string{"approve"}},
		{name: "verbose and quiet", args: []string{"list", "-v", "-q"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			requireExitCode(t, ExitInvalidInput, env.exec(t, tt.args...))
		})
	}
}

func TestRun_FailedSession(t *testing.T) {
	env := newTestEnv(t)
	env.box.EnsureErr = stderrors.New("cannot connect to the docker daemon")

	err := env.exec(t, "run", "--yolo", "--thread", "t1", "serve json")
	requireExitCode(t, ExitError, err)
	require.ErrorIs(t, err, forgeerrors.ErrSessionFailed)
	assert.Contains(t, env.out.String(), "cannot connect to the docker daemon")
}

func TestStatusListPurge(t *testing.T) {
	env := newTestEnv(t)
	env.scriptSession()
	require.NoError(t, env.exec(t, "run", "--yolo", "--project", "acme", "--thread", "t1", "serve json"))

	require.NoError(t, env.exec(t, "status", "t1", "--logs", "2"))
	out := env.out.String()
	assert.Contains(t, out, "Session t1")
	assert.Contains(t, out, "Project:     acme")
	assert.Contains(t, out, "Logs")
	assert.Contains(t, out, "revision ")

	require.NoError(t, env.exec(t, "status", "t1", "-o", "json"))
	var cp struct {
		ThreadID string `json:"thread_id"`
		NextNode string `json:"next_node"`
	}
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &cp))
	assert.Equal(t, "t1", cp.ThreadID)
	assert.Equal(t, "end", cp.NextNode)

	require.NoError(t, env.exec(t, "list"))
	assert.Contains(t, env.out.String(), "THREAD")
	assert.Contains(t, env.out.String(), "t1")

	require.NoError(t, env.exec(t, "list", "-o", "json"))
	var sessions []checkpoint.Summary
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, constants.StatusQAPassed, sessions[0].Status)

	require.NoError(t, env.exec(t, "purge", "t1"))
	assert.Contains(t, env.out.String(), "purged session t1")

	err := env.exec(t, "status", "t1")
	requireExitCode(t, ExitError, err)
	assert.Contains(t, env.stderr.String(), "forge list")

	require.NoError(t, env.exec(t, "list", "-o", "json"))
	assert.Equal(t, "[]\n", env.out.String())
}

func TestSandboxCommands(t *testing.T) {
	env := newTestEnv(t)
	env.box.HandlePrefix("npm test", 1, "FAIL api")
	env.box.HandlePrefix("ls", 0, "server.js\n")

	require.NoError(t, env.exec(t, "sandbox", "ensure", "acme", "--stack", "python"))
	assert.Contains(t, env.out.String(), "sandbox forge-acme created (stack python)")
	assert.Contains(t, env.out.String(), "port 3000 -> localhost:49153")

	require.NoError(t, env.exec(t, "sandbox", "exec", "forge-acme", "--", "ls"))
	assert.Equal(t, "server.js\n", env.out.String())

	err := env.exec(t, "sandbox", "exec", "forge-acme", "--", "npm", "test")
	require.ErrorIs(t, err, forgeerrors.ErrCommandFailed)
	assert.Equal(t, "FAIL api\n", env.out.String())

	requireExitCode(t, ExitInvalidInput, env.exec(t, "sandbox", "exec", "../x", "--", "ls"))

	require.NoError(t, env.exec(t, "sandbox", "cleanup", "forge-acme"))
	assert.False(t, env.box.Created)
}

func TestSandboxEnsure_Fresh(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.exec(t, "sandbox", "ensure", "acme", "--fresh", "-o", "json"))

	var rec struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &rec))
	assert.True(t, strings.HasPrefix(rec.Name, "forge-acme-"))
	assert.Len(t, rec.Name, len("forge-acme-")+8)
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)
	env.box.SetFile("server.js", "const http = require('http')\nhttp.createServer().listen(3000)\n")

	require.NoError(t, env.exec(t, "index", "acme"))
	assert.Contains(t, env.out.String(), "indexed acme: 1 files")

	home := os.Getenv("FORGE_HOME")
	_, err := os.Stat(filepath.Join(home, constants.IndexDir))
	require.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.exec(t, "config", "show"))
	assert.Contains(t, env.out.String(), "max_transitions: 150")

	path := filepath.Join(t.TempDir(), "forge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow:\n  max_transitions: 40\n"), 0o600))
	require.NoError(t, env.exec(t, "config", "show", "--config", path))
	assert.Contains(t, env.out.String(), "max_transitions: 40")

	requireExitCode(t, ExitInvalidInput, env.exec(t, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestRootCommand(t *testing.T) {
	env := newTestEnv(t)
	cmd := newRootCmd(env.app, BuildInfo{Version: "1.2.3", Commit: "abc", Date: "today"})

	assert.Equal(t, "1.2.3 (commit: abc, built: today)", cmd.Version)
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "approve", "status", "list", "purge", "sandbox", "index", "terminal", "config"} {
		assert.Contains(t, names, want)
	}

	assert.Equal(t, "dev (commit: none, built: unknown)", formatVersion(BuildInfo{}))
}

func TestList_WatchValidation(t *testing.T) {
	env := newTestEnv(t)

	err := env.exec(t, "list", "--watch", "-o", "json")
	requireExitCode(t, ExitInvalidInput, err)
	require.ErrorIs(t, err, forgeerrors.ErrWatchModeJSONUnsupported)

	err = env.exec(t, "list", "--watch", "--interval", "10ms")
	requireExitCode(t, ExitInvalidInput, err)
	require.ErrorIs(t, err, forgeerrors.ErrWatchIntervalTooShort)
}
