package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/checkpoint"
	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/llm/llmtest"
	"github.com/mrz1836/forge/internal/sandbox/sandboxtest"
)

type okHealth struct{}

func (okHealth) Check(context.Context, string) error { return nil }

// testEnv runs the real command tree against a scripted model, an in-memory
// sandbox, and a file checkpoint store under a temporary forge home.
type testEnv struct {
	app    *app
	out    *bytes.Buffer
	stderr *bytes.Buffer
	model  *llmtest.Scripted
	box    *sandboxtest.Fake
	cfg    *config.Config

	confirmed []string
	answer    bool
	answerErr error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("FORGE_HOME", home)
	t.Setenv("NO_COLOR", "1")

	cfg := config.DefaultConfig()
	cfg.Workflow.HealthInterval = time.Millisecond
	checkpoints := t.TempDir()

	env := &testEnv{
		out:    &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		model:  llmtest.NewScripted(),
		box:    sandboxtest.New(),
		cfg:    cfg,
		answer: true,
	}
	env.app = &app{
		flags: &GlobalFlags{},
		factory: &ServiceFactory{
			Open: func(_ context.Context, _ *GlobalFlags, _ zerolog.Logger) (*Services, error) {
				store, err := checkpoint.NewFileStore(checkpoints)
				if err != nil {
					return nil, err
				}
				return AssembleServices(cfg, home, Backends{
					Client:  env.model,
					Sandbox: env.box,
					Store:   store,
					Health:  okHealth{},
				}, zerolog.Nop())
			},
		},
		out: env.out,
		confirm: func(message string) (bool, error) {
			env.confirmed = append(env.confirmed, message)
			return env.answer, env.answerErr
		},
	}
	return env
}

// exec runs one command line with fresh flags and output buffers.
func (e *testEnv) exec(t *testing.T, args ...string) error {
	t.Helper()
	e.out.Reset()
	e.stderr.Reset()
	e.app.flags = &GlobalFlags{}
	return execute(context.Background(), e.app, BuildInfo{Version: "test"}, args, e.stderr)
}

const oneStepPlan = `{"steps": [{"description": "server", "action": "write_file",
  "file_path": "/workspace/server.js", "content": "require('http')\n"}]}`

func (e *testEnv) scriptSession() {
	e.model.Queue("architect", "## Overview\nServe a static JSON message.")
	e.model.Queue("task_manager", `{"tasks": [{"title": "serve json"}]}`)
	e.model.Queue("test_gen", "curl -fsS http://localhost:3000/")
	e.model.Queue("reasoning", "Write server.js with the http module.")
	e.model.Queue("planner", oneStepPlan)
}

func requireExitCode(t *testing.T, want int, err error) {
	t.Helper()
	require.Equal(t, want, ExitCodeForError(err), "error: %v", err)
}
