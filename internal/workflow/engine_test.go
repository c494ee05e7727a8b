package workflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/agents"
	"github.com/mrz1836/forge/internal/checkpoint"
	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/llm/llmtest"
	"github.com/mrz1836/forge/internal/sandbox"
	"github.com/mrz1836/forge/internal/sandbox/sandboxtest"
)

type nopMemory struct{}

func (nopMemory) Assemble(context.Context, string, string, string) (string, error) { return "", nil }

func (nopMemory) Reindex(context.Context, string, string) error { return nil }

type okHealth struct{}

func (okHealth) Check(context.Context, string) error { return nil }

// funcNode is a node whose update is computed by fn.
type funcNode struct {
	name agents.Name
	fn   func(*domain.WorkflowState) (domain.Update, error)
}

func (n funcNode) Name() agents.Name { return n.name }

func (n funcNode) Run(_ context.Context, st *domain.WorkflowState) (domain.Update, error) {
	return n.fn(st)
}

func setStatus(s constants.WorkflowStatus) func(*domain.WorkflowState) (domain.Update, error) {
	return func(*domain.WorkflowState) (domain.Update, error) {
		return domain.Update{Status: domain.Ptr(s)}, nil
	}
}

type recordingMetrics struct {
	mu       sync.Mutex
	started  int
	nodes    []agents.Name
	statuses []constants.WorkflowStatus
	paused   []agents.Name
	finished []constants.WorkflowStatus
}

func (m *recordingMetrics) SessionStarted(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *recordingMetrics) NodeExecuted(_ string, node agents.Name, _ time.Duration, status constants.WorkflowStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append(m.nodes, node)
	m.statuses = append(m.statuses, status)
}

// count returns how many nodes left status behind.
func (m *recordingMetrics) count(status constants.WorkflowStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.statuses {
		if s == status {
			n++
		}
	}
	return n
}

// after returns the node that ran right after the first run of node, or
// NodeEnd when none did.
func (m *recordingMetrics) after(node agents.Name) agents.Name {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.nodes {
		if n == node && i+1 < len(m.nodes) {
			return m.nodes[i+1]
		}
	}
	return agents.NodeEnd
}

func (m *recordingMetrics) SessionPaused(_ string, node agents.Name) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = append(m.paused, node)
}

func (m *recordingMetrics) SessionFinished(_ string, _ int, status constants.WorkflowStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, status)
}

type fixture struct {
	cfg   *config.Config
	model *llmtest.Scripted
	box   *sandboxtest.Fake
	store checkpoint.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workflow.HealthInterval = time.Millisecond

	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &fixture{
		cfg:   cfg,
		model: llmtest.NewScripted(),
		box:   sandboxtest.New(),
		store: store,
	}
}

// engine wires the real node set to the fixture's fakes.
func (f *fixture) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	reg, err := agents.New(agents.Deps{
		Client:  f.model,
		Sandbox: f.box,
		Memory:  nopMemory{},
		Health:  okHealth{},
		Config:  f.cfg,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return NewEngine(reg, f.store, f.cfg, opts...)
}

// stubEngine runs only the given nodes.
func (f *fixture) stubEngine(nodes []agents.Node, opts ...Option) *Engine {
	reg := agents.NewRegistry()
	for _, n := range nodes {
		reg.Register(n)
	}
	return NewEngine(reg, f.store, f.cfg, opts...)
}

const oneStepPlan = `{"steps": [{"description": "server", "action": "write_file",
  "file_path": "/workspace/server.js", "content": "` + "```js\\nrequire('http')\\n```" + `"}]}`

func (f *fixture) scriptSession(plan string) {
	f.model.Queue("architect", "## Overview\nServe a static JSON message.")
	f.model.Queue("task_manager", `{"tasks": [{"title": "serve json"}]}`)
	f.model.Queue("test_gen", "curl -fsS http://localhost:3000/")
	f.model.Queue("reasoning", "Write server.js with the http module.")
	f.model.Queue("planner", plan)
}

func TestEngine_YoloRunsToCompletion(t *testing.T) {
	f := newFixture(t)
	f.scriptSession(oneStepPlan)
	metrics := &recordingMetrics{}
	e := f.engine(t, WithMetrics(metrics))

	res, err := e.Run(context.Background(), "add an endpoint returning a static JSON message",
		RunOptions{Yolo: true, ProjectID: "acme"})
	require.NoError(t, err)

	assert.True(t, res.Finished())
	assert.True(t, res.Succeeded())
	assert.False(t, res.Paused)
	assert.Equal(t, "forge-acme", res.State.SandboxName)
	assert.Equal(t, "node", res.State.Stack)
	assert.Equal(t, 1, res.State.CompletedTasks)
	assert.Equal(t, 1, res.State.TotalTasks)
	assert.Equal(t, 16, res.State.Transitions)

	server, ok := f.box.File("server.js")
	require.True(t, ok)
	assert.Equal(t, "require('http')\n", server)
	_, ok = f.box.File(constants.VerifyScriptPath)
	assert.True(t, ok)

	raw, ok := f.box.File(constants.TasksFileName)
	require.True(t, ok)
	var tl domain.TaskList
	require.NoError(t, json.Unmarshal([]byte(raw), &tl))
	require.Len(t, tl.Tasks, 1)
	assert.Equal(t, constants.TaskCompleted, tl.Tasks[0].Status)

	assert.Equal(t, []agents.Name{
		agents.NodeOverseer, agents.NodeArchitect, agents.NodeSpecApproval, agents.NodeTaskManager,
		agents.NodeOverseer, agents.NodeTestGen, agents.NodeDeveloper, agents.NodeReasoning,
		agents.NodePlanner, agents.NodeDeveloper, agents.NodeExecutor, agents.NodeReviewer,
		agents.NodeDeveloper, agents.NodeOverseer, agents.NodeTester, agents.NodeOverseer,
	}, metrics.nodes)
	assert.Equal(t, 1, metrics.started)
	assert.Empty(t, metrics.paused)
	assert.Equal(t, []constants.WorkflowStatus{constants.StatusQAPassed}, metrics.finished)

	cp, err := e.Status(context.Background(), res.ThreadID)
	require.NoError(t, err)
	assert.True(t, cp.Finished())
	assert.Equal(t, constants.StatusQAPassed, cp.State.Status)
}

// reviewed returns the reviewer's log lines for accepted steps, in order.
func reviewed(st *domain.WorkflowState) []string {
	var out []string
	for _, l := range st.Logs {
		if strings.HasPrefix(l, "reviewer: ") && strings.HasSuffix(l, " done") {
			out = append(out, strings.TrimPrefix(l, "reviewer: "))
		}
	}
	return out
}

func TestEngine_PlansRunInOrder(t *testing.T) {
	tests := []struct {
		name     string
		plan     string
		reviewed []string
		check    func(t *testing.T, f *fixture)
	}{
		{
			name: "three steps",
			plan: `{"steps": [
  {"description": "manifest", "action": "write_file", "file_path": "package.json", "content": "{\"name\": \"acme\"}"},
  {"description": "server", "action": "write_file", "file_path": "server.js", "content": "require('http')"},
  {"description": "deps", "action": "command", "command": "npm install"}]}`,
			reviewed: []string{"[step-1] write package.json done", "[step-2] write server.js done", "[step-3] run npm install done"},
			check: func(t *testing.T, f *fixture) {
				manifest, ok := f.box.File("package.json")
				require.True(t, ok)
				assert.JSONEq(t, `{"name": "acme"}`, manifest)
				assert.True(t, f.box.RanCommand("npm install"))
			},
		},
		{
			name: "write then run",
			plan: `{"steps": [
  {"description": "server", "action": "write_file", "file_path": "/workspace/server.js", "content": "require('http').createServer().listen(3000)"},
  {"description": "start", "action": "command", "command": "node server.js"}]}`,
			reviewed: []string{"[step-1] write server.js done", "[step-2] run node server.js done"},
			check: func(t *testing.T, f *fixture) {
				server, ok := f.box.File("server.js")
				require.True(t, ok)
				assert.Equal(t, "require('http').createServer().listen(3000)", server)
				assert.True(t, f.box.RanCommand("node server.js"))
				// Once before the detached launch, once by the tester.
				assert.Equal(t, 2, f.box.ServerStops)
				assert.Equal(t, 1, f.box.ServerStarts)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.scriptSession(tt.plan)
			metrics := &recordingMetrics{}
			e := f.engine(t, WithMetrics(metrics))

			res, err := e.Run(context.Background(), "serve json", RunOptions{Yolo: true, ProjectID: "acme"})
			require.NoError(t, err)

			assert.True(t, res.Succeeded())
			assert.Equal(t, tt.reviewed, reviewed(res.State))
			assert.Equal(t, 1, metrics.count(constants.StatusExecutionDone))
			assert.Equal(t, 1, res.State.CompletedTasks)
			assert.Empty(t, res.State.ErrorHistory)
			tt.check(t, f)
		})
	}
}

func TestEngine_DebuggerFixRunsBeforeRetry(t *testing.T) {
	f := newFixture(t)
	f.scriptSession(`{"steps": [{"description": "tests", "action": "command", "command": "npm test"}]}`)
	f.model.Queue("debugger", `{"step": {"description": "install express", "action": "command", "command": "npm install express"}}`)
	runs := 0
	f.box.Handle(func(cmd string) *domain.ExecResult {
		if !strings.HasPrefix(cmd, "npm test") {
			return nil
		}
		runs++
		if runs == 1 {
			return &domain.ExecResult{ExitCode: 1, Output: "Error: Cannot find module 'express'"}
		}
		return &domain.ExecResult{ExitCode: 0, Output: "1 passing"}
	})
	metrics := &recordingMetrics{}
	e := f.engine(t, WithMetrics(metrics))

	res, err := e.Run(context.Background(), "serve json", RunOptions{Yolo: true, ProjectID: "acme"})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, agents.NodeDebugger, metrics.after(agents.NodeReviewer))
	assert.Equal(t, agents.NodeExecutor, metrics.after(agents.NodeDebugger))
	assert.Equal(t, []string{"[fix-1] run npm install express done", "[step-1] run npm test done"}, reviewed(res.State))
	assert.Equal(t, 2, runs)
	require.Len(t, res.State.ErrorHistory, 1)
	assert.Contains(t, res.State.ErrorHistory[0], "Cannot find module 'express'")
	assert.Equal(t, 1, metrics.count(constants.StatusExecutionDone))
}

func TestEngine_StrategistRoutes(t *testing.T) {
	const recoveryPlan = `{"steps": [{"description": "deps", "action": "command", "command": "npm install"}]}`

	tests := []struct {
		name     string
		decision string
		script   func(f *fixture)
		next     agents.Name
		status   constants.WorkflowStatus
	}{
		{
			name:     "replan returns to the planner",
			decision: `{"action": "REPLAN", "directive": "drop the test step"}`,
			script:   func(f *fixture) { f.model.Queue("planner", recoveryPlan) },
			next:     agents.NodePlanner,
			status:   constants.StatusQAPassed,
		},
		{
			name:     "pivot returns to reasoning",
			decision: `{"action": "PIVOT", "directive": "serve with the http module"}`,
			script: func(f *fixture) {
				f.model.Queue("reasoning", "Use the http module only.")
				f.model.Queue("planner", recoveryPlan)
			},
			next:   agents.NodeReasoning,
			status: constants.StatusQAPassed,
		},
		{
			name:     "skip hands the next task to the developer",
			decision: `{"action": "SKIP", "directive": "tests are optional"}`,
			next:     agents.NodeDeveloper,
			status:   constants.StatusQAPassed,
		},
		{
			name:     "abort ends the session",
			decision: `{"action": "ABORT", "directive": "cannot recover"}`,
			next:     agents.NodeEnd,
			status:   constants.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cfg.Workflow.LoopThreshold = 1
			f.scriptSession(`{"steps": [{"description": "tests", "action": "command", "command": "npm test"}]}`)
			f.box.HandlePrefix("npm test", 1, "Error: Cannot find module 'express'")
			f.model.Queue("strategist", tt.decision)
			if tt.script != nil {
				tt.script(f)
			}
			metrics := &recordingMetrics{}
			e := f.engine(t, WithMetrics(metrics))

			res, err := e.Run(context.Background(), "serve json", RunOptions{Yolo: true, ProjectID: "acme"})
			require.NoError(t, err)

			assert.True(t, res.Finished())
			assert.Equal(t, tt.status, res.State.Status)
			assert.Equal(t, agents.NodeStrategist, metrics.after(agents.NodeReviewer))
			assert.Equal(t, tt.next, metrics.after(agents.NodeStrategist))
			assert.Equal(t, 1, f.model.CallsFor("strategist"))
			assert.False(t, res.State.LoopDetected)
		})
	}
}

func TestEngine_PausesAtInterruptPoints(t *testing.T) {
	f := newFixture(t)
	f.scriptSession(oneStepPlan)
	var bell bytes.Buffer
	e := f.engine(t, WithNotifier(NewNotifierWithWriter(DefaultNotificationConfig(), &bell)))
	ctx := context.Background()

	res, err := e.Run(ctx, "serve json", RunOptions{ThreadID: "session-1"})
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Equal(t, agents.NodeSpecApproval, res.NextNode)
	assert.Equal(t, constants.StatusWaitingApproval, res.State.Status)
	assert.Equal(t, "\a", bell.String())

	cp, err := e.Status(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, cp.Paused)
	assert.Equal(t, "spec_approval", cp.NextNode)

	// Running the same thread again stays at the gate.
	res, err = e.Run(ctx, "", RunOptions{ThreadID: "session-1"})
	require.NoError(t, err)
	assert.Equal(t, agents.NodeSpecApproval, res.NextNode)
	assert.Equal(t, 2, res.State.Transitions)

	res, err = e.Approve(ctx, "session-1", false)
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Equal(t, agents.NodeExecutor, res.NextNode)
	assert.Equal(t, constants.StatusCoding, res.State.Status)
	assert.True(t, res.State.SpecApproved)
	_, ok := f.box.File("server.js")
	assert.False(t, ok, "the step has not run yet")

	res, err = e.Approve(ctx, "session-1", false)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	_, err = e.Approve(ctx, "session-1", false)
	require.ErrorIs(t, err, forgeerrors.ErrSessionFinished)
}

func TestEngine_InteractiveStep(t *testing.T) {
	f := newFixture(t)
	f.scriptSession(`{"steps": [{"description": "scaffold", "action": "command", "command": "npx create-thing", "interactive": true}]}`)
	e := f.engine(t)
	ctx := context.Background()

	res, err := e.Run(ctx, "serve json", RunOptions{ThreadID: "session-2"})
	require.NoError(t, err)
	require.Equal(t, agents.NodeSpecApproval, res.NextNode)

	res, err = e.Approve(ctx, "session-2", false)
	require.NoError(t, err)
	require.Equal(t, agents.NodeExecutor, res.NextNode)
	assert.False(t, res.AwaitingOperator())

	res, err = e.Approve(ctx, "session-2", false)
	require.NoError(t, err)
	assert.True(t, res.AwaitingOperator())
	assert.Equal(t, agents.NodeExecutor, res.NextNode)
	assert.False(t, f.box.RanCommand("npx create-thing"))

	res, err = e.Approve(ctx, "session-2", false)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Contains(t, res.State.Logs, "[engine] [step-1] run npx create-thing completed by operator")
}

func TestEngine_YoloCompletesInteractiveStep(t *testing.T) {
	f := newFixture(t)
	f.scriptSession(`{"steps": [{"description": "scaffold", "action": "command", "command": "npx create-thing", "interactive": true}]}`)
	e := f.engine(t)

	res, err := e.Run(context.Background(), "serve json", RunOptions{Yolo: true})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Contains(t, res.State.Logs, "[engine] [step-1] run npx create-thing completed by yolo")
}

func TestEngine_TransitionCeiling(t *testing.T) {
	f := newFixture(t)
	f.cfg.Workflow.MaxTransitions = 10
	e := f.stubEngine([]agents.Node{
		funcNode{agents.NodeOverseer, setStatus(constants.StatusPlanningNeeded)},
		funcNode{agents.NodeArchitect, setStatus(constants.StatusSpecReady)},
		funcNode{agents.NodeTaskManager, setStatus(constants.StatusSpecReady)},
	})

	res, err := e.Run(context.Background(), "spin", RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Finished())
	assert.Equal(t, constants.StatusFailed, res.State.Status)
	assert.Equal(t, 10, res.State.Transitions)
	assert.Contains(t, res.State.LastError(), "transition ceiling")
}

func TestEngine_UnroutableStatusFails(t *testing.T) {
	f := newFixture(t)
	e := f.stubEngine([]agents.Node{
		funcNode{agents.NodeOverseer, setStatus(constants.StatusCoding)},
	})

	res, err := e.Run(context.Background(), "goal", RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Finished())
	assert.Equal(t, constants.StatusFailed, res.State.Status)
	assert.Contains(t, res.State.LastError(), "unroutable status")
}

func TestEngine_InvalidUpdateFails(t *testing.T) {
	f := newFixture(t)
	e := f.stubEngine([]agents.Node{
		funcNode{agents.NodeOverseer, func(*domain.WorkflowState) (domain.Update, error) {
			return domain.Update{PopTask: true}, nil
		}},
	})

	res, err := e.Run(context.Background(), "goal", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, constants.StatusFailed, res.State.Status)
	assert.Contains(t, res.State.LastError(), "empty task queue")
}

func TestEngine_NodeErrorKeepsCheckpoint(t *testing.T) {
	f := newFixture(t)
	e := f.stubEngine([]agents.Node{
		funcNode{agents.NodeOverseer, func(*domain.WorkflowState) (domain.Update, error) {
			return domain.Update{}, context.Canceled
		}},
	})
	ctx := context.Background()

	_, err := e.Run(ctx, "goal", RunOptions{ThreadID: "session-3"})
	require.ErrorIs(t, err, context.Canceled)

	cp, err := e.Status(ctx, "session-3")
	require.NoError(t, err)
	assert.Equal(t, "overseer", cp.NextNode)
	assert.False(t, cp.Paused)
	assert.Zero(t, cp.State.Transitions)
}

func TestEngine_ApproveErrors(t *testing.T) {
	f := newFixture(t)
	e := f.stubEngine(nil)
	ctx := context.Background()

	_, err := e.Approve(ctx, "missing", false)
	require.ErrorIs(t, err, forgeerrors.ErrThreadNotFound)

	st := domain.NewWorkflowState("running", "p", "g")
	require.NoError(t, f.store.Save(ctx, &domain.Checkpoint{ThreadID: "running", State: *st, NextNode: "developer"}))
	_, err = e.Approve(ctx, "running", false)
	require.ErrorIs(t, err, forgeerrors.ErrNotInterrupted)

	require.NoError(t, f.store.Save(ctx, &domain.Checkpoint{ThreadID: "done", State: *st, NextNode: "end"}))
	_, err = e.Approve(ctx, "done", false)
	require.ErrorIs(t, err, forgeerrors.ErrSessionFinished)
	_, err = e.Run(ctx, "goal", RunOptions{ThreadID: "done"})
	require.ErrorIs(t, err, forgeerrors.ErrSessionFinished)
}

func TestEngine_RunValidation(t *testing.T) {
	f := newFixture(t)
	e := f.stubEngine(nil)
	ctx := context.Background()

	_, err := e.Run(ctx, "  ", RunOptions{})
	require.ErrorIs(t, err, forgeerrors.ErrEmptyValue)

	_, err = e.Run(ctx, "goal", RunOptions{SandboxName: "bad name!"})
	require.ErrorIs(t, err, forgeerrors.ErrInvalidConfig)

	_, err = e.Run(ctx, "goal", RunOptions{ThreadID: "../escape"})
	require.ErrorIs(t, err, forgeerrors.ErrInvalidConfig)
}

func TestEngine_Provisioning(t *testing.T) {
	f := newFixture(t)
	prov := sandbox.NewProvisioner(f.box, 1, zerolog.Nop())
	e := f.stubEngine([]agents.Node{
		funcNode{agents.NodeOverseer, setStatus(constants.StatusQAPassed)},
	}, WithProvisioner(prov))

	res, err := e.Run(context.Background(), "goal", RunOptions{ProjectID: "acme", Stack: "python"})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 1, f.box.Ensured)
}

func TestEngine_ProvisioningFailure(t *testing.T) {
	f := newFixture(t)
	f.box.EnsureErr = errors.New("cannot connect to the docker daemon")
	prov := sandbox.NewProvisioner(f.box, 1, zerolog.Nop())
	e := f.stubEngine(nil, WithProvisioner(prov))

	res, err := e.Run(context.Background(), "goal", RunOptions{})
	require.NoError(t, err)
	assert.True(t, res.Finished())
	assert.Equal(t, constants.StatusFailed, res.State.Status)
	assert.Contains(t, res.State.LastError(), "cannot connect to the docker daemon")
	assert.Zero(t, res.State.Transitions)
}

func TestEngine_ListAndPurge(t *testing.T) {
	f := newFixture(t)
	e := f.stubEngine([]agents.Node{
		funcNode{agents.NodeOverseer, setStatus(constants.StatusQAPassed)},
	})
	ctx := context.Background()

	for _, id := range []string{"a-1", "b-2"} {
		_, err := e.Run(ctx, "goal", RunOptions{ThreadID: id})
		require.NoError(t, err)
	}

	list, err := e.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, e.Purge(ctx, "a-1"))
	_, err = e.Status(ctx, "a-1")
	require.ErrorIs(t, err, forgeerrors.ErrThreadNotFound)

	list, err = e.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b-2", list[0].ThreadID)
}
