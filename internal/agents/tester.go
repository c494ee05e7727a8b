package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/prompts"
	"github.com/mrz1836/forge/internal/sandbox"
)

// serverLogTail bounds the server log copied into the error history.
const serverLogTail = 1500

// Tester verifies the finished application. The server is restarted, then
// the generated verification script runs if there is one; otherwise the
// health endpoint is polled. Every failure is reported as infrastructure.
type Tester struct {
	deps Deps
}

// Name implements Node.
func (t *Tester) Name() Name { return NodeTester }

// Run implements Node.
func (t *Tester) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(t.deps, NodeTester, st)
	wf := t.deps.Config.Workflow

	attempt := st.QAAttempts + 1
	if wf.QAMaxAttempts > 0 && attempt > wf.QAMaxAttempts {
		log.Error().Int("attempts", st.QAAttempts).Msg("verification attempts exhausted")
		return domain.Update{
			Status:       domain.Ptr(constants.StatusFailed),
			AppendErrors: []string{fmt.Sprintf("verification failed %d times, giving up", st.QAAttempts)},
			AppendLogs:   []string{logf(NodeTester, "verification attempts exhausted (%d)", st.QAAttempts)},
		}, nil
	}
	log = log.With().Int("attempt", attempt).Logger()

	err := t.verify(ctx, st)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Update{}, ctxErr
	}
	if err == nil {
		log.Info().Msg("verification passed")
		return domain.Update{
			Status:     domain.Ptr(constants.StatusQAPassed),
			QAAttempts: domain.Ptr(attempt),
			AppendLogs: []string{logf(NodeTester, "verification passed on attempt %d", attempt)},
		}, nil
	}

	entry := "verification failed: " + err.Error()
	if data, rerr := t.deps.Sandbox.ReadFile(ctx, st.SandboxName, constants.ServerLogPath); rerr == nil && len(data) > 0 {
		entry += "\nserver log:\n" + truncate(strings.TrimSpace(string(data)), serverLogTail)
	}
	log.Warn().Err(err).Msg("verification failed")
	return domain.Update{
		Status:        domain.Ptr(constants.StatusQAFailed),
		ErrorCategory: domain.Ptr(constants.CategoryInfrastructure),
		QAAttempts:    domain.Ptr(attempt),
		AppendErrors:  []string{entry},
		AppendLogs:    []string{logf(NodeTester, "verification failed on attempt %d: %v", attempt, err)},
	}, nil
}

func (t *Tester) verify(ctx context.Context, st *domain.WorkflowState) error {
	log := nodeLogger(t.deps, NodeTester, st)
	if err := t.deps.Sandbox.StopServer(ctx, st.SandboxName); err != nil {
		log.Debug().Err(err).Msg("stop server failed")
	}
	command, err := t.deps.Sandbox.StartServer(ctx, st.SandboxName)
	if err != nil {
		return fmt.Errorf("server did not start: %w", err)
	}
	log.Debug().Str("command", command).Msg("server started")

	if _, err := t.deps.Sandbox.ReadFile(ctx, st.SandboxName, constants.VerifyScriptPath); err == nil {
		return t.runScript(ctx, st)
	} else if !errors.Is(err, forgeerrors.ErrFileNotFound) {
		return err
	}
	return t.pollHealth(ctx, st)
}

func (t *Tester) runScript(ctx context.Context, st *domain.WorkflowState) error {
	res, err := t.deps.Sandbox.Run(ctx, st.SandboxName, "sh "+constants.VerifyScriptPath, false)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited %d: %s", constants.VerifyScriptPath, res.ExitCode,
			truncate(strings.TrimSpace(res.Output), constants.MaxLogEntryLength))
	}
	return nil
}

func (t *Tester) pollHealth(ctx context.Context, st *domain.WorkflowState) error {
	rec, err := t.deps.Sandbox.Ensure(ctx, st.SandboxName, st.Stack)
	if err != nil {
		return err
	}
	prof, err := t.deps.Profiles.Get(st.Stack)
	if err != nil {
		return err
	}
	port := rec.HostPort(prof.AppPort)
	if port == 0 {
		return fmt.Errorf("%w: port %d is not published", forgeerrors.ErrHealthCheckFailed, prof.AppPort)
	}

	wf := t.deps.Config.Workflow
	url := sandbox.HealthURL(t.deps.Config.Sandbox.Host, port, wf.HealthPath)
	retries := wf.HealthRetries
	if retries < 1 {
		retries = 1
	}

	var last error
	for i := 0; i < retries; i++ {
		if last = t.deps.Health.Check(ctx, url); last == nil {
			return nil
		}
		if i == retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wf.HealthInterval):
		}
	}
	return fmt.Errorf("%s after %d probes: %w", url, retries, last)
}

// TestGen writes the verification script used by the tester. Failure is not
// fatal; the tester falls back to the health check.
type TestGen struct {
	deps Deps
}

// Name implements Node.
func (g *TestGen) Name() Name { return NodeTestGen }

// Run implements Node.
func (g *TestGen) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(g.deps, NodeTestGen, st)

	data := prompts.TestGenData{
		Goal:       st.Goal,
		Tasks:      st.TaskQueue,
		Stack:      st.Stack,
		HealthPath: g.deps.Config.Workflow.HealthPath,
	}
	if prof, err := g.deps.Profiles.Get(st.Stack); err == nil {
		data.AppPort = prof.AppPort
	}

	script, err := g.generate(ctx, data)
	if err == nil {
		err = g.deps.Sandbox.WriteFile(ctx, st.SandboxName, constants.VerifyScriptPath, []byte(script))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		log.Warn().Err(err).Msg("no verification script, health check will be used")
		return domain.Update{
			AppendLogs: []string{logf(NodeTestGen, "no verification script: %v", err)},
		}, nil
	}
	log.Info().Int("bytes", len(script)).Msg("verification script written")
	return domain.Update{
		AppendLogs: []string{logf(NodeTestGen, "wrote %s", constants.VerifyScriptPath)},
	}, nil
}

func (g *TestGen) generate(ctx context.Context, data prompts.TestGenData) (string, error) {
	msgs, err := renderUser(prompts.TestGen, data)
	if err != nil {
		return "", err
	}
	text, err := g.deps.Client.Complete(ctx, llm.Request{
		Node:     NodeTestGen.String(),
		System:   testGenSystem,
		Messages: msgs,
	})
	if err != nil {
		return "", llm.AsModelError(NodeTestGen.String(), err)
	}
	script := strings.TrimSpace(StripFences(text))
	if script == "" {
		return "", &llm.ModelError{Node: NodeTestGen.String(), Kind: llm.KindEmpty, Attempts: 1}
	}
	if !strings.HasPrefix(script, "#!") {
		script = "#!/bin/sh\n" + script
	}
	return script + "\n", nil
}
