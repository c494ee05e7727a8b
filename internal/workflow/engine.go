// Package workflow runs forge sessions: it drives the agent nodes around the
// routing graph, persists a checkpoint after every transition, and pauses at
// the human interrupt points.
//
// Import rules:
//   - CAN import: internal/agents, internal/checkpoint, internal/config,
//     internal/constants, internal/domain, internal/errors, internal/sandbox, std lib
//   - MUST NOT import: internal/cli, internal/tui
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/agents"
	"github.com/mrz1836/forge/internal/checkpoint"
	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/sandbox"
)

// defaultProject is used when a session names no project.
const defaultProject = "default"

// Nodes resolves node names to runnable nodes.
type Nodes interface {
	Get(name agents.Name) (agents.Node, error)
}

// RunOptions configures a new session.
type RunOptions struct {
	// Yolo skips both interrupt points.
	Yolo bool

	// ThreadID keys the session. Generated when empty.
	ThreadID string

	// ProjectID is the owning project. Defaults to "default".
	ProjectID string

	// Stack is the sandbox stack profile. Defaults to the configured stack.
	Stack string

	// SandboxName overrides the name derived from the project.
	SandboxName string
}

// Result is where a Run or Approve call stopped.
type Result struct {
	ThreadID string
	State    *domain.WorkflowState
	NextNode agents.Name
	Paused   bool
}

// Finished reports whether the session reached the end node.
func (r *Result) Finished() bool {
	return r.NextNode == agents.NodeEnd
}

// Succeeded reports whether the session finished with verification passed.
func (r *Result) Succeeded() bool {
	return r.Finished() && r.State.Status == constants.StatusQAPassed
}

// AwaitingOperator reports whether the session is paused on an interactive step.
func (r *Result) AwaitingOperator() bool {
	return r.Paused && r.State.Status == constants.StatusWaitingInteraction
}

// Engine drives sessions through the node graph.
type Engine struct {
	nodes       Nodes
	store       checkpoint.Store
	cfg         *config.Config
	provisioner *sandbox.Provisioner
	logger      zerolog.Logger
	metrics     Metrics
	notifier    *Notifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithProvisioner makes the engine provision the session sandbox before the
// first node runs.
func WithProvisioner(p *sandbox.Provisioner) Option {
	return func(e *Engine) {
		e.provisioner = p
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithNotifier rings the terminal bell when a session stops.
func WithNotifier(n *Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// NewEngine creates an engine running nodes and saving to store.
func NewEngine(nodes Nodes, store checkpoint.Store, cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		nodes:   nodes,
		store:   store,
		cfg:     cfg,
		logger:  zerolog.Nop(),
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts a session for goal. If opts.ThreadID names an unfinished
// session, that session continues instead and goal is ignored.
func (e *Engine) Run(ctx context.Context, goal string, opts RunOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	threadID := opts.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	if opts.ThreadID != "" {
		cp, err := e.store.Load(ctx, threadID)
		switch {
		case err == nil:
			if cp.Finished() {
				return nil, fmt.Errorf("%w: %s", forgeerrors.ErrSessionFinished, threadID)
			}
			e.logger.Info().Str("thread_id", threadID).Str("next_node", cp.NextNode).Msg("continuing existing session")
			st := cp.State
			return e.loop(ctx, &st, agents.Name(cp.NextNode), opts.Yolo, false)
		case !errors.Is(err, forgeerrors.ErrThreadNotFound):
			return nil, err
		}
	}

	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("goal %w", forgeerrors.ErrEmptyValue)
	}
	project := opts.ProjectID
	if project == "" {
		project = defaultProject
	}
	stack := opts.Stack
	if stack == "" {
		stack = e.cfg.Sandbox.Stack
	}
	name := opts.SandboxName
	if name == "" {
		name = sandbox.StableName(project)
	}
	if err := sandbox.ValidateName(name); err != nil {
		return nil, err
	}

	st := domain.NewWorkflowState(threadID, project, strings.TrimSpace(goal))
	st.SandboxName = name
	st.Stack = stack

	log := e.logger.With().Str("thread_id", threadID).Str("sandbox", name).Logger()
	log.Info().Str("project", project).Str("stack", stack).Bool("yolo", opts.Yolo).Msg("starting session")
	e.metrics.SessionStarted(threadID, project)

	if err := e.provision(ctx, st); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Error().Err(err).Msg("sandbox provisioning failed")
		st.Status = constants.StatusFailed
		st.ErrorHistory = append(st.ErrorHistory, "sandbox provisioning failed: "+err.Error())
		st.Logs = append(st.Logs, "[engine] sandbox provisioning failed: "+err.Error())
		return e.stop(ctx, st, agents.NodeEnd, false)
	}
	if err := e.save(ctx, st, agents.NodeOverseer, false); err != nil {
		return nil, err
	}

	return e.loop(ctx, st, agents.NodeOverseer, opts.Yolo, false)
}

// Approve resumes a paused session. A session paused before spec approval or
// a plan step runs the gated node; a session waiting for an operator records
// the interactive step as completed and continues with the reviewer.
func (e *Engine) Approve(ctx context.Context, threadID string, yolo bool) (*Result, error) {
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp.Finished() {
		return nil, fmt.Errorf("%w: %s", forgeerrors.ErrSessionFinished, threadID)
	}
	if !cp.Paused {
		return nil, fmt.Errorf("%w: %s is at %s", forgeerrors.ErrNotInterrupted, threadID, cp.NextNode)
	}

	st := cp.State
	next := agents.Name(cp.NextNode)
	e.logger.Info().Str("thread_id", threadID).Str("next_node", next.String()).Bool("yolo", yolo).Msg("approved")

	if next == agents.NodeExecutor && st.Status == constants.StatusWaitingInteraction {
		completeInteraction(&st, "operator")
		return e.loop(ctx, &st, agents.NodeReviewer, yolo, false)
	}
	return e.loop(ctx, &st, next, yolo, true)
}

// Status returns the latest checkpoint of a session.
func (e *Engine) Status(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return e.store.Load(ctx, threadID)
}

// Purge deletes every checkpoint of a session.
func (e *Engine) Purge(ctx context.Context, threadID string) error {
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return err
	}
	return e.store.Purge(ctx, threadID)
}

// List summarises every stored session, newest first.
func (e *Engine) List(ctx context.Context) ([]checkpoint.Summary, error) {
	return e.store.List(ctx)
}

func (e *Engine) provision(ctx context.Context, st *domain.WorkflowState) error {
	if e.provisioner == nil {
		return nil
	}
	id := e.provisioner.Submit(ctx, st.SandboxName, st.Stack)
	rec, err := e.provisioner.Wait(ctx, id, constants.ProvisionPollInterval)
	if err != nil {
		return err
	}
	e.logger.Info().Str("thread_id", st.ThreadID).Str("sandbox", rec.Name).
		Str("sandbox_status", string(rec.Status)).Msg("sandbox ready")
	return nil
}

// loop runs nodes from next until the session ends, pauses, or hits an
// engine fault. through lets a resumed session run the interrupt point it
// paused at.
func (e *Engine) loop(ctx context.Context, st *domain.WorkflowState, next agents.Name, yolo, through bool) (*Result, error) {
	ceiling := e.cfg.Workflow.MaxTransitions
	if ceiling <= 0 {
		ceiling = constants.DefaultMaxTransitions
	}
	log := e.logger.With().Str("thread_id", st.ThreadID).Logger()

	for {
		if next == agents.NodeEnd {
			return e.stop(ctx, st, next, false)
		}

		if next == agents.NodeExecutor && st.Status == constants.StatusWaitingInteraction {
			if !yolo {
				return e.stop(ctx, st, next, true)
			}
			completeInteraction(st, "yolo")
			next = agents.NodeReviewer
			continue
		}

		if IsInterruptPoint(next) && !through && !yolo {
			return e.stop(ctx, st, next, true)
		}
		through = false

		if st.Transitions >= ceiling {
			log.Error().Int("transitions", st.Transitions).Msg("transition ceiling reached")
			st.Status = constants.StatusFailed
			msg := fmt.Sprintf("%v: %d transitions", forgeerrors.ErrTransitionCeiling, st.Transitions)
			st.ErrorHistory = append(st.ErrorHistory, msg)
			st.Logs = append(st.Logs, "[engine] "+msg)
			return e.stop(ctx, st, agents.NodeEnd, false)
		}

		node, err := e.nodes.Get(next)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		u, err := node.Run(ctx, st)
		if err != nil {
			// Keep the last good checkpoint so the session can be resumed.
			log.Warn().Err(err).Str("node", next.String()).Msg("node aborted")
			return nil, fmt.Errorf("node %s: %w", next, err)
		}
		if err := st.Apply(u); err != nil {
			log.Error().Err(err).Str("node", next.String()).Msg("node produced an invalid update")
			st.Status = constants.StatusFailed
			st.ErrorHistory = append(st.ErrorHistory, fmt.Sprintf("%s: %v", next, err))
			return e.stop(ctx, st, agents.NodeEnd, false)
		}
		st.Transitions++
		duration := time.Since(start)
		e.metrics.NodeExecuted(st.ThreadID, next, duration, st.Status)

		from := next
		next, err = Route(from, st)
		if err != nil {
			log.Error().Err(err).Msg("routing failed")
			st.Status = constants.StatusFailed
			st.ErrorHistory = append(st.ErrorHistory, err.Error())
			st.Logs = append(st.Logs, "[engine] "+err.Error())
			next = agents.NodeEnd
		}

		log.Debug().
			Str("node", from.String()).
			Str("status", st.Status.String()).
			Str("next_node", next.String()).
			Int("transitions", st.Transitions).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("transition")

		if err := e.save(ctx, st, next, false); err != nil {
			return nil, err
		}
	}
}

// stop saves the final checkpoint of this call and builds the result.
func (e *Engine) stop(ctx context.Context, st *domain.WorkflowState, next agents.Name, paused bool) (*Result, error) {
	if err := e.save(ctx, st, next, paused); err != nil {
		return nil, err
	}

	log := e.logger.With().Str("thread_id", st.ThreadID).Str("status", st.Status.String()).Logger()
	switch {
	case paused:
		log.Info().Str("next_node", next.String()).Msg("session paused")
		e.metrics.SessionPaused(st.ThreadID, next)
	default:
		log.Info().Int("transitions", st.Transitions).Msg("session finished")
		e.metrics.SessionFinished(st.ThreadID, st.Transitions, st.Status)
	}
	e.notifier.Notify(st.Status, paused)

	return &Result{
		ThreadID: st.ThreadID,
		State:    st,
		NextNode: next,
		Paused:   paused,
	}, nil
}

func (e *Engine) save(ctx context.Context, st *domain.WorkflowState, next agents.Name, paused bool) error {
	cp := &domain.Checkpoint{
		ThreadID: st.ThreadID,
		State:    *st.Clone(),
		NextNode: next.String(),
		Paused:   paused,
	}
	if err := e.store.Save(context.WithoutCancel(ctx), cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// completeInteraction records the paused interactive step as done by an
// operator, leaving the result for the reviewer.
func completeInteraction(st *domain.WorkflowState, by string) {
	st.LastResult = agents.OperatorResult()
	st.Status = constants.StatusExecuted
	step := "(no step)"
	if s := st.CurrentStep(); s != nil {
		step = s.Summary()
	}
	st.Logs = append(st.Logs, fmt.Sprintf("[engine] %s completed by %s", step, by))
}
