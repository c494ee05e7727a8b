package agents

import (
	"context"
	"strings"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/prompts"
)

// strategyHeading separates the assembled context from the strategy note.
const strategyHeading = "## Technical Strategy"

// Reasoner assembles project context for the current task and appends a
// technical strategy note. Both halves degrade softly.
type Reasoner struct {
	deps Deps
}

// Name implements Node.
func (r *Reasoner) Name() Name { return NodeReasoning }

// Run implements Node.
func (r *Reasoner) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(r.deps, NodeReasoning, st)
	query := st.Goal
	if st.CurrentTask != "" {
		query = st.CurrentTask + "\n" + st.Goal
	}

	var logs []string
	assembled, err := r.deps.Memory.Assemble(ctx, st.SandboxName, project(st), query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		log.Warn().Err(err).Msg("context assembly failed")
		logs = append(logs, logf(NodeReasoning, "context assembly failed: %v", err))
	}

	var directive string
	if st.StrategyAction == constants.StrategyPivot {
		directive = st.StrategyDirective
	}

	u := domain.Update{}
	strategy, err := r.strategy(ctx, prompts.ReasoningData{
		Goal:      st.Goal,
		Task:      st.CurrentTask,
		Context:   assembled,
		Directive: directive,
	})
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		log.Warn().Err(err).Msg("no technical strategy, continuing without")
		logs = append(logs, logf(NodeReasoning, "strategy unavailable: %v", err))
		if directive != "" {
			strategy = directive
		}
	default:
		logs = append(logs, logf(NodeReasoning, "strategy ready for %q", st.CurrentTask))
	}
	if directive != "" {
		u.StrategyAction = domain.Ptr(constants.StrategyNone)
	}

	var b strings.Builder
	b.WriteString(assembled)
	if strategy != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strategyHeading + "\n")
		b.WriteString(strings.TrimSpace(strategy))
		b.WriteString("\n")
	}
	u.Context = domain.Ptr(b.String())
	u.AppendLogs = logs
	return u, nil
}

func (r *Reasoner) strategy(ctx context.Context, data prompts.ReasoningData) (string, error) {
	msgs, err := renderUser(prompts.Reasoning, data)
	if err != nil {
		return "", err
	}
	text, err := r.deps.Client.Complete(ctx, llm.Request{
		Node:     NodeReasoning.String(),
		System:   reasoningSystem,
		Messages: msgs,
	})
	if err != nil {
		return "", llm.AsModelError(NodeReasoning.String(), err)
	}
	return strings.TrimSpace(text), nil
}
