package agents

import (
	"context"
	"fmt"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/prompts"
)

type stepPlan struct {
	Steps []domain.PlanStep `json:"steps"`
}

func validatePlan(p stepPlan) error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("steps %w", forgeerrors.ErrEmptyValue)
	}
	for _, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Planner turns the current task into executable steps, feeding parse and
// validation errors back to the model up to the configured attempt budget.
type Planner struct {
	deps Deps
}

// Name implements Node.
func (p *Planner) Name() Name { return NodePlanner }

// Run implements Node.
func (p *Planner) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(p.deps, NodePlanner, st)

	data := prompts.PlannerData{
		Goal:    st.Goal,
		Task:    st.CurrentTask,
		Context: st.Context,
		Workdir: p.deps.Config.Sandbox.Workdir,
	}
	if data.Task == "" {
		data.Task = st.Goal
	}
	if prof, err := p.deps.Profiles.Get(st.Stack); err == nil {
		data.AppPort = prof.AppPort
	}

	msgs, err := renderUser(prompts.Planner, data)
	if err != nil {
		return domain.Update{}, err
	}
	attempts := p.deps.Config.Workflow.PlannerAttempts
	plan, err := llm.CompleteJSON(ctx, p.deps.Client, llm.Request{
		Node:     NodePlanner.String(),
		System:   plannerSystem,
		Messages: msgs,
	}, attempts, validatePlan)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		log.Error().Err(err).Int("attempts", attempts).Msg("planning failed")
		return domain.Update{
			Status:       domain.Ptr(constants.StatusFailed),
			AppendErrors: []string{fmt.Sprintf("planning failed for %q: %v", st.CurrentTask, err)},
			AppendLogs:   []string{logf(NodePlanner, "planning failed after %d attempts: %v", attempts, err)},
		}, nil
	}

	steps := numberSteps(plan.Steps, "step")
	logs := []string{logf(NodePlanner, "planned %d steps for %q", len(steps), st.CurrentTask)}
	for _, s := range steps {
		logs = append(logs, logf(NodePlanner, "  %s", s.Summary()))
	}
	log.Info().Int("steps", len(steps)).Msg("plan ready")

	u := domain.Update{
		Status:          domain.Ptr(constants.StatusCoding),
		Plan:            domain.Ptr(steps),
		ClearLastResult: true,
		AppendLogs:      logs,
	}
	if st.StrategyAction == constants.StrategyReplan {
		u.StrategyAction = domain.Ptr(constants.StrategyNone)
	}
	return u, nil
}

// numberSteps fills in missing or duplicate step ids.
func numberSteps(steps []domain.PlanStep, prefix string) []domain.PlanStep {
	out := make([]domain.PlanStep, len(steps))
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s.ID == "" || seen[s.ID] {
			s.ID = fmt.Sprintf("%s-%d", prefix, i+1)
		}
		seen[s.ID] = true
		out[i] = s
	}
	return out
}
