package agents

import (
	"context"
	"strings"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/jsonrepair"
	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/prompts"
)

// strategistErrorTail is how many recent errors the strategist sees.
const strategistErrorTail = 10

type decision struct {
	Action    string `json:"action"`
	Directive string `json:"directive"`
}

// Strategist makes the macro recovery decision once local fixes keep failing.
// Anything it cannot parse is an ABORT.
type Strategist struct {
	deps Deps
}

// Name implements Node.
func (s *Strategist) Name() Name { return NodeStrategist }

// Run implements Node.
func (s *Strategist) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(s.deps, NodeStrategist, st)

	data := prompts.StrategistData{
		Goal:      st.Goal,
		Task:      st.CurrentTask,
		Errors:    st.ErrorTail(strategistErrorTail),
		Completed: st.CompletedTasks,
		Total:     st.TotalTasks,
	}
	for _, step := range st.Plan {
		data.Plan = append(data.Plan, step.Summary())
	}

	d, err := s.decide(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		log.Warn().Err(err).Msg("no usable decision, aborting")
		d = decision{Action: string(constants.StrategyAbort), Directive: "no usable decision: " + err.Error()}
	}
	action := constants.ParseStrategyAction(strings.ToUpper(strings.TrimSpace(d.Action)))
	directive := strings.TrimSpace(d.Directive)

	u := domain.Update{
		StrategyAction:    domain.Ptr(action),
		StrategyDirective: domain.Ptr(directive),
		LoopDetected:      domain.Ptr(false),
		AppendLogs:        []string{logf(NodeStrategist, "%s: %s", action, directive)},
	}
	log.Info().Str("action", action.String()).Msg("strategy chosen")

	switch action {
	case constants.StrategyReplan:
		u.Status = domain.Ptr(constants.StatusStrategyChosen)
		u.Plan = domain.Ptr([]domain.PlanStep{})
		u.Context = domain.Ptr(st.Context + "\n## Strategist Directive (REPLAN)\n" + directive + "\n")
	case constants.StrategyPivot:
		u.Status = domain.Ptr(constants.StatusStrategyChosen)
		u.Plan = domain.Ptr([]domain.PlanStep{})
	case constants.StrategySkip:
		u.Status = domain.Ptr(constants.StatusStrategyChosen)
		u.Plan = domain.Ptr([]domain.PlanStep{})
		if st.CurrentTask != "" {
			note := "skipped: " + directive
			if err := completeTask(ctx, s.deps.Sandbox, st.SandboxName, st.CurrentTask, note); err != nil {
				log.Warn().Err(err).Msg("could not mark task skipped")
			}
			if err := appendProgress(ctx, s.deps.Sandbox, st.SandboxName, "[skipped] "+st.CurrentTask); err != nil {
				log.Warn().Err(err).Msg("could not update progress")
			}
			u.CurrentTask = domain.Ptr("")
			u.CompletedTasks = domain.Ptr(st.CompletedTasks + 1)
		}
	case constants.StrategyAbort, constants.StrategyNone:
		u.Status = domain.Ptr(constants.StatusFailed)
		u.StrategyAction = domain.Ptr(constants.StrategyAbort)
		u.AppendErrors = []string{"aborted by strategist: " + directive}
	}
	return u, nil
}

func (s *Strategist) decide(ctx context.Context, data prompts.StrategistData) (decision, error) {
	msgs, err := renderUser(prompts.Strategist, data)
	if err != nil {
		return decision{}, err
	}
	text, err := s.deps.Client.Complete(ctx, llm.Request{
		Node:     NodeStrategist.String(),
		System:   strategistSystem,
		Messages: msgs,
		JSON:     true,
	})
	if err != nil {
		return decision{}, llm.AsModelError(NodeStrategist.String(), err)
	}
	return jsonrepair.Decode[decision](text)
}
