package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/prompts"
)

type taskBreakdown struct {
	Tasks []struct {
		Title string `json:"title"`
	} `json:"tasks"`
}

func (b taskBreakdown) titles() []string {
	out := make([]string, 0, len(b.Tasks))
	for _, t := range b.Tasks {
		if title := strings.TrimSpace(t.Title); title != "" {
			out = append(out, title)
		}
	}
	return out
}

func validateBreakdown(b taskBreakdown) error {
	if len(b.titles()) == 0 {
		return fmt.Errorf("tasks %w", forgeerrors.ErrEmptyValue)
	}
	return nil
}

// TaskManager loads the task queue. Pending entries in tasks.json are reused
// as they are; the model is only asked for tasks when none are pending.
type TaskManager struct {
	deps Deps
}

// Name implements Node.
func (t *TaskManager) Name() Name { return NodeTaskManager }

// Run implements Node.
func (t *TaskManager) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(t.deps, NodeTaskManager, st)

	existing, err := loadTasks(ctx, t.deps.Sandbox, st.SandboxName)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable task list")
		existing = nil
	}

	if existing != nil {
		if pending := existing.PendingTitles(); len(pending) > 0 {
			log.Info().Int("pending", len(pending)).Msg("resuming task list")
			return queueUpdate(existing, pending,
				logf(NodeTaskManager, "resumed %d pending of %d tasks", len(pending), len(existing.Tasks))), nil
		}
	}

	data := prompts.TaskManagerData{Goal: st.Goal, Spec: st.Context}
	if spec, err := t.deps.Sandbox.ReadFile(ctx, st.SandboxName, constants.SpecFileName); err == nil {
		data.Spec = string(spec)
	}
	if existing != nil {
		for _, task := range existing.Tasks {
			data.Completed = append(data.Completed, task.Title)
		}
		if st.Status == constants.StatusSpecReady || st.QAAttempts > 0 {
			data.LastError = truncate(st.LastError(), constants.MaxLogEntryLength)
		}
	}

	msgs, err := renderUser(prompts.TaskManager, data)
	if err != nil {
		return domain.Update{}, err
	}
	breakdown, err := llm.CompleteJSON(ctx, t.deps.Client, llm.Request{
		Node:     NodeTaskManager.String(),
		System:   taskManagerSystem,
		Messages: msgs,
	}, t.deps.Config.Workflow.PlannerAttempts, validateBreakdown)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		log.Error().Err(err).Msg("task generation failed")
		return domain.Update{
			Status:       domain.Ptr(constants.StatusFailed),
			AppendErrors: []string{fmt.Sprintf("task generation failed: %v", err)},
			AppendLogs:   []string{logf(NodeTaskManager, "task generation failed: %v", err)},
		}, nil
	}

	titles := breakdown.titles()
	tl := existing
	if tl == nil {
		tl = domain.NewTaskList(titles)
	} else {
		appendTasks(tl, titles)
	}
	if err := saveTasks(ctx, t.deps.Sandbox, st.SandboxName, tl); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		log.Warn().Err(err).Msg("could not persist task list")
	}

	log.Info().Int("tasks", len(titles)).Msg("tasks generated")
	return queueUpdate(tl, titles, logf(NodeTaskManager, "generated %d tasks", len(titles))), nil
}

func appendTasks(tl *domain.TaskList, titles []string) {
	next := len(tl.Tasks) + 1
	for i, title := range titles {
		tl.Tasks = append(tl.Tasks, domain.Task{
			ID:     fmt.Sprintf("task-%d", next+i),
			Title:  title,
			Status: constants.TaskPending,
		})
	}
	tl.UpdatedAt = time.Now().UTC()
}

// queueUpdate installs pending as the queue and starts from a clean plan.
func queueUpdate(tl *domain.TaskList, pending []string, line string) domain.Update {
	return domain.Update{
		Status:          domain.Ptr(constants.StatusPlanReady),
		TaskQueue:       domain.Ptr(pending),
		CurrentTask:     domain.Ptr(""),
		TotalTasks:      domain.Ptr(len(tl.Tasks)),
		CompletedTasks:  domain.Ptr(tl.CompletedCount()),
		Plan:            domain.Ptr([]domain.PlanStep{}),
		ClearLastResult: true,
		LoopDetected:    domain.Ptr(false),
		AppendLogs:      []string{line},
	}
}
