package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
)

func TestDeveloper_PopsNextTask(t *testing.T) {
	h := newHarness(t)
	st := newState()
	st.TaskQueue = []string{"first", "second"}
	st.TotalTasks = 2

	apply(t, &Developer{deps: h.deps}, st)

	assert.Equal(t, "first", st.CurrentTask)
	assert.Equal(t, []string{"second"}, st.TaskQueue)
	assert.Equal(t, constants.StatusPlanningNeeded, st.Status)
	assert.Equal(t, 0, h.memory.reindexed)
}

func TestDeveloper_DispatchesSanitisedStep(t *testing.T) {
	h := newHarness(t)
	st := newState()
	st.CurrentTask = "serve json"
	st.Plan = []domain.PlanStep{
		{ID: "step-1", Action: constants.ActionWriteFile, FilePath: "/workspace/src/app.js", Content: "```js\nconsole.log(1)\n```"},
		{ID: "step-2", Action: constants.ActionCommand, Command: "node src/app.js"},
	}

	apply(t, &Developer{deps: h.deps}, st)

	assert.Equal(t, constants.StatusCoding, st.Status)
	assert.Equal(t, 0, st.CurrentStepIndex)
	assert.Equal(t, "src/app.js", st.Plan[0].FilePath)
	assert.Equal(t, "console.log(1)\n", st.Plan[0].Content)
	assert.Equal(t, "node src/app.js", st.Plan[1].Command)
}

func TestDeveloper_KeepsIndexWhenSanitisingMidPlan(t *testing.T) {
	h := newHarness(t)
	st := newState()
	st.CurrentTask = "serve json"
	st.Plan = []domain.PlanStep{
		{ID: "step-1", Action: constants.ActionCommand, Command: "npm init -y"},
		{ID: "step-2", Action: constants.ActionWriteFile, FilePath: "/src/app.js", Content: "x"},
	}
	st.CurrentStepIndex = 1

	apply(t, &Developer{deps: h.deps}, st)

	assert.Equal(t, 1, st.CurrentStepIndex)
	assert.Equal(t, "src/app.js", st.Plan[1].FilePath)
}

func TestDeveloper_LeavesTraversalForExecutor(t *testing.T) {
	h := newHarness(t)
	st := newState()
	st.CurrentTask = "t"
	st.Plan = []domain.PlanStep{
		{ID: "step-1", Action: constants.ActionWriteFile, FilePath: "../etc/passwd", Content: "x"},
	}

	apply(t, &Developer{deps: h.deps}, st)

	assert.Equal(t, constants.StatusCoding, st.Status)
	assert.Equal(t, "../etc/passwd", st.Plan[0].FilePath)
	assert.Contains(t, st.Logs[0], "unsanitised")
}

func TestDeveloper_CompletesTask(t *testing.T) {
	h := newHarness(t)
	writeTaskList(t, h, []domain.Task{
		{ID: "task-1", Title: "serve json", Status: constants.TaskPending},
		{ID: "task-2", Title: "docs", Status: constants.TaskPending},
	})
	st := newState()
	st.CurrentTask = "serve json"
	st.TaskQueue = []string{"docs"}
	st.TotalTasks = 2
	st.Plan = []domain.PlanStep{{ID: "step-1", Action: constants.ActionCommand, Command: "true"}}
	st.CurrentStepIndex = 1

	apply(t, &Developer{deps: h.deps}, st)

	assert.Equal(t, 1, st.CompletedTasks)
	assert.Equal(t, "docs", st.CurrentTask)
	assert.Empty(t, st.Plan)
	assert.Equal(t, 0, st.CurrentStepIndex)
	assert.Equal(t, constants.StatusPlanningNeeded, st.Status)
	assert.Equal(t, 1, h.memory.reindexed)

	tl := readTaskList(t, h)
	assert.Equal(t, constants.TaskCompleted, tl.Tasks[0].Status)
	assert.Equal(t, constants.TaskPending, tl.Tasks[1].Status)

	progress, ok := h.box.File(constants.ProgressFileName)
	require.True(t, ok)
	assert.Contains(t, progress, "# Progress")
	assert.Contains(t, progress, "- [x] serve json")
}

func TestDeveloper_ExecutionDone(t *testing.T) {
	h := newHarness(t)
	st := newState()
	st.CurrentTask = "last"
	st.TotalTasks = 1
	st.Plan = []domain.PlanStep{{ID: "step-1", Action: constants.ActionCommand, Command: "true"}}
	st.CurrentStepIndex = 1

	apply(t, &Developer{deps: h.deps}, st)

	assert.Equal(t, constants.StatusExecutionDone, st.Status)
	assert.Equal(t, 1, st.CompletedTasks)
	assert.Empty(t, st.CurrentTask)

	// A second pass with nothing left stays done and does not double count.
	apply(t, &Developer{deps: h.deps}, st)
	assert.Equal(t, constants.StatusExecutionDone, st.Status)
	assert.Equal(t, 1, st.CompletedTasks)
}
