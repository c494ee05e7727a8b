package domain

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/constants"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

func twoStepPlan() []PlanStep {
	return []PlanStep{
		{ID: "s1", Action: constants.ActionWriteFile, FilePath: "a.txt", Content: "a"},
		{ID: "s2", Action: constants.ActionCommand, Command: "cat a.txt"},
	}
}

func TestNewWorkflowState(t *testing.T) {
	s := NewWorkflowState("t1", "p1", "build it")

	assert.Equal(t, constants.StatusStart, s.Status)
	assert.Equal(t, "build it", s.Goal)
	assert.NotNil(t, s.Logs)
	assert.NotNil(t, s.ErrorHistory)
	assert.Nil(t, s.CurrentStep())
	assert.True(t, s.PlanExhausted())
}

func TestApply_Plan(t *testing.T) {
	t.Run("installing a plan resets the index", func(t *testing.T) {
		s := NewWorkflowState("t", "p", "g")
		require.NoError(t, s.Apply(Update{Plan: Ptr(twoStepPlan())}))
		require.NoError(t, s.Apply(Update{CurrentStepIndex: Ptr(2)}))

		require.NoError(t, s.Apply(Update{Plan: Ptr(twoStepPlan()), CurrentStepIndex: Ptr(0)}))
		assert.Equal(t, 0, s.CurrentStepIndex)
		assert.Equal(t, "s1", s.CurrentStep().ID)
	})

	t.Run("index cannot move backwards without a plan", func(t *testing.T) {
		s := NewWorkflowState("t", "p", "g")
		require.NoError(t, s.Apply(Update{Plan: Ptr(twoStepPlan())}))
		require.NoError(t, s.Apply(Update{CurrentStepIndex: Ptr(1)}))

		err := s.Apply(Update{CurrentStepIndex: Ptr(0), AppendLogs: []string{"x"}})
		require.ErrorIs(t, err, forgeerrors.ErrStateInvariant)
		assert.Equal(t, 1, s.CurrentStepIndex, "state unchanged on error")
		assert.Empty(t, s.Logs)
	})

	t.Run("new plan without explicit index keeps step order from zero", func(t *testing.T) {
		s := NewWorkflowState("t", "p", "g")
		require.NoError(t, s.Apply(Update{Plan: Ptr(twoStepPlan())}))
		assert.Equal(t, 0, s.CurrentStepIndex)
		assert.False(t, s.PlanExhausted())
	})
}

func TestApply_TaskQueue(t *testing.T) {
	s := NewWorkflowState("t", "p", "g")
	require.NoError(t, s.Apply(Update{TaskQueue: Ptr([]string{"one", "two"})}))

	require.NoError(t, s.Apply(Update{PopTask: true}))
	assert.Equal(t, "one", s.CurrentTask)
	assert.Equal(t, []string{"two"}, s.TaskQueue)

	require.NoError(t, s.Apply(Update{PopTask: true}))
	assert.Equal(t, "two", s.CurrentTask)
	assert.Empty(t, s.TaskQueue)

	err := s.Apply(Update{PopTask: true})
	require.ErrorIs(t, err, forgeerrors.ErrStateInvariant)
}

func TestApply_AppendOnly(t *testing.T) {
	s := NewWorkflowState("t", "p", "g")
	require.NoError(t, s.Apply(Update{AppendErrors: []string{"e1"}, AppendLogs: []string{"l1"}}))
	require.NoError(t, s.Apply(Update{AppendErrors: []string{"e2"}, AppendLogs: []string{"l2"}}))

	assert.Equal(t, []string{"e1", "e2"}, s.ErrorHistory)
	assert.Equal(t, []string{"l1", "l2"}, s.Logs)
	assert.Equal(t, "e2", s.LastError())
	assert.Equal(t, []string{"e2"}, s.ErrorTail(1))
	assert.Equal(t, []string{"e1", "e2"}, s.ErrorTail(10))
	assert.Nil(t, s.ErrorTail(0))
}

func TestApply_LastResult(t *testing.T) {
	s := NewWorkflowState("t", "p", "g")
	require.NoError(t, s.Apply(Update{LastResult: &ExecResult{ExitCode: 1, Output: "boom"}}))
	require.NotNil(t, s.LastResult)
	assert.False(t, s.LastResult.Succeeded())

	require.NoError(t, s.Apply(Update{ClearLastResult: true}))
	assert.Nil(t, s.LastResult)
}

func TestClone_IsDeep(t *testing.T) {
	s := NewWorkflowState("t", "p", "g")
	require.NoError(t, s.Apply(Update{
		Plan:         Ptr(twoStepPlan()),
		TaskQueue:    Ptr([]string{"a"}),
		AppendErrors: []string{"e"},
		LastResult:   &ExecResult{Output: "x"},
	}))

	c := s.Clone()
	c.Plan[0].ID = "changed"
	c.TaskQueue[0] = "changed"
	c.ErrorHistory[0] = "changed"
	c.LastResult.Output = "changed"

	assert.Equal(t, "s1", s.Plan[0].ID)
	assert.Equal(t, "a", s.TaskQueue[0])
	assert.Equal(t, "e", s.ErrorHistory[0])
	assert.Equal(t, "x", s.LastResult.Output)
}

func TestWorkflowState_JSON(t *testing.T) {
	s := NewWorkflowState("t", "p", "g")
	require.NoError(t, s.Apply(Update{
		Plan:          Ptr(twoStepPlan()),
		Status:        Ptr(constants.StatusCoding),
		ErrorCategory: Ptr(constants.CategoryLogicSyntax),
	}))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"current_step_index":0`)
	assert.Contains(t, string(data), `"error_category":"LOGIC_SYNTAX"`)

	var got WorkflowState
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s.Plan, got.Plan)
	assert.Equal(t, constants.StatusCoding, got.Status)
}
