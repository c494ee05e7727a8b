// Package domain provides the shared data model of the forge workflow engine.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case.
package domain

import (
	"fmt"
	"time"

	"github.com/mrz1836/forge/internal/constants"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// WorkflowState is the single mutable record threaded through every node of a
// session. Nodes never mutate it directly; they return an Update which the
// engine applies with Apply, so the invariants below are enforced in one place:
//
//   - CurrentStepIndex only increases, except when a new plan is installed.
//   - TaskQueue is consumed FIFO.
//   - ErrorHistory and Logs are append-only.
type WorkflowState struct {
	// ThreadID keys the session in the checkpoint store.
	ThreadID string `json:"thread_id"`

	// ProjectID is the caller's project identity (the incubator startup id).
	ProjectID string `json:"project_id"`

	// SandboxName identifies the project's sandbox.
	SandboxName string `json:"sandbox_name"`

	// Stack is the sandbox stack profile name.
	Stack string `json:"stack"`

	// Goal is the natural-language request that started the session.
	Goal string `json:"goal"`

	// Context is the assembled project context for the current reasoning step.
	Context string `json:"context"`

	Plan             []PlanStep `json:"plan"`
	CurrentStepIndex int        `json:"current_step_index"`

	TaskQueue      []string `json:"task_queue"`
	CurrentTask    string   `json:"current_task,omitempty"`
	TotalTasks     int      `json:"total_tasks"`
	CompletedTasks int      `json:"completed_tasks"`

	// ErrorHistory is the sole input to loop detection.
	ErrorHistory  []string                `json:"error_history"`
	ErrorCategory constants.ErrorCategory `json:"error_category,omitempty"`

	// Status is the single source of truth for routing.
	Status constants.WorkflowStatus `json:"status"`

	// StrategyAction and StrategyDirective are set only by the strategist.
	StrategyAction    constants.StrategyAction `json:"strategy_action,omitempty"`
	StrategyDirective string                   `json:"strategy_directive,omitempty"`

	// Logs is the human-readable trace.
	Logs []string `json:"logs"`

	// LastResult is the outcome of the most recent executor run.
	LastResult *ExecResult `json:"last_result,omitempty"`

	// LoopDetected is the reviewer's critical loop signal.
	LoopDetected bool `json:"loop_detected,omitempty"`

	// SpecApproved records that the human gate passed once in this session.
	SpecApproved bool `json:"spec_approved,omitempty"`

	// QAAttempts counts tester runs.
	QAAttempts int `json:"qa_attempts,omitempty"`

	// Transitions counts node transitions against the engine ceiling.
	Transitions int `json:"transitions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWorkflowState creates the initial state for a session.
func NewWorkflowState(threadID, projectID, goal string) *WorkflowState {
	now := time.Now().UTC()
	return &WorkflowState{
		ThreadID:     threadID,
		ProjectID:    projectID,
		Goal:         goal,
		Status:       constants.StatusStart,
		Plan:         []PlanStep{},
		TaskQueue:    []string{},
		ErrorHistory: []string{},
		Logs:         []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CurrentStep returns the plan step at CurrentStepIndex, or nil when the plan is exhausted.
func (s *WorkflowState) CurrentStep() *PlanStep {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Plan) {
		return nil
	}
	return &s.Plan[s.CurrentStepIndex]
}

// PlanExhausted reports whether every step of the plan has been executed.
func (s *WorkflowState) PlanExhausted() bool {
	return s.CurrentStepIndex >= len(s.Plan)
}

// LastError returns the newest error history entry or "".
func (s *WorkflowState) LastError() string {
	if len(s.ErrorHistory) == 0 {
		return ""
	}
	return s.ErrorHistory[len(s.ErrorHistory)-1]
}

// ErrorTail returns up to n of the newest error history entries, oldest first.
func (s *WorkflowState) ErrorTail(n int) []string {
	if n <= 0 || len(s.ErrorHistory) == 0 {
		return nil
	}
	if n > len(s.ErrorHistory) {
		n = len(s.ErrorHistory)
	}
	return s.ErrorHistory[len(s.ErrorHistory)-n:]
}

// Clone returns a deep copy of the state.
func (s *WorkflowState) Clone() *WorkflowState {
	c := *s
	c.Plan = append([]PlanStep(nil), s.Plan...)
	c.TaskQueue = append([]string(nil), s.TaskQueue...)
	c.ErrorHistory = append([]string(nil), s.ErrorHistory...)
	c.Logs = append([]string(nil), s.Logs...)
	if s.LastResult != nil {
		r := *s.LastResult
		c.LastResult = &r
	}
	return &c
}

// Update is a partial WorkflowState produced by a node. Nil pointer fields are
// left untouched; Append* fields are appended.
type Update struct {
	Status        *constants.WorkflowStatus
	Context       *string
	ErrorCategory *constants.ErrorCategory

	// Plan installs a new plan. It is the only way CurrentStepIndex may move backwards.
	Plan             *[]PlanStep
	CurrentStepIndex *int

	// TaskQueue replaces the queue. PopTask removes the head and makes it CurrentTask.
	TaskQueue      *[]string
	PopTask        bool
	CurrentTask    *string
	TotalTasks     *int
	CompletedTasks *int

	StrategyAction    *constants.StrategyAction
	StrategyDirective *string

	LastResult      *ExecResult
	ClearLastResult bool
	LoopDetected    *bool
	SpecApproved    *bool
	QAAttempts      *int

	AppendErrors []string
	AppendLogs   []string
}

// Ptr returns a pointer to v. It keeps Update literals short.
func Ptr[T any](v T) *T {
	return &v
}

// Apply merges u into s, rejecting updates that would break a state invariant.
// On error s is left unchanged.
func (s *WorkflowState) Apply(u Update) error {
	next := s.Clone()

	if u.Plan != nil {
		next.Plan = append([]PlanStep(nil), (*u.Plan)...)
		next.CurrentStepIndex = 0
	}
	if u.CurrentStepIndex != nil {
		idx := *u.CurrentStepIndex
		if idx < 0 {
			return fmt.Errorf("current_step_index %d is negative: %w", idx, forgeerrors.ErrStateInvariant)
		}
		if u.Plan == nil && idx < s.CurrentStepIndex {
			return fmt.Errorf("current_step_index moved from %d to %d without a new plan: %w",
				s.CurrentStepIndex, idx, forgeerrors.ErrStateInvariant)
		}
		next.CurrentStepIndex = idx
	}

	if u.TaskQueue != nil {
		next.TaskQueue = append([]string(nil), (*u.TaskQueue)...)
	}
	if u.PopTask {
		if len(next.TaskQueue) == 0 {
			return fmt.Errorf("pop from empty task queue: %w", forgeerrors.ErrStateInvariant)
		}
		next.CurrentTask = next.TaskQueue[0]
		next.TaskQueue = next.TaskQueue[1:]
	}
	if u.CurrentTask != nil {
		next.CurrentTask = *u.CurrentTask
	}
	if u.TotalTasks != nil {
		next.TotalTasks = *u.TotalTasks
	}
	if u.CompletedTasks != nil {
		next.CompletedTasks = *u.CompletedTasks
	}

	if u.Status != nil {
		next.Status = *u.Status
	}
	if u.Context != nil {
		next.Context = *u.Context
	}
	if u.ErrorCategory != nil {
		next.ErrorCategory = *u.ErrorCategory
	}
	if u.StrategyAction != nil {
		next.StrategyAction = *u.StrategyAction
	}
	if u.StrategyDirective != nil {
		next.StrategyDirective = *u.StrategyDirective
	}
	if u.ClearLastResult {
		next.LastResult = nil
	}
	if u.LastResult != nil {
		r := *u.LastResult
		next.LastResult = &r
	}
	if u.LoopDetected != nil {
		next.LoopDetected = *u.LoopDetected
	}
	if u.SpecApproved != nil {
		next.SpecApproved = *u.SpecApproved
	}
	if u.QAAttempts != nil {
		next.QAAttempts = *u.QAAttempts
	}

	next.ErrorHistory = append(next.ErrorHistory, u.AppendErrors...)
	next.Logs = append(next.Logs, u.AppendLogs...)
	next.UpdatedAt = time.Now().UTC()

	*s = *next
	return nil
}
