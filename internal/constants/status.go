package constants

// WorkflowStatus is the single source of truth for routing in the workflow
// engine. Every router switches exhaustively over it.
// Status values use snake_case for JSON serialization compatibility.
type WorkflowStatus string

// Workflow status constants.
//
//	Start → (architect) WaitingApproval | SpecReady
//	SpecApproved → (task manager) PlanReady | ExecutionDone | Failed
//	PlanningNeeded → (reasoning, planner) Coding | Failed
//	Coding → (executor) Executed | WaitingInteraction
//	Executed → (reviewer) Done | Failed
//	ExecutionDone → (tester) QAPassed | QAFailed | Failed
//	Failed → (strategist) StrategyChosen | Failed
const (
	// StatusStart is the initial status of a new session.
	StatusStart WorkflowStatus = "start"

	// StatusPlanningNeeded means the current task needs a plan.
	StatusPlanningNeeded WorkflowStatus = "planning_needed"

	// StatusWaitingApproval means the architect produced a spec awaiting the human gate.
	StatusWaitingApproval WorkflowStatus = "waiting_approval"

	// StatusSpecReady means the spec was (re)written and does not need another approval.
	StatusSpecReady WorkflowStatus = "spec_ready"

	// StatusSpecApproved is set by the approval gate.
	StatusSpecApproved WorkflowStatus = "spec_approved"

	// StatusPlanReady means the task list is loaded and work can begin.
	StatusPlanReady WorkflowStatus = "plan_ready"

	// StatusCoding means a plan step is selected and ready for the executor.
	StatusCoding WorkflowStatus = "coding"

	// StatusExecuted means the executor ran the current step and left a result to review.
	StatusExecuted WorkflowStatus = "executed"

	// StatusWaitingInteraction means the current step needs an operator at the terminal.
	StatusWaitingInteraction WorkflowStatus = "waiting_interaction"

	// StatusDone means the reviewer accepted the current step.
	StatusDone WorkflowStatus = "done"

	// StatusFailed means the current step failed, or, when terminal, the session failed.
	StatusFailed WorkflowStatus = "failed"

	// StatusExecutionDone means the task queue and plan are both exhausted.
	StatusExecutionDone WorkflowStatus = "execution_done"

	// StatusQAPassed is the successful terminal status.
	StatusQAPassed WorkflowStatus = "qa_passed"

	// StatusQAFailed means verification failed after all tasks completed.
	StatusQAFailed WorkflowStatus = "qa_failed"

	// StatusStrategyChosen means the strategist picked a macro action.
	StatusStrategyChosen WorkflowStatus = "strategy_chosen"
)

// String returns the string representation of the WorkflowStatus.
func (s WorkflowStatus) String() string {
	return string(s)
}

// AllWorkflowStatuses lists every status, in declaration order.
func AllWorkflowStatuses() []WorkflowStatus {
	return []WorkflowStatus{
		StatusStart, StatusPlanningNeeded, StatusWaitingApproval, StatusSpecReady,
		StatusSpecApproved, StatusPlanReady, StatusCoding, StatusExecuted,
		StatusWaitingInteraction, StatusDone, StatusFailed, StatusExecutionDone,
		StatusQAPassed, StatusQAFailed, StatusStrategyChosen,
	}
}

// ErrorCategory classifies the most recent failure.
type ErrorCategory string

// Error categories.
const (
	// CategoryNone means no failure has been classified yet.
	CategoryNone ErrorCategory = ""

	// CategoryInfrastructure covers sandbox or server provisioning and runtime crashes.
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"

	// CategoryLogicSyntax covers lint, compile, and test failures in generated code.
	CategoryLogicSyntax ErrorCategory = "LOGIC_SYNTAX"

	// CategoryMissingImplementation covers absent or empty expected artifacts.
	CategoryMissingImplementation ErrorCategory = "MISSING_IMPLEMENTATION"

	// CategoryUnknown is the conservative default.
	CategoryUnknown ErrorCategory = "UNKNOWN"
)

// String returns the string representation of the ErrorCategory.
func (c ErrorCategory) String() string {
	return string(c)
}

// StrategyAction is the macro decision issued by the strategist.
type StrategyAction string

// Strategy actions.
const (
	StrategyNone   StrategyAction = ""
	StrategyReplan StrategyAction = "REPLAN"
	StrategyPivot  StrategyAction = "PIVOT"
	StrategySkip   StrategyAction = "SKIP"
	StrategyAbort  StrategyAction = "ABORT"
)

// String returns the string representation of the StrategyAction.
func (a StrategyAction) String() string {
	return string(a)
}

// ParseStrategyAction maps model output to an action. Anything unrecognized is ABORT.
func ParseStrategyAction(s string) StrategyAction {
	switch StrategyAction(s) {
	case StrategyReplan, StrategyPivot, StrategySkip, StrategyAbort:
		return StrategyAction(s)
	case StrategyNone:
		return StrategyAbort
	default:
		return StrategyAbort
	}
}

// StepAction is the kind of a plan step.
type StepAction string

// Step actions.
const (
	ActionCommand   StepAction = "command"
	ActionWriteFile StepAction = "write_file"
)

// TaskStatus is the persisted status of an entry in tasks.json.
type TaskStatus string

// Task statuses.
const (
	// TaskPending means the task has not been completed yet.
	TaskPending TaskStatus = "pending"

	// TaskCompleted means the task was finished or skipped by the strategist.
	TaskCompleted TaskStatus = "completed"
)

// SandboxStatus is the lifecycle state reported by Ensure.
type SandboxStatus string

// Sandbox statuses.
const (
	// SandboxCreated means the sandbox was built and created on this call.
	SandboxCreated SandboxStatus = "created"

	// SandboxRunning means an existing running sandbox was reused.
	SandboxRunning SandboxStatus = "running"

	// SandboxRestarted means an existing stopped sandbox was started again.
	SandboxRestarted SandboxStatus = "restarted"

	// SandboxStopped means the sandbox exists but is not running.
	SandboxStopped SandboxStatus = "stopped"

	// SandboxMissing means no sandbox exists under the name.
	SandboxMissing SandboxStatus = "missing"
)

// String returns the string representation of the SandboxStatus.
func (s SandboxStatus) String() string {
	return string(s)
}

// ProvisionState is the state of a background provisioning job.
type ProvisionState string

// Provisioning job states.
const (
	ProvisionPending ProvisionState = "pending"
	ProvisionRunning ProvisionState = "running"
	ProvisionReady   ProvisionState = "ready"
	ProvisionFailed  ProvisionState = "failed"
)

// IsTerminal reports whether the job will not change state again.
func (s ProvisionState) IsTerminal() bool {
	return s == ProvisionReady || s == ProvisionFailed
}
