package prompts

// PromptID identifies a specific prompt template.
type PromptID string

// Prompt identifiers, one per model-calling workflow node.
const (
	Architect   PromptID = "agents/architect"
	TaskManager PromptID = "agents/task_manager"
	Reasoning   PromptID = "agents/reasoning"
	Planner     PromptID = "agents/planner"
	Debugger    PromptID = "agents/debugger"
	Strategist  PromptID = "agents/strategist"
	TestGen     PromptID = "agents/test_gen"
)

// ArchitectData contains input data for specification writing.
type ArchitectData struct {
	Goal  string
	Stack string
	// Files is the current sandbox listing.
	Files []string
	// ExistingSpec is the spec.md from an earlier pass, if any.
	ExistingSpec string
	// LastError is set when the architect is re-entered after an infrastructure failure.
	LastError string
}

// TaskManagerData contains input data for task decomposition.
type TaskManagerData struct {
	Goal      string
	Spec      string
	Completed []string
	// LastError is set when tasks are regenerated after a verification failure.
	LastError string
}

// ReasoningData contains input data for the technical strategy note.
type ReasoningData struct {
	Goal    string
	Task    string
	Context string
	// Directive is the strategist's PIVOT direction, if any.
	Directive string
}

// PlannerData contains input data for step planning.
type PlannerData struct {
	Goal    string
	Task    string
	Context string
	Workdir string
	AppPort int
}

// DebuggerData contains input data for a single corrective step.
type DebuggerData struct {
	Task     string
	Step     string
	Output   string
	Category string
	Errors   []string
}

// StrategistData contains input data for the macro recovery decision.
type StrategistData struct {
	Goal      string
	Task      string
	Plan      []string
	Errors    []string
	Completed int
	Total     int
}

// TestGenData contains input data for the verification script.
type TestGenData struct {
	Goal       string
	Tasks      []string
	Stack      string
	AppPort    int
	HealthPath string
}
