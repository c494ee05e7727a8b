// Package agents provides the workflow nodes of the forge build orchestrator.
//
// Every node reads a WorkflowState and returns a domain.Update; the engine
// applies it. Nodes touch the outside world only through the injected
// dependencies: the model client, the sandbox manager, and the memory
// subsystem.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, internal/config,
//     internal/llm, internal/sandbox, internal/prompts, internal/jsonrepair
//   - MUST NOT import: internal/workflow, internal/cli, internal/checkpoint
package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/sandbox"
)

// Name identifies a workflow node.
type Name string

// Node names. NodeEnd is a routing target only.
const (
	NodeOverseer     Name = "overseer"
	NodeArchitect    Name = "architect"
	NodeSpecApproval Name = "spec_approval"
	NodeTaskManager  Name = "task_manager"
	NodeReasoning    Name = "reasoning"
	NodePlanner      Name = "planner"
	NodeDeveloper    Name = "developer"
	NodeExecutor     Name = "executor"
	NodeReviewer     Name = "reviewer"
	NodeDebugger     Name = "debugger"
	NodeStrategist   Name = "strategist"
	NodeTester       Name = "tester"
	NodeTestGen      Name = "test_gen"
	NodeEnd          Name = "end"
)

// String returns the string representation of the Name.
func (n Name) String() string {
	return string(n)
}

// Node is one workflow role.
//
// Run must not mutate st. Failures of the role itself are reported through
// the returned Update (status failed, error history, logs); a Go error means
// the engine cannot continue, e.g. the context was canceled.
type Node interface {
	Name() Name
	Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error)
}

// ContextAssembler is the memory subsystem as seen by the nodes.
type ContextAssembler interface {
	Assemble(ctx context.Context, sandboxName, project, goal string) (string, error)
	Reindex(ctx context.Context, sandboxName, project string) error
}

// Deps are the collaborators shared by all nodes.
type Deps struct {
	Client   llm.Client
	Sandbox  sandbox.Manager
	Memory   ContextAssembler
	Health   sandbox.HealthChecker
	Profiles sandbox.Profiles
	Config   *config.Config
	Logger   zerolog.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Client == nil:
		return fmt.Errorf("agents: model client %w", forgeerrors.ErrEmptyValue)
	case d.Sandbox == nil:
		return fmt.Errorf("agents: sandbox manager %w", forgeerrors.ErrEmptyValue)
	case d.Memory == nil:
		return fmt.Errorf("agents: memory %w", forgeerrors.ErrEmptyValue)
	case d.Health == nil:
		return fmt.Errorf("agents: health checker %w", forgeerrors.ErrEmptyValue)
	case d.Config == nil:
		return fmt.Errorf("agents: config %w", forgeerrors.ErrEmptyValue)
	}
	return nil
}

// Registry maps node names to nodes. It is safe for concurrent reads.
type Registry struct {
	mu    sync.RWMutex
	nodes map[Name]Node
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[Name]Node)}
}

// New creates a registry holding the full node set wired to deps.
func New(deps Deps) (*Registry, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Profiles == nil {
		deps.Profiles = sandbox.BuiltinProfiles()
	}

	r := NewRegistry()
	for _, n := range []Node{
		&Overseer{deps: deps},
		&Architect{deps: deps},
		&SpecApproval{deps: deps},
		&TaskManager{deps: deps},
		&Reasoner{deps: deps},
		&Planner{deps: deps},
		&Developer{deps: deps},
		&Executor{deps: deps},
		&Reviewer{deps: deps},
		&Debugger{deps: deps},
		&Strategist{deps: deps},
		&Tester{deps: deps},
		&TestGen{deps: deps},
	} {
		r.Register(n)
	}
	return r, nil
}

// Register adds a node, replacing any node of the same name.
func (r *Registry) Register(n Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.Name()] = n
}

// Get returns the node for name.
func (r *Registry) Get(name Name) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forgeerrors.ErrUnknownNode, name)
	}
	return n, nil
}

// Names returns the registered node names, sorted.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]Name, 0, len(r.nodes))
	for n := range r.nodes {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// project returns the memory key for the session.
func project(st *domain.WorkflowState) string {
	if st.ProjectID != "" {
		return st.ProjectID
	}
	return st.SandboxName
}

func nodeLogger(deps Deps, name Name, st *domain.WorkflowState) zerolog.Logger {
	return deps.Logger.With().
		Str("thread_id", st.ThreadID).
		Str("node", name.String()).
		Logger()
}

// logf formats a WorkflowState log line prefixed with the node name.
func logf(name Name, format string, args ...any) string {
	return string(name) + ": " + fmt.Sprintf(format, args...)
}
