package workflow

import (
	"fmt"

	"github.com/mrz1836/forge/internal/agents"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// interruptPoints are the nodes the engine pauses before unless the session
// runs in yolo mode.
//
//nolint:gochecknoglobals // Read-only lookup table
var interruptPoints = map[agents.Name]bool{
	agents.NodeExecutor:     true,
	agents.NodeSpecApproval: true,
}

// IsInterruptPoint reports whether the engine pauses before node.
func IsInterruptPoint(node agents.Name) bool {
	return interruptPoints[node]
}

// Route returns the node that runs after from, given the state from left
// behind. Routing depends only on status, error category, the loop flag,
// and the strategist's action.
func Route(from agents.Name, st *domain.WorkflowState) (agents.Name, error) {
	switch from {
	case agents.NodeOverseer:
		return routeOverseer(st)
	case agents.NodeArchitect:
		return routeArchitect(st)
	case agents.NodeSpecApproval:
		return agents.NodeTaskManager, nil
	case agents.NodeTaskManager:
		return agents.NodeOverseer, nil
	case agents.NodeReasoning:
		return agents.NodePlanner, nil
	case agents.NodePlanner:
		return endOnFailure(st, agents.NodeDeveloper), nil
	case agents.NodeDeveloper:
		return routeDeveloper(st)
	case agents.NodeExecutor:
		if st.Status == constants.StatusWaitingInteraction {
			return agents.NodeExecutor, nil
		}
		return agents.NodeReviewer, nil
	case agents.NodeReviewer:
		return routeReviewer(st)
	case agents.NodeDebugger:
		return endOnFailure(st, agents.NodeExecutor), nil
	case agents.NodeStrategist:
		return routeStrategist(st)
	case agents.NodeTester:
		return agents.NodeOverseer, nil
	case agents.NodeTestGen:
		return agents.NodeDeveloper, nil
	case agents.NodeEnd:
		return agents.NodeEnd, nil
	default:
		return "", fmt.Errorf("%w: %s", forgeerrors.ErrUnknownNode, from)
	}
}

func unroutable(from agents.Name, st *domain.WorkflowState) error {
	return fmt.Errorf("%w: %s left status %q", forgeerrors.ErrUnroutableStatus, from, st.Status)
}

func endOnFailure(st *domain.WorkflowState, next agents.Name) agents.Name {
	if st.Status == constants.StatusFailed {
		return agents.NodeEnd
	}
	return next
}

func routeOverseer(st *domain.WorkflowState) (agents.Name, error) {
	//nolint:exhaustive // Statuses the overseer never sees are unroutable
	switch st.Status {
	case constants.StatusStart, constants.StatusPlanningNeeded:
		return agents.NodeArchitect, nil
	case constants.StatusQAFailed:
		if st.ErrorCategory == constants.CategoryInfrastructure {
			return agents.NodeArchitect, nil
		}
		return agents.NodeDeveloper, nil
	case constants.StatusPlanReady:
		return agents.NodeTestGen, nil
	case constants.StatusExecutionDone:
		return agents.NodeTester, nil
	case constants.StatusQAPassed, constants.StatusFailed:
		return agents.NodeEnd, nil
	default:
		return "", unroutable(agents.NodeOverseer, st)
	}
}

func routeArchitect(st *domain.WorkflowState) (agents.Name, error) {
	//nolint:exhaustive // The architect only sets the statuses below
	switch st.Status {
	case constants.StatusWaitingApproval:
		return agents.NodeSpecApproval, nil
	case constants.StatusSpecReady, constants.StatusSpecApproved:
		return agents.NodeTaskManager, nil
	case constants.StatusFailed:
		return agents.NodeEnd, nil
	default:
		return "", unroutable(agents.NodeArchitect, st)
	}
}

func routeDeveloper(st *domain.WorkflowState) (agents.Name, error) {
	//nolint:exhaustive // The developer only sets the statuses below
	switch st.Status {
	case constants.StatusPlanningNeeded:
		return agents.NodeReasoning, nil
	case constants.StatusCoding:
		return agents.NodeExecutor, nil
	case constants.StatusExecutionDone:
		return agents.NodeOverseer, nil
	case constants.StatusFailed:
		return agents.NodeEnd, nil
	default:
		return "", unroutable(agents.NodeDeveloper, st)
	}
}

func routeReviewer(st *domain.WorkflowState) (agents.Name, error) {
	//nolint:exhaustive // The reviewer only sets done or failed
	switch st.Status {
	case constants.StatusFailed:
		switch {
		case st.LoopDetected:
			return agents.NodeStrategist, nil
		case st.ErrorCategory == constants.CategoryInfrastructure:
			return agents.NodeArchitect, nil
		default:
			return agents.NodeDebugger, nil
		}
	case constants.StatusDone:
		// The developer either dispatches the next step or closes the task.
		return agents.NodeDeveloper, nil
	default:
		return "", unroutable(agents.NodeReviewer, st)
	}
}

func routeStrategist(st *domain.WorkflowState) (agents.Name, error) {
	if st.Status == constants.StatusFailed {
		return agents.NodeEnd, nil
	}
	if st.Status != constants.StatusStrategyChosen {
		return "", unroutable(agents.NodeStrategist, st)
	}
	switch st.StrategyAction {
	case constants.StrategyReplan:
		return agents.NodePlanner, nil
	case constants.StrategyPivot:
		return agents.NodeReasoning, nil
	case constants.StrategySkip:
		return agents.NodeDeveloper, nil
	case constants.StrategyAbort, constants.StrategyNone:
		return agents.NodeEnd, nil
	default:
		return "", fmt.Errorf("%w: strategist chose %q", forgeerrors.ErrUnroutableStatus, st.StrategyAction)
	}
}
