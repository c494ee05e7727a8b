package domain

import (
	"fmt"
	"strings"

	"github.com/mrz1836/forge/internal/constants"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// PlanStep is one atomic executable action: run a command or write a file.
//
// Example JSON representation:
//
//	{"id": "step-1", "description": "create server", "action": "write_file",
//	 "file_path": "server.js", "content": "...", "interactive": false}
type PlanStep struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	Action      constants.StepAction `json:"action"`
	Command     string               `json:"command,omitempty"`
	FilePath    string               `json:"file_path,omitempty"`
	Content     string               `json:"content,omitempty"`

	// Interactive steps need an operator at the terminal bridge.
	Interactive bool `json:"interactive,omitempty"`
}

// Validate checks the step carries what its action needs.
func (p PlanStep) Validate() error {
	switch p.Action {
	case constants.ActionCommand:
		if strings.TrimSpace(p.Command) == "" {
			return fmt.Errorf("step %q: command %w", p.ID, forgeerrors.ErrEmptyValue)
		}
	case constants.ActionWriteFile:
		if strings.TrimSpace(p.FilePath) == "" {
			return fmt.Errorf("step %q: file_path %w", p.ID, forgeerrors.ErrEmptyValue)
		}
	default:
		return fmt.Errorf("step %q: unknown action %q: %w", p.ID, p.Action, forgeerrors.ErrModelMalformed)
	}
	return nil
}

// Summary is a one-line rendering for logs.
func (p PlanStep) Summary() string {
	switch p.Action {
	case constants.ActionWriteFile:
		return fmt.Sprintf("[%s] write %s", p.ID, p.FilePath)
	case constants.ActionCommand:
		return fmt.Sprintf("[%s] run %s", p.ID, p.Command)
	default:
		return fmt.Sprintf("[%s] %s", p.ID, p.Description)
	}
}
