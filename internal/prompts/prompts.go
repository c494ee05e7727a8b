package prompts

import (
	"bytes"
	"errors"
	"fmt"
)

// Render executes a prompt template with the provided data and returns the result.
// The data type should match the expected type for the given prompt ID.
//
// Example:
//
//	prompt, err := prompts.Render(prompts.Planner, prompts.PlannerData{
//	    Goal: goal,
//	    Task: "add /health endpoint",
//	})
func Render(id PromptID, data any) (string, error) {
	if err := ValidateData(id, data); err != nil {
		return "", err
	}

	tmpl, _, err := lookup(id)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Join(ErrTemplateExecution, fmt.Errorf("prompt %s: %w", id, err))
	}

	return buf.String(), nil
}

// List returns all registered prompt IDs.
func List() []PromptID {
	return ids()
}

// Exists checks if a prompt ID is registered.
func Exists(id PromptID) bool {
	_, _, err := lookup(id)
	return err == nil
}

// GetTemplate returns the raw template source for a prompt ID.
func GetTemplate(id PromptID) (string, error) {
	_, source, err := lookup(id)
	return source, err
}

// ValidateData checks if the provided data is valid for the given prompt ID.
func ValidateData(id PromptID, data any) error {
	var ok bool
	switch id {
	case Architect:
		_, ok = data.(ArchitectData)
	case TaskManager:
		_, ok = data.(TaskManagerData)
	case Reasoning:
		_, ok = data.(ReasoningData)
	case Planner:
		_, ok = data.(PlannerData)
	case Debugger:
		_, ok = data.(DebuggerData)
	case Strategist:
		_, ok = data.(StrategistData)
	case TestGen:
		_, ok = data.(TestGenData)
	default:
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: prompt %s got %T", ErrInvalidData, id, data)
	}
	return nil
}
