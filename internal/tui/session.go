package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/mrz1836/forge/internal/domain"
)

// SessionView is what status displays know about a session.
type SessionView struct {
	State    *domain.WorkflowState
	NextNode string
	Paused   bool
}

// WriteSession prints a session summary followed by its plan.
func WriteSession(w io.Writer, v SessionView) {
	st := v.State
	styles := NewOutputStyles()

	_, _ = fmt.Fprintf(w, "%s %s\n", StyleBold.Render("Session"), st.ThreadID)
	_, _ = fmt.Fprintf(w, "  Project:     %s\n", st.ProjectID)
	_, _ = fmt.Fprintf(w, "  Status:      %s\n", FormatStatus(st.Status))
	if v.NextNode != "" {
		_, _ = fmt.Fprintf(w, "  Next node:   %s\n", v.NextNode)
	}
	_, _ = fmt.Fprintf(w, "  Tasks:       %d/%d\n", st.CompletedTasks, st.TotalTasks)
	if st.CurrentTask != "" {
		_, _ = fmt.Fprintf(w, "  Current:     %s\n", st.CurrentTask)
	}
	_, _ = fmt.Fprintf(w, "  Transitions: %d\n", st.Transitions)
	if last := st.LastError(); last != "" {
		_, _ = fmt.Fprintf(w, "  Last error:  %s\n", styles.Error.Render(firstLine(last)))
	}
	if action := SuggestedAction(st.Status, v.Paused); action != "" {
		_, _ = fmt.Fprintf(w, "  Next:        %s\n", styles.Warning.Render(action))
	}

	if len(st.Plan) > 0 {
		_, _ = fmt.Fprintln(w)
		WritePlan(w, st.Plan, st.CurrentStepIndex)
	}
}

// WritePlan prints plan steps with markers for done, current and pending.
func WritePlan(w io.Writer, plan []domain.PlanStep, current int) {
	_, _ = fmt.Fprintln(w, StyleBold.Render("Plan"))
	for i, step := range plan {
		marker := "○"
		switch {
		case i < current:
			marker = "✓"
		case i == current:
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %s", marker, step.Summary())
		if step.Interactive {
			line += " (interactive)"
		}
		if i < current && HasColorSupport() {
			line = StyleDim.Render(line)
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
