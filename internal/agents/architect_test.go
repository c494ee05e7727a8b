package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/constants"
)

func TestArchitect_WritesSpec(t *testing.T) {
	h := newHarness(t)
	h.box.SetFile("package.json", "{}")
	h.model.Queue("architect", "```markdown\n## Overview\nA JSON endpoint.\n```")
	st := newState()

	apply(t, &Architect{deps: h.deps}, st)

	assert.Equal(t, constants.StatusWaitingApproval, st.Status)
	spec, ok := h.box.File(constants.SpecFileName)
	require.True(t, ok)
	assert.Equal(t, "## Overview\nA JSON endpoint.\n", spec)
	assert.Equal(t, spec, st.Context)

	calls := h.model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, "- package.json")
}

func TestArchitect_ApprovedSpecIsReady(t *testing.T) {
	h := newHarness(t)
	h.model.Queue("architect", "## Overview\nrevised")
	st := newState()
	st.SpecApproved = true
	st.ErrorCategory = constants.CategoryInfrastructure
	st.ErrorHistory = []string{"verification failed: connection refused"}

	apply(t, &Architect{deps: h.deps}, st)

	assert.Equal(t, constants.StatusSpecReady, st.Status)
	calls := h.model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, "infrastructure problem")
	assert.Contains(t, calls[0].Messages[0].Content, "connection refused")
}

func TestArchitect_ModelFailureContinues(t *testing.T) {
	h := newHarness(t)
	st := newState()

	apply(t, &Architect{deps: h.deps}, st)

	assert.Equal(t, constants.StatusWaitingApproval, st.Status)
	assert.Contains(t, st.Context, "## Goal\n"+st.Goal)
	spec, ok := h.box.File(constants.SpecFileName)
	require.True(t, ok)
	assert.Equal(t, "# Specification\n\n"+st.Goal+"\n", spec)
}

func TestArchitect_ModelFailureKeepsExistingSpec(t *testing.T) {
	h := newHarness(t)
	h.box.SetFile(constants.SpecFileName, "## Overview\nkept\n")
	st := newState()

	apply(t, &Architect{deps: h.deps}, st)

	spec, _ := h.box.File(constants.SpecFileName)
	assert.Equal(t, "## Overview\nkept\n", spec)
	assert.Contains(t, st.Context, "## Specification\n## Overview\nkept")
}
