package agents

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/constants"
)

func TestReasoner_AssemblesContextAndStrategy(t *testing.T) {
	h := newHarness(t)
	h.model.Queue("reasoning", "Add a route in server.js using express.")
	st := newState()
	st.CurrentTask = "serve json"

	apply(t, &Reasoner{deps: h.deps}, st)

	assert.Contains(t, st.Context, "## Project History (PROGRESS.md)")
	assert.Contains(t, st.Context, "## Technical Strategy\nAdd a route in server.js using express.\n")
	require.Len(t, h.memory.assembled, 1)
	assert.Equal(t, "serve json\n"+st.Goal, h.memory.assembled[0])
}

func TestReasoner_PivotDirective(t *testing.T) {
	h := newHarness(t)
	h.model.Queue("reasoning", "Use the built-in http module.")
	st := newState()
	st.CurrentTask = "serve json"
	st.StrategyAction = constants.StrategyPivot
	st.StrategyDirective = "drop express, use node:http"

	apply(t, &Reasoner{deps: h.deps}, st)

	assert.Equal(t, constants.StrategyNone, st.StrategyAction)
	calls := h.model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, "drop express, use node:http")
}

func TestReasoner_DegradesSoftly(t *testing.T) {
	h := newHarness(t)
	h.memory.context = ""
	h.memory.err = errors.New("index unavailable")
	st := newState()
	st.CurrentTask = "serve json"
	st.StrategyAction = constants.StrategyPivot
	st.StrategyDirective = "smaller steps"

	u := apply(t, &Reasoner{deps: h.deps}, st)

	assert.Equal(t, "## Technical Strategy\nsmaller steps\n", st.Context)
	assert.Len(t, u.AppendLogs, 2)
}
