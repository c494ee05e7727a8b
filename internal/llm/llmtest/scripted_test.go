package llmtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/llm"
)

func TestScripted(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	s := NewScripted().
		Queue("planner", "one", "two").
		QueueError("planner", errBoom).
		Always("architect", "spec")

	got, err := s.Complete(ctx, llm.Request{Node: "planner"})
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	got, err = s.Complete(ctx, llm.Request{Node: "planner"})
	require.NoError(t, err)
	assert.Equal(t, "two", got)

	_, err = s.Complete(ctx, llm.Request{Node: "planner"})
	require.ErrorIs(t, err, errBoom)

	for range 3 {
		got, err = s.Complete(ctx, llm.Request{Node: "architect"})
		require.NoError(t, err)
		assert.Equal(t, "spec", got)
	}

	_, err = s.Complete(ctx, llm.Request{Node: "planner"})
	require.Error(t, err)

	assert.Equal(t, 4, s.CallsFor("planner"))
	assert.Len(t, s.Calls(), 7)
}
