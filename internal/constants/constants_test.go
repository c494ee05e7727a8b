package constants

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowLimitConstants(t *testing.T) {
	t.Run("loop threshold fits inside the window", func(t *testing.T) {
		assert.LessOrEqual(t, DefaultLoopThreshold, DefaultLoopWindow)
	})

	t.Run("history cap leaves room for several fixes", func(t *testing.T) {
		assert.Greater(t, DefaultHistoryCap, DefaultLoopWindow)
	})

	t.Run("transition ceiling is well above a short plan", func(t *testing.T) {
		assert.GreaterOrEqual(t, DefaultMaxTransitions, 100)
	})
}

func TestLockConstants(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, LockRetryInterval)
	assert.Less(t, LockRetryInterval, LockTimeout)
}

func TestSandboxExcludes(t *testing.T) {
	assert.Contains(t, SandboxExcludes, "**/node_modules/**")
	assert.Contains(t, SandboxExcludes, "**/.git/**")
	assert.Len(t, ExcludedDirNames, len(SandboxExcludes))
}

func TestArtifactPathsLiveInMetaDir(t *testing.T) {
	for _, p := range []string{VerifyScriptPath, ServerPIDPath, ServerLogPath} {
		assert.Contains(t, p, SandboxMetaDir+"/")
	}
}
