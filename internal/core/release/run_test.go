package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func createRunAt(t *testing.T, status Status) *Run {
	t.Helper()
	run := NewRun("abc1234", "usmanfarooq317/usman-apis-dashboard")
	run.Status = status
	if status == StatusDeploying || status == StatusRollingBack {
		run.Version = "v2"
	}
	return run
}

// =============================================================================
// Run Creation Tests
// =============================================================================

func TestNewRun(t *testing.T) {
	run := NewRun("abc1234", "acme/widget")

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "abc1234", run.Commit)
	assert.Equal(t, "acme/widget", run.Repository)
	assert.Equal(t, StatusPending, run.Status)
	assert.Empty(t, run.Version)
	assert.Equal(t, OutcomePending, run.Stages[StageResolve])
	assert.Equal(t, OutcomePending, run.Stages[StageDeploy])
	assert.NotZero(t, run.StartedAt)
	assert.Nil(t, run.FinishedAt)
}

func TestRun_ImageRef(t *testing.T) {
	run := NewRun("abc1234", "acme/widget")
	assert.Equal(t, "acme/widget:v3", run.ImageRef("v3"))
	assert.Equal(t, "acme/widget:latest", run.ImageRef("latest"))
}

// =============================================================================
// Status Transition Tests
// =============================================================================

func TestRun_Transition_LinearAdvance(t *testing.T) {
	run := NewRun("abc1234", "acme/widget")

	require.NoError(t, run.Transition(StatusResolving))
	require.NoError(t, run.ResolveVersion("v1"))
	require.NoError(t, run.Transition(StatusBuilding))
	require.NoError(t, run.Transition(StatusPublishing))
	require.NoError(t, run.Transition(StatusDeploying))
	require.NoError(t, run.Transition(StatusSucceeded))

	assert.True(t, run.Terminal())
	assert.NotNil(t, run.FinishedAt)
}

func TestRun_Transition_EarlyStageFailureSkipsRollback(t *testing.T) {
	for _, status := range []Status{StatusResolving, StatusBuilding, StatusPublishing} {
		run := createRunAt(t, status)

		assert.Error(t, run.Transition(StatusRollingBack), "from %s", status)
		assert.NoError(t, run.Transition(StatusFailed), "from %s", status)
	}
}

func TestRun_Transition_DeployFailureGoesThroughRollback(t *testing.T) {
	run := createRunAt(t, StatusDeploying)

	// A deploy failure may not fail directly; it must pass through rolling_back.
	assert.Error(t, ValidateTransition(StatusDeploying, StatusFailed))

	require.NoError(t, run.Transition(StatusRollingBack))
	assert.Nil(t, run.FinishedAt)
	require.NoError(t, run.Transition(StatusFailed))
	assert.True(t, run.Terminal())
	assert.NotNil(t, run.FinishedAt)
}

func TestRun_Transition_RollbackCannotSucceed(t *testing.T) {
	run := createRunAt(t, StatusRollingBack)
	assert.ErrorIs(t, run.Transition(StatusSucceeded), ErrInvalidTransition)
}

func TestRun_Transition_TerminalStatesAreFinal(t *testing.T) {
	for _, status := range []Status{StatusSucceeded, StatusFailed} {
		run := createRunAt(t, status)
		for _, to := range []Status{StatusPending, StatusResolving, StatusDeploying, StatusFailed} {
			assert.ErrorIs(t, run.Transition(to), ErrInvalidTransition)
		}
	}
}

func TestRun_Transition_DeployRequiresVersion(t *testing.T) {
	run := createRunAt(t, StatusPublishing)
	run.Version = ""

	assert.ErrorIs(t, run.Transition(StatusDeploying), ErrVersionNotSet)
}

// =============================================================================
// Version Resolution Tests
// =============================================================================

func TestRun_ResolveVersion_Immutable(t *testing.T) {
	run := NewRun("abc1234", "acme/widget")

	require.NoError(t, run.ResolveVersion("v4"))
	assert.ErrorIs(t, run.ResolveVersion("v5"), ErrVersionFixed)
	assert.Equal(t, VersionTag("v4"), run.Version)
}

// =============================================================================
// Stage Outcome Tests
// =============================================================================

func TestRun_MarkStage(t *testing.T) {
	run := NewRun("abc1234", "acme/widget")

	run.MarkStage(StageResolve, OutcomeSucceeded)
	run.MarkStage(StageDeploy, OutcomeFailed)

	assert.Equal(t, OutcomeSucceeded, run.Stages[StageResolve])
	assert.Equal(t, OutcomeFailed, run.Stages[StageDeploy])
	assert.Equal(t, OutcomePending, run.Stages[StageBuild])
}
