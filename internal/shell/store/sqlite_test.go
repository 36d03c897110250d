package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipper/internal/core/release"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestJournal(t *testing.T) Journal {
	t.Helper()
	journal, err := NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		journal.Close()
	})
	return journal
}

func finishedRun(t *testing.T, status release.Status) *release.Run {
	t.Helper()
	run := release.NewRun("abc1234", "acme/widget")
	run.Version = "v3"
	run.Status = status
	run.MarkStage(release.StageResolve, release.OutcomeSucceeded)
	now := time.Now().UTC()
	run.FinishedAt = &now
	return run
}

// =============================================================================
// Record/Get Tests
// =============================================================================

func TestSQLiteJournal_RecordAndGet(t *testing.T) {
	journal := setupTestJournal(t)
	run := finishedRun(t, release.StatusSucceeded)
	run.RolledBack = false

	require.NoError(t, journal.RecordRun(context.Background(), run))

	got, err := journal.GetRun(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "abc1234", got.Commit)
	assert.Equal(t, "acme/widget", got.Repository)
	assert.Equal(t, release.VersionTag("v3"), got.Version)
	assert.Equal(t, release.StatusSucceeded, got.Status)
	assert.Equal(t, release.OutcomeSucceeded, got.Stages[release.StageResolve])
	assert.NotNil(t, got.FinishedAt)
}

func TestSQLiteJournal_RecordFailedRun(t *testing.T) {
	journal := setupTestJournal(t)
	run := finishedRun(t, release.StatusFailed)
	run.RolledBack = true
	run.Error = "deploy stage: connection refused"

	require.NoError(t, journal.RecordRun(context.Background(), run))

	got, err := journal.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.True(t, got.RolledBack)
	assert.Equal(t, "deploy stage: connection refused", got.Error)
}

func TestSQLiteJournal_GetMissingRun(t *testing.T) {
	journal := setupTestJournal(t)

	_, err := journal.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSQLiteJournal_DuplicateRun(t *testing.T) {
	journal := setupTestJournal(t)
	run := finishedRun(t, release.StatusSucceeded)

	require.NoError(t, journal.RecordRun(context.Background(), run))
	assert.ErrorIs(t, journal.RecordRun(context.Background(), run), ErrDuplicateRun)
}

// =============================================================================
// List Tests
// =============================================================================

func TestSQLiteJournal_ListRuns_MostRecentFirst(t *testing.T) {
	journal := setupTestJournal(t)

	older := finishedRun(t, release.StatusSucceeded)
	older.StartedAt = time.Now().UTC().Add(-time.Hour)
	newer := finishedRun(t, release.StatusFailed)

	require.NoError(t, journal.RecordRun(context.Background(), older))
	require.NoError(t, journal.RecordRun(context.Background(), newer))

	runs, err := journal.ListRuns(context.Background(), ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)
}

func TestSQLiteJournal_ListRuns_Pagination(t *testing.T) {
	journal := setupTestJournal(t)
	for i := 0; i < 5; i++ {
		run := finishedRun(t, release.StatusSucceeded)
		run.StartedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		require.NoError(t, journal.RecordRun(context.Background(), run))
	}

	page, err := journal.ListRuns(context.Background(), ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestSQLiteJournal_ListRuns_Empty(t *testing.T) {
	journal := setupTestJournal(t)

	runs, err := journal.ListRuns(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
