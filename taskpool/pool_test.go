package taskpool

import (
	"testing"
	"time"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	return New(t.TempDir(), "proj-1")
}

func TestCreateTaskIsAvailable(t *testing.T) {
	p := newTestPool(t)
	task, err := p.CreateTask("supervisor", "write docs", "draft the README", Context{WorkingDirectory: "/repo"}, 5)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, task.Status)
	assert.NotEmpty(t, task.ID)
}

func TestClaimNextPrefersHigherPriority(t *testing.T) {
	p := newTestPool(t)
	_, err := p.CreateTask("supervisor", "low", "", Context{}, 2)
	require.NoError(t, err)
	_, err = p.CreateTask("supervisor", "high", "", Context{}, 8)
	require.NoError(t, err)

	claimed, ok, err := p.ClaimNext("backend")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "high", claimed.Title)
	assert.Equal(t, StatusClaimed, claimed.Status)
	assert.Equal(t, "backend", claimed.ClaimedBy)
}

func TestClaimNextTiesBreakOnCreationOrder(t *testing.T) {
	p := newTestPool(t)
	first, err := p.CreateTask("supervisor", "first", "", Context{}, 5)
	require.NoError(t, err)
	_, err = p.CreateTask("supervisor", "second", "", Context{}, 5)
	require.NoError(t, err)

	claimed, ok, err := p.ClaimNext("backend")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, claimed.ID)
}

func TestClaimNextReturnsFalseWhenEmpty(t *testing.T) {
	p := newTestPool(t)
	_, ok, err := p.ClaimNext("backend")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimNextRejectsSecondActiveTask(t *testing.T) {
	p := newTestPool(t)
	_, err := p.CreateTask("supervisor", "a", "", Context{}, 5)
	require.NoError(t, err)
	_, err = p.CreateTask("supervisor", "b", "", Context{}, 5)
	require.NoError(t, err)

	_, ok, err := p.ClaimNext("backend")
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = p.ClaimNext("backend")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAlreadyHasTask))
}

func TestClaimSpecificTaskFailsIfNotAvailable(t *testing.T) {
	p := newTestPool(t)
	task, err := p.CreateTask("supervisor", "a", "", Context{}, 5)
	require.NoError(t, err)

	_, err = p.Claim(task.ID, "backend")
	require.NoError(t, err)

	_, err = p.Claim(task.ID, "frontend")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestClaimUnknownTaskIsNotFound(t *testing.T) {
	p := newTestPool(t)
	_, err := p.Claim("does-not-exist", "backend")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestStartRequiresSameClaimant(t *testing.T) {
	p := newTestPool(t)
	task, err := p.CreateTask("supervisor", "a", "", Context{}, 5)
	require.NoError(t, err)
	task, err = p.Claim(task.ID, "backend")
	require.NoError(t, err)

	_, err = p.Start(task.ID, "frontend")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))

	started, err := p.Start(task.ID, "backend")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)
}

func TestCompleteRecordsResult(t *testing.T) {
	p := newTestPool(t)
	task, err := p.CreateTask("supervisor", "a", "", Context{}, 5)
	require.NoError(t, err)
	task, err = p.Claim(task.ID, "backend")
	require.NoError(t, err)

	done, err := p.Complete(task.ID, Result{Summary: "shipped it"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, "shipped it", done.Result.Summary)
}

func TestFailReturnsTaskToPool(t *testing.T) {
	p := newTestPool(t)
	task, err := p.CreateTask("supervisor", "a", "", Context{}, 5)
	require.NoError(t, err)
	task, err = p.Claim(task.ID, "backend")
	require.NoError(t, err)

	failed, err := p.Fail(task.ID, "compile error")
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, failed.Status)
	assert.Empty(t, failed.ClaimedBy)
	assert.Equal(t, "compile error", failed.FailureReason)

	// The task can now be claimed again.
	reclaimed, ok, err := p.ClaimNext("frontend")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.ID, reclaimed.ID)
}

func TestResetStaleReclaimsOldClaims(t *testing.T) {
	p := newTestPool(t)
	task, err := p.CreateTask("supervisor", "a", "", Context{}, 5)
	require.NoError(t, err)
	task, err = p.Claim(task.ID, "backend")
	require.NoError(t, err)

	stale := task
	stale.ClaimantScope = "supervisor"
	past := time.Now().Add(-10 * time.Minute)
	stale.ClaimedAt = &past
	require.NoError(t, p.writeLocked(stale))

	n, err := p.ResetStale(DefaultStaleAfter, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tasks, err := p.List()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusAvailable, tasks[0].Status)
}

func TestResetStaleScopedByClaimant(t *testing.T) {
	p := newTestPool(t)
	task, err := p.CreateTask("supervisor", "a", "", Context{}, 5)
	require.NoError(t, err)
	task, err = p.Claim(task.ID, "worker-1")
	require.NoError(t, err)

	task.ClaimantScope = "supervisor-a"
	past := time.Now().Add(-10 * time.Minute)
	task.ClaimedAt = &past
	require.NoError(t, p.writeLocked(task))

	n, err := p.ResetStale(DefaultStaleAfter, "supervisor-b")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "scoped reset must not touch tasks from a different scope")
}

func TestIsStale(t *testing.T) {
	now := time.Now()
	claimedAt := now.Add(-6 * time.Minute)
	task := Task{Status: StatusClaimed, ClaimedAt: &claimedAt}
	assert.True(t, task.IsStale(now, DefaultStaleAfter))

	task.Status = StatusCompleted
	assert.False(t, task.IsStale(now, DefaultStaleAfter))
}
