package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRun(t *testing.T, store *mockRunStore, id string, status Status, archived bool) {
	t.Helper()
	run := &Run{
		ID:        id,
		IntentID:  "test-intent",
		Status:    status,
		StartedAt: time.Now().UTC(),
	}
	if archived {
		run.ArchivedAt = nowPtr()
	}
	require.NoError(t, store.CreateRun(context.Background(), run))
}

func TestCancelActiveRun(t *testing.T) {
	store := newMockRunStore()
	seedRun(t, store, "r1", StatusRunning, false)

	lc := NewLifecycle(store)
	require.NoError(t, lc.Cancel(context.Background(), "r1", "alice"))

	run, err := store.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, run.CancelRequestedAt)
	assert.Equal(t, "alice", *run.CancelRequestedBy)
	// The status itself is untouched; the engine observes the flag at
	// its next checkpoint.
	assert.Equal(t, StatusRunning, run.Status)
}

func TestCancelIsIdempotentlyRejected(t *testing.T) {
	store := newMockRunStore()
	seedRun(t, store, "r1", StatusRunning, false)

	lc := NewLifecycle(store)
	require.NoError(t, lc.Cancel(context.Background(), "r1", "alice"))

	err := lc.Cancel(context.Background(), "r1", "bob")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCancelAlreadyRequested))

	// The original requester is preserved.
	run, _ := store.GetRun(context.Background(), "r1")
	assert.Equal(t, "alice", *run.CancelRequestedBy)
}

func TestCancelTerminalRun(t *testing.T) {
	store := newMockRunStore()
	seedRun(t, store, "r1", StatusCompleted, false)

	err := NewLifecycle(store).Cancel(context.Background(), "r1", "alice")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRunTerminal))
}

func TestCancelMissingRun(t *testing.T) {
	err := NewLifecycle(newMockRunStore()).Cancel(context.Background(), "ghost", "alice")
	assert.True(t, eris.Is(err, ErrRunNotFound))
}

func TestBulkArchive(t *testing.T) {
	store := newMockRunStore()
	seedRun(t, store, "r1", StatusCompleted, false)
	seedRun(t, store, "r2", StatusFailed, false)
	seedRun(t, store, "r3", StatusCompleted, true)

	res, err := NewLifecycle(store).Bulk(context.Background(), ActionArchive, []string{"r1", "r2", "r3"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Affected)
	// Already-archived runs are counted out, not errors.
	assert.ElementsMatch(t, []string{"r1", "r2"}, store.archivedIDs)
}

func TestBulkUnarchive(t *testing.T) {
	store := newMockRunStore()
	seedRun(t, store, "r1", StatusCompleted, true)
	seedRun(t, store, "r2", StatusCompleted, false)

	res, err := NewLifecycle(store).Bulk(context.Background(), ActionUnarchive, []string{"r1", "r2"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
}

func TestBulkRejectsMissingIDs(t *testing.T) {
	store := newMockRunStore()
	seedRun(t, store, "r1", StatusCompleted, false)

	_, err := NewLifecycle(store).Bulk(context.Background(), ActionArchive, []string{"r1", "ghost"}, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRunsNotFound))
	// Nothing in the batch was applied.
	assert.Empty(t, store.archivedIDs)
}

func TestBulkDeleteRequiresArchived(t *testing.T) {
	store := newMockRunStore()
	seedRun(t, store, "r1", StatusCompleted, true)
	seedRun(t, store, "r2", StatusCompleted, false)

	_, err := NewLifecycle(store).Bulk(context.Background(), ActionDelete, []string{"r1", "r2"}, "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotArchived))
	assert.Empty(t, store.deletedIDs)
}

func TestBulkDeleteArchivedRuns(t *testing.T) {
	store := newMockRunStore()
	seedRun(t, store, "r1", StatusCompleted, true)
	seedRun(t, store, "r2", StatusCancelled, true)

	res, err := NewLifecycle(store).Bulk(context.Background(), ActionDelete, []string{"r1", "r2"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Affected)
	assert.ElementsMatch(t, []string{"r1", "r2"}, store.deletedIDs)

	_, err = store.GetRun(context.Background(), "r1")
	assert.True(t, eris.Is(err, ErrRunNotFound))
}

func TestBulkUnknownAction(t *testing.T) {
	_, err := NewLifecycle(newMockRunStore()).Bulk(context.Background(), "explode", []string{"r1"}, "")
	assert.True(t, eris.Is(err, ErrUnknownAction))
}

func TestBulkEmptyIDs(t *testing.T) {
	res, err := NewLifecycle(newMockRunStore()).Bulk(context.Background(), ActionArchive, nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Affected)
}
