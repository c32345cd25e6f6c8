package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"inventory-service/internal/syncer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", nil)
	require.NoError(t, err)
	return store
}

func TestEnqueueQueuesEntryAndMarksStatePending(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Enqueue(syncer.EntityProduct, "prod-1", syncer.OpCreate,
		map[string]string{"name": "Widget"})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.OperationID)
	assert.Equal(t, EntryPending, entry.Status)

	state, err := store.State(syncer.EntityProduct, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, StatePendingCreate, state.SyncState)
	assert.Contains(t, state.Data, "Widget")
}

func TestClaimPendingMarksProcessingInOrder(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Enqueue(syncer.EntityProduct, "prod-1", syncer.OpCreate, nil)
	require.NoError(t, err)
	second, err := store.Enqueue(syncer.EntityProduct, "prod-2", syncer.OpCreate, nil)
	require.NoError(t, err)

	claimed, err := store.ClaimPending(10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first.OperationID, claimed[0].OperationID)
	assert.Equal(t, second.OperationID, claimed[1].OperationID)

	for _, entry := range claimed {
		stored, err := store.Entry(entry.OperationID)
		require.NoError(t, err)
		assert.Equal(t, EntryProcessing, stored.Status)
	}

	// Claimed entries are not handed out twice.
	again, err := store.ClaimPending(10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCompleteRemovesEntryAndStoresServerState(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Enqueue(syncer.EntityProduct, "prod-1", syncer.OpUpdate,
		map[string]string{"name": "Local Name"})
	require.NoError(t, err)

	require.NoError(t, store.Complete(entry.OperationID,
		map[string]string{"name": "Server Name"}))

	_, err = store.Entry(entry.OperationID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	state, err := store.State(syncer.EntityProduct, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, StateClean, state.SyncState)
	assert.Contains(t, state.Data, "Server Name")
}

func TestFailMarksConflictAndKeepsLocalData(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Enqueue(syncer.EntityProduct, "prod-1", syncer.OpUpdate,
		map[string]string{"name": "Local Edit"})
	require.NoError(t, err)

	require.NoError(t, store.Fail(entry.OperationID, "validation_error: name is required"))

	stored, err := store.Entry(entry.OperationID)
	require.NoError(t, err)
	assert.Equal(t, EntryFailed, stored.Status)
	assert.Contains(t, stored.LastError, "validation_error")

	// The local change stays visible for manual resolution.
	state, err := store.State(syncer.EntityProduct, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, StateConflict, state.SyncState)
	assert.Contains(t, state.Data, "Local Edit")
}

func TestRequeueKeepsOperationIDAndBumpsRetries(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Enqueue(syncer.EntityProduct, "prod-1", syncer.OpCreate, nil)
	require.NoError(t, err)

	claimed, err := store.ClaimPending(10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, store.Requeue([]string{entry.OperationID}))

	stored, err := store.Entry(entry.OperationID)
	require.NoError(t, err)
	assert.Equal(t, EntryPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	// The retried entry resurfaces with the same operation id.
	claimed, err = store.ClaimPending(10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, entry.OperationID, claimed[0].OperationID)
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := newTestStore(t)

	checkpoint, err := store.Checkpoint()
	require.NoError(t, err)
	assert.Empty(t, checkpoint)

	require.NoError(t, store.SetCheckpoint("cp-1"))
	require.NoError(t, store.SetCheckpoint("cp-2"))

	checkpoint, err = store.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, "cp-2", checkpoint)
}
