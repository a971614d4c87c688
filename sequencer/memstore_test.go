package sequencer

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailsequence/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRollbackKeepsOtherWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	target := &models.Sequence{}
	require.NoError(t, store.Create(ctx, target))
	other := &models.Sequence{}
	require.NoError(t, store.Create(ctx, other))
	require.NoError(t, store.Enqueue(ctx, &models.ScheduledJob{SequenceID: other.ID, DedupKey: "other-0"}))

	boom := errors.New("boom")
	var created *models.Sequence
	err := store.Transaction(ctx, func(tx Store, queue JobQueue) error {
		ok, err := tx.MarkProcessing(ctx, target.ID, time.Now())
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, queue.Enqueue(ctx, &models.ScheduledJob{SequenceID: target.ID, DedupKey: "target-0"}))

		// Writes from another caller land while the transaction is open.
		created = &models.Sequence{}
		require.NoError(t, store.Create(ctx, created))
		require.NoError(t, store.Enqueue(ctx, &models.ScheduledJob{SequenceID: other.ID, DedupKey: "other-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err, "a sequence created outside the transaction survives its rollback")
	assert.Equal(t, models.SequenceStatusPending, got.Status)

	reverted, err := store.Get(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SequenceStatusPending, reverted.Status)
	assert.Nil(t, reverted.ScheduledAt)

	var keys []string
	for _, job := range store.AllJobs() {
		keys = append(keys, job.DedupKey)
	}
	assert.Equal(t, []string{"other-0", "other-1"}, keys)
}

func TestMemoryStoreJobIDsStayUniqueAfterRollback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Transaction(ctx, func(_ Store, queue JobQueue) error {
		require.NoError(t, queue.Enqueue(ctx, &models.ScheduledJob{DedupKey: "a"}))
		return errors.New("abort")
	})

	first := &models.ScheduledJob{DedupKey: "b"}
	require.NoError(t, store.Enqueue(ctx, first))
	second := &models.ScheduledJob{DedupKey: "c"}
	require.NoError(t, store.Enqueue(ctx, second))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, store.AllJobs(), 2)
}
