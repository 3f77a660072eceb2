package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskward/taskward/internal/model"
)

func operationFixture(id string, ownerID int64) model.BulkOperation {
	return model.BulkOperation{
		ID:         id,
		OwnerID:    ownerID,
		Kind:       model.OperationKindDelete,
		Status:     model.OperationStatusPending,
		TotalItems: 3,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestOperationCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	op := operationFixture("op-1", 1)
	require.NoError(t, repo.CreateOperation(ctx, op))

	err := repo.CreateOperation(ctx, op)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	got, err := repo.GetOperation(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusPending, got.Status)
	assert.Equal(t, 3, got.TotalItems)
	assert.Empty(t, got.ItemErrors)
	assert.Nil(t, got.Snapshot)
	assert.False(t, got.CanUndo)

	now := time.Now().UTC()
	op.Start(now)
	op.ProcessedItems = 2
	op.FailedItems = 1
	op.ItemErrors = []model.ItemError{{TaskID: 9, Error: "task not found or not owned"}}
	op.Snapshot = &model.Snapshot{Tasks: []model.TaskSnapshot{{ID: 7, Title: "old title", Priority: model.PriorityLow}}}
	op.CanUndo = true
	op.Complete(now)
	require.NoError(t, repo.UpdateOperation(ctx, op))

	got, err = repo.GetOperation(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessedItems)
	require.Len(t, got.ItemErrors, 1)
	assert.Equal(t, int64(9), got.ItemErrors[0].TaskID)
	require.NotNil(t, got.Snapshot)
	require.Len(t, got.Snapshot.Tasks, 1)
	assert.Equal(t, "old title", got.Snapshot.Tasks[0].Title)
	assert.True(t, got.CanUndo)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	_, err = repo.GetOperation(ctx, "op-missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	err = repo.UpdateOperation(ctx, operationFixture("op-missing", 1))
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestConsumeUndoExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	op := operationFixture("op-1", 1)
	op.CanUndo = true
	require.NoError(t, repo.CreateOperation(ctx, op))

	require.NoError(t, repo.ConsumeUndo(ctx, "op-1"))

	err := repo.ConsumeUndo(ctx, "op-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyUndone))

	err = repo.ConsumeUndo(ctx, "op-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	got, err := repo.GetOperation(ctx, "op-1")
	require.NoError(t, err)
	assert.False(t, got.CanUndo)
}

func TestListUndoHistory(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		op := operationFixture(fmt.Sprintf("op-%d", i), 1)
		op.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.CreateOperation(ctx, op))
	}
	other := operationFixture("other-owner", 2)
	require.NoError(t, repo.CreateOperation(ctx, other))

	ops, err := repo.ListUndoHistory(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "op-4", ops[0].ID)
	assert.Equal(t, "op-3", ops[1].ID)
	assert.Equal(t, "op-2", ops[2].ID)
}

func TestTrimUndoStack(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		op := operationFixture(fmt.Sprintf("op-%d", i), 1)
		op.CreatedAt = base.Add(time.Duration(i) * time.Second)
		op.CanUndo = true
		op.Snapshot = &model.Snapshot{CreatedIDs: []int64{int64(i)}}
		require.NoError(t, repo.CreateOperation(ctx, op))
	}

	trimmed, err := repo.TrimUndoStack(ctx, 1, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"op-0", "op-1"}, trimmed)

	// A second trim has nothing left to do.
	trimmed, err = repo.TrimUndoStack(ctx, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, trimmed)

	ops, err := repo.ListUndoHistory(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, ops, 4)

	// Newest two keep undo capability, older ones lose it but the
	// records stay.
	assert.True(t, ops[0].CanUndo)
	assert.True(t, ops[1].CanUndo)
	assert.False(t, ops[2].CanUndo)
	assert.Nil(t, ops[2].Snapshot)
	assert.False(t, ops[3].CanUndo)
	assert.Nil(t, ops[3].Snapshot)
}

func TestDeleteCompletedBefore(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	old := operationFixture("op-old", 1)
	old.Complete(time.Now().UTC().Add(-48 * time.Hour))
	require.NoError(t, repo.CreateOperation(ctx, old))

	fresh := operationFixture("op-fresh", 1)
	fresh.Complete(time.Now().UTC())
	require.NoError(t, repo.CreateOperation(ctx, fresh))

	running := operationFixture("op-running", 1)
	require.NoError(t, repo.CreateOperation(ctx, running))

	n, err := repo.DeleteCompletedBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.GetOperation(ctx, "op-old")
	assert.True(t, errors.Is(err, model.ErrNotFound))
	_, err = repo.GetOperation(ctx, "op-fresh")
	assert.NoError(t, err)
	_, err = repo.GetOperation(ctx, "op-running")
	assert.NoError(t, err)
}
