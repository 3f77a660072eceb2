package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskward/taskward/internal/model"
)

func TestOperationTransitions(t *testing.T) {
	now := time.Now().UTC()
	op := model.BulkOperation{Status: model.OperationStatusPending}

	op.Start(now)
	assert.Equal(t, model.OperationStatusRunning, op.Status)
	assert.NotNil(t, op.StartedAt)

	// Start on a running operation is a no-op.
	op.StartedAt = nil
	op.Start(now)
	assert.Nil(t, op.StartedAt)

	op.Complete(now)
	assert.Equal(t, model.OperationStatusCompleted, op.Status)
	assert.NotNil(t, op.CompletedAt)
	assert.True(t, op.IsCompleted())

	// Terminal statuses never change.
	op.Fail(now, "too late")
	assert.Equal(t, model.OperationStatusCompleted, op.Status)
	assert.Empty(t, op.ErrorMessage)
}

func TestOperationFail(t *testing.T) {
	now := time.Now().UTC()
	op := model.BulkOperation{Status: model.OperationStatusRunning}

	op.Fail(now, "db gone")
	assert.Equal(t, model.OperationStatusFailed, op.Status)
	assert.Equal(t, "db gone", op.ErrorMessage)
	assert.True(t, op.IsCompleted())

	op.Complete(now)
	assert.Equal(t, model.OperationStatusFailed, op.Status)
}

func TestProgressPercentage(t *testing.T) {
	tests := map[string]struct {
		op       model.BulkOperation
		expected float64
	}{
		"An empty operation reports full progress.": {
			op:       model.BulkOperation{TotalItems: 0},
			expected: 100.0,
		},
		"Partial progress is proportional.": {
			op:       model.BulkOperation{TotalItems: 4, ProcessedItems: 1},
			expected: 25.0,
		},
		"All items processed reports full progress.": {
			op:       model.BulkOperation{TotalItems: 5, ProcessedItems: 5},
			expected: 100.0,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.op.ProgressPercentage())
		})
	}
}

func TestTaskSnapshotRoundTrip(t *testing.T) {
	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	task := model.Task{
		ID:          7,
		OwnerID:     1,
		Title:       "t",
		Description: "d",
		Completed:   true,
		Priority:    model.PriorityHigh,
		DueDate:     &due,
		Position:    3,
	}

	assert.Equal(t, task, model.NewTaskSnapshot(task).Task())
}
