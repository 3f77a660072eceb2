package storage

import (
	"context"
	"time"

	"github.com/taskward/taskward/internal/model"
)

// TaskRepository is the interface for task persistence.
//
// Transact runs fn against a repository bound to a single transaction:
// all mutations made through it are applied atomically, and any error
// returned by fn rolls the whole batch back.
type TaskRepository interface {
	CreateTask(ctx context.Context, t model.Task) (*model.Task, error)
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	ListTasksByIDs(ctx context.Context, ids []int64) ([]model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id int64) error
	// RestoreTask inserts a task row keeping its original identifier,
	// position and timestamps.
	RestoreTask(ctx context.Context, t model.Task) error
	UpdatePosition(ctx context.Context, id int64, position int64) error
	SearchTasks(ctx context.Context, q model.SearchQuery) ([]model.Task, int, error)
	// SearchSuggestions returns matching titles and description words
	// for autocomplete. ownerID 0 means all owners.
	SearchSuggestions(ctx context.Context, ownerID int64, query string, limit int) ([]string, error)
	FilterStats(ctx context.Context, ownerID int64) (*model.FilterStats, error)
	Transact(ctx context.Context, fn func(TaskRepository) error) error
}

// OperationRepository is the interface for bulk operation record
// persistence. The per-owner undo stack is the same table, ordered
// most-recent-first.
type OperationRepository interface {
	CreateOperation(ctx context.Context, op model.BulkOperation) error
	GetOperation(ctx context.Context, id string) (*model.BulkOperation, error)
	UpdateOperation(ctx context.Context, op model.BulkOperation) error
	// ConsumeUndo flips can_undo from true to false exactly once.
	// Returns model.ErrAlreadyUndone when the entry was already consumed.
	ConsumeUndo(ctx context.Context, id string) error
	ListUndoHistory(ctx context.Context, ownerID int64, limit int) ([]model.BulkOperation, error)
	// TrimUndoStack drops can_undo and the snapshot from entries beyond
	// the newest depth entries of the owner. Returns the ids of the
	// entries it trimmed.
	TrimUndoStack(ctx context.Context, ownerID int64, depth int) ([]string, error)
	// DeleteCompletedBefore removes terminal operations completed before
	// the cutoff and returns how many were removed.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
