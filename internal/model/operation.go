package model

import (
	"time"
)

// OperationKind represents the kind of a bulk operation.
type OperationKind string

const (
	OperationKindCreate    OperationKind = "create"
	OperationKindUpdate    OperationKind = "update"
	OperationKindDelete    OperationKind = "delete"
	OperationKindStatus    OperationKind = "status"
	OperationKindPriority  OperationKind = "priority"
	OperationKindDuplicate OperationKind = "duplicate"
	OperationKindReorder   OperationKind = "reorder"
)

// OperationStatus represents the status of a bulk operation. Statuses
// are monotonic: once completed or failed an operation never goes back.
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// ItemError is a per-item failure inside a batch. Item errors are data
// on the operation record, they are never raised past the batch.
type ItemError struct {
	TaskID int64  `json:"task_id"`
	Error  string `json:"error"`
}

// TaskSnapshot is a serializable capture of a task row, used in undo
// snapshots.
type TaskSnapshot struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Position    int64      `json:"position"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTaskSnapshot captures a task row.
func NewTaskSnapshot(t Task) TaskSnapshot {
	return TaskSnapshot{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		Position:    t.Position,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// Task restores the captured task row.
func (s TaskSnapshot) Task() Task {
	return Task{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		Title:       s.Title,
		Description: s.Description,
		Completed:   s.Completed,
		Priority:    s.Priority,
		DueDate:     s.DueDate,
		Position:    s.Position,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// TaskPosition is an (id, position) pair for reorder requests and
// reorder snapshots.
type TaskPosition struct {
	ID       int64 `json:"id"`
	Position int64 `json:"position"`
}

// Snapshot carries enough prior state to invert one bulk operation.
// Which field is populated depends on the operation kind: created ids
// for create/duplicate, full prior rows for delete, prior field values
// for update/status/priority, the prior position list for reorder.
type Snapshot struct {
	CreatedIDs []int64        `json:"created_ids,omitempty"`
	Tasks      []TaskSnapshot `json:"tasks,omitempty"`
	Positions  []TaskPosition `json:"positions,omitempty"`
}

// BulkOperation is the tracked state of one bulk request.
type BulkOperation struct {
	ID             string
	OwnerID        int64
	Kind           OperationKind
	Status         OperationStatus
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	ItemErrors     []ItemError
	ErrorMessage   string
	Snapshot       *Snapshot
	CanUndo        bool
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// ProgressPercentage returns processed/total as a percentage. Empty
// operations report 100.
func (o *BulkOperation) ProgressPercentage() float64 {
	if o.TotalItems == 0 {
		return 100.0
	}
	return float64(o.ProcessedItems) / float64(o.TotalItems) * 100.0
}

// IsCompleted returns true when the operation reached a terminal status.
func (o *BulkOperation) IsCompleted() bool {
	return o.Status == OperationStatusCompleted || o.Status == OperationStatusFailed
}

// Start moves a pending operation to running.
func (o *BulkOperation) Start(now time.Time) {
	if o.Status != OperationStatusPending {
		return
	}
	o.Status = OperationStatusRunning
	t := now
	o.StartedAt = &t
}

// Complete moves a non-terminal operation to completed.
func (o *BulkOperation) Complete(now time.Time) {
	if o.IsCompleted() {
		return
	}
	o.Status = OperationStatusCompleted
	t := now
	o.CompletedAt = &t
}

// Fail moves a non-terminal operation to failed with a message.
func (o *BulkOperation) Fail(now time.Time, msg string) {
	if o.IsCompleted() {
		return
	}
	o.Status = OperationStatusFailed
	o.ErrorMessage = msg
	t := now
	o.CompletedAt = &t
}
