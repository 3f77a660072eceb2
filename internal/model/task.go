package model

import (
	"fmt"
	"strings"
	"time"
)

// Priority represents the priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid returns true when the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank returns the ordering weight of the priority (high > medium > low).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Task represents a single todo task row.
type Task struct {
	ID          int64
	OwnerID     int64
	Title       string
	Description string
	Completed   bool
	Priority    Priority
	DueDate     *time.Time
	Position    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskInput is the payload for creating a task.
type TaskInput struct {
	Title       string
	Description string
	Completed   bool
	Priority    Priority
	DueDate     *time.Time
}

// Validate validates the task input, defaulting an empty priority
// to medium.
func (i *TaskInput) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("title is required: %w", ErrNotValid)
	}
	if i.Priority == "" {
		i.Priority = PriorityMedium
	}
	if !i.Priority.Valid() {
		return fmt.Errorf("priority %q is unknown: %w", i.Priority, ErrNotValid)
	}
	return nil
}

// TaskUpdate is a partial update of task fields. Nil fields are left
// untouched. ClearDueDate removes the due date regardless of DueDate.
type TaskUpdate struct {
	Title        *string
	Description  *string
	Completed    *bool
	Priority     *Priority
	DueDate      *time.Time
	ClearDueDate bool
}

// IsEmpty returns true when the update would change nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Completed == nil &&
		u.Priority == nil && u.DueDate == nil && !u.ClearDueDate
}

// Validate validates the partial update.
func (u TaskUpdate) Validate() error {
	if u.IsEmpty() {
		return fmt.Errorf("update data is empty: %w", ErrNotValid)
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return fmt.Errorf("title cannot be empty: %w", ErrNotValid)
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return fmt.Errorf("priority %q is unknown: %w", *u.Priority, ErrNotValid)
	}
	return nil
}

// Apply applies the update to a task.
func (u TaskUpdate) Apply(t *Task) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.ClearDueDate {
		t.DueDate = nil
	} else if u.DueDate != nil {
		d := *u.DueDate
		t.DueDate = &d
	}
}
