package bulk

import (
	"context"
	"fmt"
	"sort"

	"github.com/taskward/taskward/internal/model"
	"github.com/taskward/taskward/internal/storage"
)

// CreateRequest is a bulk task creation batch.
type CreateRequest struct {
	User  model.User
	Tasks []model.TaskInput
}

// CreateResult carries the operation record and the rows created by a
// bulk create or duplicate.
type CreateResult struct {
	Operation *model.BulkOperation
	Tasks     []model.Task
}

// Create creates all tasks of the batch in one transaction. Any
// malformed input rejects the whole batch upfront.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if len(req.Tasks) == 0 {
		return nil, fmt.Errorf("batch is empty: %w", model.ErrNotValid)
	}
	if len(req.Tasks) > MaxCreateBatch {
		return nil, fmt.Errorf("batch exceeds limit of %d items: %w", MaxCreateBatch, model.ErrNotValid)
	}
	for i := range req.Tasks {
		if err := req.Tasks[i].Validate(); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
	}

	op, err := s.begin(ctx, req.User.ID, model.OperationKindCreate, len(req.Tasks))
	if err != nil {
		return nil, err
	}

	created := make([]model.Task, 0, len(req.Tasks))
	err = s.tasks.Transact(ctx, func(r storage.TaskRepository) error {
		for _, in := range req.Tasks {
			task, err := r.CreateTask(ctx, model.Task{
				OwnerID:     req.User.ID,
				Title:       in.Title,
				Description: in.Description,
				Completed:   in.Completed,
				Priority:    in.Priority,
				DueDate:     in.DueDate,
			})
			if err != nil {
				return fmt.Errorf("could not create task: %w", err)
			}
			created = append(created, *task)
		}
		return nil
	})
	if err != nil {
		s.fail(ctx, op, err)
		return &CreateResult{Operation: op}, err
	}

	createdIDs := make([]int64, 0, len(created))
	for _, t := range created {
		createdIDs = append(createdIDs, t.ID)
	}

	op.ProcessedItems = len(created)
	op.Snapshot = &model.Snapshot{CreatedIDs: createdIDs}
	op.CanUndo = true
	if err := s.complete(ctx, op, createdIDs); err != nil {
		return nil, err
	}

	return &CreateResult{Operation: op, Tasks: created}, nil
}

// UpdateRequest applies the same field changes to every task of the
// batch.
type UpdateRequest struct {
	User    model.User
	TaskIDs []int64
	Update  model.TaskUpdate
}

// Update applies the field changes to all owned tasks of the batch,
// recording prior field values for undo.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*model.BulkOperation, error) {
	if err := req.Update.Validate(); err != nil {
		return nil, err
	}
	if req.Update.IsEmpty() {
		return nil, fmt.Errorf("no fields to update: %w", model.ErrNotValid)
	}

	return s.mutate(ctx, req.User, model.OperationKindUpdate, req.TaskIDs, func(r storage.TaskRepository, task model.Task) error {
		req.Update.Apply(&task)
		return r.UpdateTask(ctx, task)
	})
}

// StatusRequest sets the completion flag on every task of the batch.
type StatusRequest struct {
	User      model.User
	TaskIDs   []int64
	Completed bool
}

// Status sets the completion flag on all owned tasks of the batch.
func (s *Service) Status(ctx context.Context, req StatusRequest) (*model.BulkOperation, error) {
	return s.mutate(ctx, req.User, model.OperationKindStatus, req.TaskIDs, func(r storage.TaskRepository, task model.Task) error {
		task.Completed = req.Completed
		return r.UpdateTask(ctx, task)
	})
}

// PriorityRequest sets the priority on every task of the batch.
type PriorityRequest struct {
	User     model.User
	TaskIDs  []int64
	Priority model.Priority
}

// Priority sets the priority on all owned tasks of the batch.
func (s *Service) Priority(ctx context.Context, req PriorityRequest) (*model.BulkOperation, error) {
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q: %w", req.Priority, model.ErrNotValid)
	}

	return s.mutate(ctx, req.User, model.OperationKindPriority, req.TaskIDs, func(r storage.TaskRepository, task model.Task) error {
		task.Priority = req.Priority
		return r.UpdateTask(ctx, task)
	})
}

// DeleteRequest deletes every task of the batch.
type DeleteRequest struct {
	User    model.User
	TaskIDs []int64
}

// Delete removes all owned tasks of the batch, capturing full rows so
// undo can restore them with their original ids.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) (*model.BulkOperation, error) {
	return s.mutate(ctx, req.User, model.OperationKindDelete, req.TaskIDs, func(r storage.TaskRepository, task model.Task) error {
		return r.DeleteTask(ctx, task.ID)
	})
}

// mutate runs the shared batch loop for update-shaped operations: one
// transaction, per-item ownership checks, prior rows captured as the
// undo snapshot.
func (s *Service) mutate(ctx context.Context, user model.User, kind model.OperationKind, ids []int64, apply func(storage.TaskRepository, model.Task) error) (*model.BulkOperation, error) {
	if err := validateIDBatch(ids, MaxModifyBatch); err != nil {
		return nil, err
	}

	op, err := s.begin(ctx, user.ID, kind, len(ids))
	if err != nil {
		return nil, err
	}

	var (
		snapshot   model.Snapshot
		itemErrors []model.ItemError
		processed  int
	)
	err = s.tasks.Transact(ctx, func(r storage.TaskRepository) error {
		tasks, err := r.ListTasksByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("could not load tasks: %w", err)
		}
		byID := make(map[int64]model.Task, len(tasks))
		for _, t := range tasks {
			byID[t.ID] = t
		}

		for _, id := range ids {
			task, ok := byID[id]
			if !ok || (task.OwnerID != user.ID && !user.IsAdmin()) {
				itemErrors = append(itemErrors, model.ItemError{TaskID: id, Error: "task not found or not owned"})
				continue
			}

			snapshot.Tasks = append(snapshot.Tasks, model.NewTaskSnapshot(task))
			if err := apply(r, task); err != nil {
				return fmt.Errorf("could not apply change to task %d: %w", id, err)
			}
			processed++
			op.ProcessedItems = processed
			s.cacheOperation(ctx, op)
		}
		return nil
	})
	if err != nil {
		s.fail(ctx, op, err)
		return op, err
	}

	op.ProcessedItems = processed
	op.FailedItems = len(itemErrors)
	op.ItemErrors = itemErrors
	if processed > 0 {
		op.Snapshot = &snapshot
		op.CanUndo = true
	}
	if err := s.complete(ctx, op, ids); err != nil {
		return nil, err
	}
	return op, nil
}

// DuplicateRequest copies every task of the batch.
type DuplicateRequest struct {
	User    model.User
	TaskIDs []int64
	Suffix  string
}

// DefaultDuplicateSuffix is appended to copied task titles when the
// request does not name one.
const DefaultDuplicateSuffix = " (Copy)"

// Duplicate copies all owned tasks of the batch, appending the suffix
// to each title. Copies get fresh ids, positions and timestamps.
func (s *Service) Duplicate(ctx context.Context, req DuplicateRequest) (*CreateResult, error) {
	if err := validateIDBatch(req.TaskIDs, MaxCreateBatch); err != nil {
		return nil, err
	}
	suffix := req.Suffix
	if suffix == "" {
		suffix = DefaultDuplicateSuffix
	}

	op, err := s.begin(ctx, req.User.ID, model.OperationKindDuplicate, len(req.TaskIDs))
	if err != nil {
		return nil, err
	}

	var (
		created    []model.Task
		itemErrors []model.ItemError
	)
	err = s.tasks.Transact(ctx, func(r storage.TaskRepository) error {
		tasks, err := r.ListTasksByIDs(ctx, req.TaskIDs)
		if err != nil {
			return fmt.Errorf("could not load tasks: %w", err)
		}
		byID := make(map[int64]model.Task, len(tasks))
		for _, t := range tasks {
			byID[t.ID] = t
		}

		for _, id := range req.TaskIDs {
			src, ok := byID[id]
			if !ok || (src.OwnerID != req.User.ID && !req.User.IsAdmin()) {
				itemErrors = append(itemErrors, model.ItemError{TaskID: id, Error: "task not found or not owned"})
				continue
			}

			copied, err := r.CreateTask(ctx, model.Task{
				OwnerID:     src.OwnerID,
				Title:       src.Title + suffix,
				Description: src.Description,
				Completed:   src.Completed,
				Priority:    src.Priority,
				DueDate:     src.DueDate,
			})
			if err != nil {
				return fmt.Errorf("could not duplicate task %d: %w", id, err)
			}
			created = append(created, *copied)
			op.ProcessedItems = len(created)
			s.cacheOperation(ctx, op)
		}
		return nil
	})
	if err != nil {
		s.fail(ctx, op, err)
		return &CreateResult{Operation: op}, err
	}

	createdIDs := make([]int64, 0, len(created))
	for _, t := range created {
		createdIDs = append(createdIDs, t.ID)
	}

	op.ProcessedItems = len(created)
	op.FailedItems = len(itemErrors)
	op.ItemErrors = itemErrors
	if len(created) > 0 {
		op.Snapshot = &model.Snapshot{CreatedIDs: createdIDs}
		op.CanUndo = true
	}
	if err := s.complete(ctx, op, createdIDs); err != nil {
		return nil, err
	}

	return &CreateResult{Operation: op, Tasks: created}, nil
}

// ReorderRequest re-sequences the named tasks over the position slots
// they currently occupy.
type ReorderRequest struct {
	User      model.User
	Positions []model.TaskPosition
}

// Reorder moves the named tasks: the position slots currently held by
// the batch are reassigned following the requested relative order.
// Tasks outside the batch keep their positions.
func (s *Service) Reorder(ctx context.Context, req ReorderRequest) (*model.BulkOperation, error) {
	if len(req.Positions) == 0 {
		return nil, fmt.Errorf("batch is empty: %w", model.ErrNotValid)
	}
	if len(req.Positions) > MaxModifyBatch {
		return nil, fmt.Errorf("batch exceeds limit of %d items: %w", MaxModifyBatch, model.ErrNotValid)
	}
	seenID := make(map[int64]bool, len(req.Positions))
	seenPos := make(map[int64]bool, len(req.Positions))
	for _, p := range req.Positions {
		if seenID[p.ID] {
			return nil, fmt.Errorf("duplicate task id %d in batch: %w", p.ID, model.ErrNotValid)
		}
		if seenPos[p.Position] {
			return nil, fmt.Errorf("duplicate position %d in batch: %w", p.Position, model.ErrNotValid)
		}
		seenID[p.ID] = true
		seenPos[p.Position] = true
	}

	op, err := s.begin(ctx, req.User.ID, model.OperationKindReorder, len(req.Positions))
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(req.Positions))
	for _, p := range req.Positions {
		ids = append(ids, p.ID)
	}

	var (
		snapshot   model.Snapshot
		itemErrors []model.ItemError
		processed  int
	)
	err = s.tasks.Transact(ctx, func(r storage.TaskRepository) error {
		tasks, err := r.ListTasksByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("could not load tasks: %w", err)
		}
		byID := make(map[int64]model.Task, len(tasks))
		for _, t := range tasks {
			byID[t.ID] = t
		}

		// Valid members of the batch, ordered by requested position.
		valid := make([]model.TaskPosition, 0, len(req.Positions))
		for _, p := range req.Positions {
			task, ok := byID[p.ID]
			if !ok || (task.OwnerID != req.User.ID && !req.User.IsAdmin()) {
				itemErrors = append(itemErrors, model.ItemError{TaskID: p.ID, Error: "task not found or not owned"})
				continue
			}
			valid = append(valid, p)
			snapshot.Positions = append(snapshot.Positions, model.TaskPosition{ID: task.ID, Position: task.Position})
		}
		sort.Slice(valid, func(i, j int) bool { return valid[i].Position < valid[j].Position })

		// Slots are the positions the batch already holds, reassigned
		// ascending so tasks outside the batch are untouched.
		slots := make([]int64, 0, len(valid))
		for _, p := range snapshot.Positions {
			slots = append(slots, p.Position)
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

		for i, p := range valid {
			if err := r.UpdatePosition(ctx, p.ID, slots[i]); err != nil {
				return fmt.Errorf("could not move task %d: %w", p.ID, err)
			}
			processed++
			op.ProcessedItems = processed
			s.cacheOperation(ctx, op)
		}
		return nil
	})
	if err != nil {
		s.fail(ctx, op, err)
		return op, err
	}

	op.ProcessedItems = processed
	op.FailedItems = len(itemErrors)
	op.ItemErrors = itemErrors
	if processed > 0 {
		op.Snapshot = &snapshot
		op.CanUndo = true
	}
	if err := s.complete(ctx, op, ids); err != nil {
		return nil, err
	}
	return op, nil
}
