package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskward/taskward/internal/model"
	"github.com/taskward/taskward/internal/storage"
)

// UndoRequest reverses an operation. An empty OperationID targets the
// most recent undoable operation of the caller.
type UndoRequest struct {
	User        model.User
	OperationID string
}

// UndoResult reports what the reversal did.
type UndoResult struct {
	OperationID string
	Kind        model.OperationKind
	Processed   int
	Failed      int
	ItemErrors  []model.ItemError
}

// Undo reverses an operation from its stored snapshot. Each operation
// can be undone at most once. Items whose rows were changed out from
// under the snapshot (vanished tasks, reused ids) fail individually
// without aborting the rest.
func (s *Service) Undo(ctx context.Context, req UndoRequest) (*UndoResult, error) {
	op, err := s.resolveUndoTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	if !op.CanUndo || op.Snapshot == nil {
		return nil, fmt.Errorf("operation %s: %w", op.ID, model.ErrAlreadyUndone)
	}

	result := &UndoResult{OperationID: op.ID, Kind: op.Kind}
	var touched []int64
	err = s.tasks.Transact(ctx, func(r storage.TaskRepository) error {
		touched, err = s.applyInverse(ctx, r, op, result)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not undo operation %s: %w", op.ID, err)
	}

	if err := s.ops.ConsumeUndo(ctx, op.ID); err != nil {
		return nil, err
	}

	op.CanUndo = false
	s.cacheOperation(ctx, op)
	s.invalidateTaskCaches(ctx, op.OwnerID, touched)

	s.logger.Infof("Undid bulk %s operation %s: %d reversed, %d failed",
		op.Kind, op.ID, result.Processed, result.Failed)
	return result, nil
}

// resolveUndoTarget loads the requested operation or, with no id, the
// newest undoable entry of the caller's stack.
func (s *Service) resolveUndoTarget(ctx context.Context, req UndoRequest) (*model.BulkOperation, error) {
	if req.OperationID != "" {
		op, err := s.ops.GetOperation(ctx, req.OperationID)
		if err != nil {
			return nil, err
		}
		if op.OwnerID != req.User.ID && !req.User.IsAdmin() {
			return nil, fmt.Errorf("operation %s: %w", req.OperationID, model.ErrNotOwner)
		}
		return op, nil
	}

	ops, err := s.ops.ListUndoHistory(ctx, req.User.ID, s.undoDepth)
	if err != nil {
		return nil, fmt.Errorf("could not list undo history: %w", err)
	}
	for i := range ops {
		if ops[i].CanUndo && ops[i].Snapshot != nil {
			return &ops[i], nil
		}
	}
	return nil, fmt.Errorf("nothing to undo: %w", model.ErrNotFound)
}

// applyInverse performs the kind-specific reversal inside the caller's
// transaction and returns the ids whose cache entries must be dropped.
func (s *Service) applyInverse(ctx context.Context, r storage.TaskRepository, op *model.BulkOperation, result *UndoResult) ([]int64, error) {
	snap := op.Snapshot
	var touched []int64

	switch op.Kind {
	case model.OperationKindCreate, model.OperationKindDuplicate:
		// Inverse of create is delete of the created rows.
		for _, id := range snap.CreatedIDs {
			touched = append(touched, id)
			if err := r.DeleteTask(ctx, id); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					result.Failed++
					result.ItemErrors = append(result.ItemErrors, model.ItemError{TaskID: id, Error: "task already deleted"})
					continue
				}
				return nil, err
			}
			result.Processed++
		}

	case model.OperationKindDelete:
		// Inverse of delete restores the full rows with their
		// original ids.
		for _, ts := range snap.Tasks {
			touched = append(touched, ts.ID)
			if err := r.RestoreTask(ctx, ts.Task()); err != nil {
				if errors.Is(err, model.ErrAlreadyExists) {
					result.Failed++
					result.ItemErrors = append(result.ItemErrors, model.ItemError{TaskID: ts.ID, Error: "task id already in use"})
					continue
				}
				return nil, err
			}
			result.Processed++
		}

	case model.OperationKindUpdate, model.OperationKindStatus, model.OperationKindPriority:
		// Inverse restores the captured prior field values.
		for _, ts := range snap.Tasks {
			touched = append(touched, ts.ID)
			current, err := r.GetTask(ctx, ts.ID)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					result.Failed++
					result.ItemErrors = append(result.ItemErrors, model.ItemError{TaskID: ts.ID, Error: "task no longer exists"})
					continue
				}
				return nil, err
			}

			restored := *current
			restored.Title = ts.Title
			restored.Description = ts.Description
			restored.Completed = ts.Completed
			restored.Priority = ts.Priority
			restored.DueDate = ts.DueDate
			if err := r.UpdateTask(ctx, restored); err != nil {
				return nil, err
			}
			result.Processed++
		}

	case model.OperationKindReorder:
		// Inverse restores the captured prior positions.
		for _, p := range snap.Positions {
			touched = append(touched, p.ID)
			if err := r.UpdatePosition(ctx, p.ID, p.Position); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					result.Failed++
					result.ItemErrors = append(result.ItemErrors, model.ItemError{TaskID: p.ID, Error: "task no longer exists"})
					continue
				}
				return nil, err
			}
			result.Processed++
		}

	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}

	return touched, nil
}

// PurgeCompleted deletes terminal operation records older than the
// retention window. Meant to be run periodically.
func (s *Service) PurgeCompleted(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)
	n, err := s.ops.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("could not purge operation records: %w", err)
	}
	if n > 0 {
		s.logger.Infof("Purged %d operation records older than %s", n, retention)
	}
	return n, nil
}
