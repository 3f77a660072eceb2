package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskward/taskward/internal/cache"
	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
	"github.com/taskward/taskward/internal/storage"
)

// Batch size limits per operation kind.
const (
	MaxCreateBatch = 100
	MaxModifyBatch = 1000
)

// DefaultUndoDepth is the per-owner undo stack depth. Older entries
// silently lose undo capability.
const DefaultUndoDepth = 50

// ServiceConfig is the configuration for the bulk operation service.
type ServiceConfig struct {
	TaskRepository      storage.TaskRepository
	OperationRepository storage.OperationRepository
	Cache               cache.Cache
	UndoDepth           int
	Logger              log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.TaskRepository == nil {
		return fmt.Errorf("task repository is required")
	}
	if c.OperationRepository == nil {
		return fmt.Errorf("operation repository is required")
	}
	if c.Cache == nil {
		return fmt.Errorf("cache is required")
	}
	if c.UndoDepth <= 0 {
		c.UndoDepth = DefaultUndoDepth
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Bulk"})
	return nil
}

// Service executes bulk task operations: each batch is validated,
// applied as one transaction, recorded with a reversible snapshot and
// pushed onto the owner's undo stack.
//
// Failure policy: item-level validation failures (unknown or unowned
// ids) are recorded per item without aborting the batch; store-level
// transaction failures abort and roll back the whole batch.
type Service struct {
	tasks     storage.TaskRepository
	ops       storage.OperationRepository
	cache     cache.Cache
	undoDepth int
	logger    log.Logger
}

// NewService creates a new bulk operation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		tasks:     cfg.TaskRepository,
		ops:       cfg.OperationRepository,
		cache:     cfg.Cache,
		undoDepth: cfg.UndoDepth,
		logger:    cfg.Logger,
	}, nil
}

// begin creates and persists a pending operation record and moves it
// to running.
func (s *Service) begin(ctx context.Context, ownerID int64, kind model.OperationKind, total int) (*model.BulkOperation, error) {
	now := time.Now().UTC()
	op := &model.BulkOperation{
		ID:         ulid.Make().String(),
		OwnerID:    ownerID,
		Kind:       kind,
		Status:     model.OperationStatusPending,
		TotalItems: total,
		CreatedAt:  now,
	}

	if err := s.ops.CreateOperation(ctx, *op); err != nil {
		return nil, fmt.Errorf("could not create operation record: %w", err)
	}

	op.Start(now)
	s.cacheOperation(ctx, op)
	return op, nil
}

// complete finalizes a successful batch: persists the record, trims
// the owner's undo stack and invalidates the affected cache entries.
func (s *Service) complete(ctx context.Context, op *model.BulkOperation, touchedIDs []int64) error {
	op.Complete(time.Now().UTC())
	if err := s.ops.UpdateOperation(ctx, *op); err != nil {
		return fmt.Errorf("could not update operation record: %w", err)
	}

	trimmed, err := s.ops.TrimUndoStack(ctx, op.OwnerID, s.undoDepth)
	if err != nil {
		s.logger.Errorf("Could not trim undo stack for owner %d: %s", op.OwnerID, err)
	}
	for _, id := range trimmed {
		if err := s.cache.Delete(ctx, cache.OperationKey(id)); err != nil {
			s.logger.Warningf("Could not invalidate cached operation %s: %s", id, err)
		}
	}

	s.cacheOperation(ctx, op)
	s.invalidateTaskCaches(ctx, op.OwnerID, touchedIDs)

	s.logger.Infof("Completed bulk %s operation %s: %d processed, %d failed",
		op.Kind, op.ID, op.ProcessedItems, op.FailedItems)
	return nil
}

// fail finalizes a batch aborted by a store-level error. Nothing was
// applied, so no cache invalidation and no undo entry.
func (s *Service) fail(ctx context.Context, op *model.BulkOperation, cause error) {
	op.ProcessedItems = 0
	op.FailedItems = op.TotalItems
	op.ItemErrors = nil
	op.Snapshot = nil
	op.CanUndo = false
	op.Fail(time.Now().UTC(), cause.Error())

	if err := s.ops.UpdateOperation(ctx, *op); err != nil {
		s.logger.Errorf("Could not record failed operation %s: %s", op.ID, err)
	}
	s.cacheOperation(ctx, op)

	s.logger.Errorf("Bulk %s operation %s failed: %s", op.Kind, op.ID, cause)
}

// GetOperation returns the current progress snapshot of an operation,
// cache-aside over the operation store.
func (s *Service) GetOperation(ctx context.Context, user model.User, operationID string) (*model.BulkOperation, error) {
	if cached := s.cachedOperation(ctx, operationID); cached != nil {
		if cached.OwnerID != user.ID && !user.IsAdmin() {
			return nil, fmt.Errorf("operation %s: %w", operationID, model.ErrNotOwner)
		}
		return cached, nil
	}

	op, err := s.ops.GetOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op.OwnerID != user.ID && !user.IsAdmin() {
		return nil, fmt.Errorf("operation %s: %w", operationID, model.ErrNotOwner)
	}

	s.cacheOperation(ctx, op)
	return op, nil
}

// History returns the caller's undo stack, most recent first.
func (s *Service) History(ctx context.Context, user model.User) ([]model.BulkOperation, error) {
	ops, err := s.ops.ListUndoHistory(ctx, user.ID, s.undoDepth)
	if err != nil {
		return nil, fmt.Errorf("could not list undo history: %w", err)
	}
	return ops, nil
}

// cachedOperation is the serialized form of an operation record kept
// in the cache for status lookups. Snapshots stay in the store only.
type cachedOperation struct {
	ID             string                `json:"id"`
	OwnerID        int64                 `json:"owner_id"`
	Kind           model.OperationKind   `json:"kind"`
	Status         model.OperationStatus `json:"status"`
	TotalItems     int                   `json:"total_items"`
	ProcessedItems int                   `json:"processed_items"`
	FailedItems    int                   `json:"failed_items"`
	ItemErrors     []model.ItemError     `json:"item_errors,omitempty"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	CanUndo        bool                  `json:"can_undo"`
	CreatedAt      time.Time             `json:"created_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

func (s *Service) cacheOperation(ctx context.Context, op *model.BulkOperation) {
	payload, err := json.Marshal(cachedOperation{
		ID:             op.ID,
		OwnerID:        op.OwnerID,
		Kind:           op.Kind,
		Status:         op.Status,
		TotalItems:     op.TotalItems,
		ProcessedItems: op.ProcessedItems,
		FailedItems:    op.FailedItems,
		ItemErrors:     op.ItemErrors,
		ErrorMessage:   op.ErrorMessage,
		CanUndo:        op.CanUndo,
		CreatedAt:      op.CreatedAt,
		StartedAt:      op.StartedAt,
		CompletedAt:    op.CompletedAt,
	})
	if err != nil {
		s.logger.Errorf("Could not marshal operation for cache: %s", err)
		return
	}

	if err := s.cache.Set(ctx, cache.OperationKey(op.ID), payload, cache.OperationTTL); err != nil {
		s.logger.Warningf("Could not cache operation %s: %s", op.ID, err)
	}
}

func (s *Service) cachedOperation(ctx context.Context, operationID string) *model.BulkOperation {
	payload, err := s.cache.Get(ctx, cache.OperationKey(operationID))
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Warningf("Could not read cached operation %s: %s", operationID, err)
		}
		return nil
	}

	var c cachedOperation
	if err := json.Unmarshal(payload, &c); err != nil {
		s.logger.Warningf("Could not unmarshal cached operation %s: %s", operationID, err)
		return nil
	}

	return &model.BulkOperation{
		ID:             c.ID,
		OwnerID:        c.OwnerID,
		Kind:           c.Kind,
		Status:         c.Status,
		TotalItems:     c.TotalItems,
		ProcessedItems: c.ProcessedItems,
		FailedItems:    c.FailedItems,
		ItemErrors:     c.ItemErrors,
		ErrorMessage:   c.ErrorMessage,
		CanUndo:        c.CanUndo,
		CreatedAt:      c.CreatedAt,
		StartedAt:      c.StartedAt,
		CompletedAt:    c.CompletedAt,
	}
}

// invalidateTaskCaches drops the owner's list entry, the per-task
// entries and every derived search entry. Cache failures only degrade
// freshness windows, they never fail the request.
func (s *Service) invalidateTaskCaches(ctx context.Context, ownerID int64, taskIDs []int64) {
	if err := s.cache.Delete(ctx, cache.UserTasksKey(ownerID)); err != nil {
		s.logger.Warningf("Could not invalidate task list cache for owner %d: %s", ownerID, err)
	}
	for _, id := range taskIDs {
		if err := s.cache.Delete(ctx, cache.TaskKey(id)); err != nil {
			s.logger.Warningf("Could not invalidate task cache %d: %s", id, err)
		}
	}
	if err := s.cache.DeleteByPattern(ctx, cache.SearchKeyPrefix(ownerID)); err != nil {
		s.logger.Warningf("Could not invalidate search cache for owner %d: %s", ownerID, err)
	}
	// The all-owners scope caches under owner 0.
	if err := s.cache.DeleteByPattern(ctx, cache.SearchKeyPrefix(0)); err != nil {
		s.logger.Warningf("Could not invalidate admin search cache: %s", err)
	}
}

func validateIDBatch(ids []int64, limit int) error {
	if len(ids) == 0 {
		return fmt.Errorf("batch is empty: %w", model.ErrNotValid)
	}
	if len(ids) > limit {
		return fmt.Errorf("batch exceeds limit of %d items: %w", limit, model.ErrNotValid)
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("duplicate task id %d in batch: %w", id, model.ErrNotValid)
		}
		seen[id] = true
	}
	return nil
}
