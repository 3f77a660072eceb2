package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskward/taskward/internal/model"
)

// CreateOperation creates a new bulk operation record.
func (r *Repository) CreateOperation(ctx context.Context, op model.BulkOperation) error {
	itemErrors, snapshot, err := marshalOperationJSON(op)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bulk_operations (
			id, owner_id, kind, status,
			total_items, processed_items, failed_items,
			item_errors, error_message, snapshot, can_undo,
			created_at, started_at, completed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.q.ExecContext(
		ctx,
		query,
		op.ID,
		op.OwnerID,
		op.Kind,
		op.Status,
		op.TotalItems,
		op.ProcessedItems,
		op.FailedItems,
		itemErrors,
		op.ErrorMessage,
		snapshot,
		op.CanUndo,
		op.CreatedAt.Unix(),
		unixPtr(op.StartedAt),
		unixPtr(op.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: bulk_operations.") {
			return fmt.Errorf("operation %s: %w", op.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert operation: %w", err)
	}

	r.logger.Debugf("Created operation in repository: %s", op.ID)
	return nil
}

// GetOperation retrieves a bulk operation by ID.
func (r *Repository) GetOperation(ctx context.Context, id string) (*model.BulkOperation, error) {
	row := r.q.QueryRowContext(ctx, operationSelect+` WHERE id = ?`, id)
	op, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query operation: %w", err)
	}
	return op, nil
}

// UpdateOperation updates an existing bulk operation record.
func (r *Repository) UpdateOperation(ctx context.Context, op model.BulkOperation) error {
	itemErrors, snapshot, err := marshalOperationJSON(op)
	if err != nil {
		return err
	}

	query := `
		UPDATE bulk_operations
		SET
			status = ?,
			total_items = ?,
			processed_items = ?,
			failed_items = ?,
			item_errors = ?,
			error_message = ?,
			snapshot = ?,
			can_undo = ?,
			started_at = ?,
			completed_at = ?
		WHERE id = ?
	`

	result, err := r.q.ExecContext(
		ctx,
		query,
		op.Status,
		op.TotalItems,
		op.ProcessedItems,
		op.FailedItems,
		itemErrors,
		op.ErrorMessage,
		snapshot,
		op.CanUndo,
		unixPtr(op.StartedAt),
		unixPtr(op.CompletedAt),
		op.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("operation %s: %w", op.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated operation in repository: %s", op.ID)
	return nil
}

// ConsumeUndo flips can_undo from true to false exactly once.
func (r *Repository) ConsumeUndo(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE bulk_operations SET can_undo = 0 WHERE id = ? AND can_undo = 1`, id)
	if err != nil {
		return fmt.Errorf("could not consume undo entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows != 0 {
		return nil
	}

	// Nothing updated: either unknown or already consumed.
	if _, err := r.GetOperation(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("operation %s: %w", id, model.ErrAlreadyUndone)
}

// ListUndoHistory returns the owner's operations, most recent first.
func (r *Repository) ListUndoHistory(ctx context.Context, ownerID int64, limit int) ([]model.BulkOperation, error) {
	rows, err := r.q.QueryContext(
		ctx,
		operationSelect+` WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query undo history: %w", err)
	}
	defer rows.Close()

	var ops []model.BulkOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		ops = append(ops, *op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ops, nil
}

// TrimUndoStack removes undo capability and snapshots from entries
// beyond the newest depth entries of the owner. The rows stay readable
// for status lookups. Returns the ids of the trimmed entries so their
// cached records can be dropped.
func (r *Repository) TrimUndoStack(ctx context.Context, ownerID int64, depth int) ([]string, error) {
	selectQuery := `
		SELECT id FROM bulk_operations
		WHERE owner_id = ? AND can_undo = 1 AND id NOT IN (
			SELECT id FROM bulk_operations
			WHERE owner_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`

	rows, err := r.q.QueryContext(ctx, selectQuery, ownerID, ownerID, depth)
	if err != nil {
		return nil, fmt.Errorf("could not select trimmable entries: %w", err)
	}
	defer rows.Close()

	var trimmed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("could not scan operation id: %w", err)
		}
		trimmed = append(trimmed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trimmable entries: %w", err)
	}
	if len(trimmed) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(trimmed)), ",")
	args := make([]any, 0, len(trimmed))
	for _, id := range trimmed {
		args = append(args, id)
	}
	updateQuery := `UPDATE bulk_operations SET can_undo = 0, snapshot = NULL WHERE id IN (` + placeholders + `)`
	if _, err := r.q.ExecContext(ctx, updateQuery, args...); err != nil {
		return nil, fmt.Errorf("could not trim undo stack: %w", err)
	}
	return trimmed, nil
}

// DeleteCompletedBefore removes terminal operations completed before
// the cutoff.
func (r *Repository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.q.ExecContext(
		ctx,
		`DELETE FROM bulk_operations WHERE completed_at IS NOT NULL AND completed_at < ?`,
		cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("could not delete expired operations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not get rows affected: %w", err)
	}
	return int(rows), nil
}

const operationSelect = `
	SELECT
		id, owner_id, kind, status,
		total_items, processed_items, failed_items,
		item_errors, error_message, snapshot, can_undo,
		created_at, started_at, completed_at
	FROM bulk_operations
`

func scanOperation(s scanner) (*model.BulkOperation, error) {
	var op model.BulkOperation
	var itemErrors string
	var snapshot sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := s.Scan(
		&op.ID,
		&op.OwnerID,
		&op.Kind,
		&op.Status,
		&op.TotalItems,
		&op.ProcessedItems,
		&op.FailedItems,
		&itemErrors,
		&op.ErrorMessage,
		&snapshot,
		&op.CanUndo,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(itemErrors), &op.ItemErrors); err != nil {
		return nil, fmt.Errorf("could not unmarshal item errors: %w", err)
	}
	if snapshot.Valid {
		op.Snapshot = &model.Snapshot{}
		if err := json.Unmarshal([]byte(snapshot.String), op.Snapshot); err != nil {
			return nil, fmt.Errorf("could not unmarshal snapshot: %w", err)
		}
	}

	op.CreatedAt = timeFromUnix(createdAt)
	if startedAt.Valid {
		t := timeFromUnix(startedAt.Int64)
		op.StartedAt = &t
	}
	if completedAt.Valid {
		t := timeFromUnix(completedAt.Int64)
		op.CompletedAt = &t
	}

	return &op, nil
}

func marshalOperationJSON(op model.BulkOperation) (itemErrors string, snapshot *string, err error) {
	errsList := op.ItemErrors
	if errsList == nil {
		errsList = []model.ItemError{}
	}
	raw, err := json.Marshal(errsList)
	if err != nil {
		return "", nil, fmt.Errorf("could not marshal item errors: %w", err)
	}

	if op.Snapshot != nil {
		rawSnap, err := json.Marshal(op.Snapshot)
		if err != nil {
			return "", nil, fmt.Errorf("could not marshal snapshot: %w", err)
		}
		s := string(rawSnap)
		snapshot = &s
	}

	return string(raw), snapshot, nil
}
