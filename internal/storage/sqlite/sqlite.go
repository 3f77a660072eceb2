package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
	"github.com/taskward/taskward/internal/storage"
	"github.com/taskward/taskward/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is a SQLite implementation of storage.TaskRepository and
// storage.OperationRepository.
type Repository struct {
	db     *sql.DB
	q      querier
	inTx   bool
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, q: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("could not ping database: %w", err)
	}
	return nil
}

// Transact runs fn with a repository bound to a single transaction.
// Nested calls reuse the surrounding transaction.
func (r *Repository) Transact(ctx context.Context, fn func(storage.TaskRepository) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	txRepo := &Repository{db: r.db, q: tx, inTx: true, logger: r.logger}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Errorf("could not roll back transaction: %s", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// CreateTask inserts a new task, assigning its identifier, position
// and timestamps.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) (*model.Task, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO tasks (owner_id, title, description, completed, priority, due_date, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM tasks WHERE owner_id = ?), ?, ?)
	`

	result, err := r.q.ExecContext(
		ctx,
		query,
		t.OwnerID,
		t.Title,
		t.Description,
		t.Completed,
		t.Priority,
		unixPtr(t.DueDate),
		t.OwnerID,
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not insert task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("could not get inserted task id: %w", err)
	}

	created, err := r.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not read back created task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %d", id)
	return created, nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	row := r.q.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}
	return &task, nil
}

// ListTasksByIDs returns the existing tasks among the given IDs.
func (r *Repository) ListTasksByIDs(ctx context.Context, ids []int64) ([]model.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.q.QueryContext(ctx, taskSelect+` WHERE id IN (`+placeholders+`) ORDER BY position`, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// UpdateTask updates an existing task and bumps its updated_at.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	query := `
		UPDATE tasks
		SET title = ?, description = ?, completed = ?, priority = ?, due_date = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.q.ExecContext(
		ctx,
		query,
		t.Title,
		t.Description,
		t.Completed,
		t.Priority,
		unixPtr(t.DueDate),
		time.Now().UTC().Unix(),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %d: %w", t.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated task in repository: %d", t.ID)
	return nil
}

// DeleteTask deletes a task.
func (r *Repository) DeleteTask(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted task from repository: %d", id)
	return nil
}

// RestoreTask re-inserts a task row with its original identifier,
// position and timestamps.
func (r *Repository) RestoreTask(ctx context.Context, t model.Task) error {
	query := `
		INSERT INTO tasks (id, owner_id, title, description, completed, priority, due_date, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(
		ctx,
		query,
		t.ID,
		t.OwnerID,
		t.Title,
		t.Description,
		t.Completed,
		t.Priority,
		unixPtr(t.DueDate),
		t.Position,
		t.CreatedAt.Unix(),
		t.UpdatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: tasks.") {
			return fmt.Errorf("task %d: %w", t.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not restore task: %w", err)
	}

	r.logger.Debugf("Restored task in repository: %d", t.ID)
	return nil
}

// UpdatePosition moves a task to a new position without touching
// updated_at, so reordering does not look like a content change.
func (r *Repository) UpdatePosition(ctx context.Context, id int64, position int64) error {
	result, err := r.q.ExecContext(ctx, `UPDATE tasks SET position = ? WHERE id = ?`, position, id)
	if err != nil {
		return fmt.Errorf("could not update task position: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}
	return nil
}

const taskSelect = `
	SELECT id, owner_id, title, description, completed, priority, due_date, position, created_at, updated_at
	FROM tasks
`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (model.Task, error) {
	var t model.Task
	var dueDate sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Title,
		&t.Description,
		&t.Completed,
		&t.Priority,
		&dueDate,
		&t.Position,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	if dueDate.Valid {
		d := timeFromUnix(dueDate.Int64)
		t.DueDate = &d
	}
	t.CreatedAt = timeFromUnix(createdAt)
	t.UpdatedAt = timeFromUnix(updatedAt)

	return t, nil
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func timeFromUnix(unix int64) time.Time { return time.Unix(unix, 0).UTC() }
