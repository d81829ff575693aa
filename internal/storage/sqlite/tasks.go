package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vellum-dms/vellum/internal/storage"
	"github.com/vellum-dms/vellum/internal/types"
)

const taskColumns = `id, document_id, type, assignee, state, due_at, created_at, updated_at`

func createTask(ctx context.Context, q dbtx, task *types.WorkflowTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if !task.Type.IsValid() {
		return fmt.Errorf("invalid task type: %s", task.Type)
	}
	if task.Assignee == "" {
		return fmt.Errorf("task requires an assignee")
	}
	if task.State == "" {
		task.State = types.TaskOpen
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (id, document_id, type, assignee, state, due_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.DocumentID, string(task.Type), task.Assignee,
		string(task.State), dbTimePtr(task.DueAt), dbTime(task.CreatedAt), dbTime(task.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// closeTasks marks every open task of the given type for a document done.
// Closing zero tasks is not an error: some transitions (reject paths) may
// race with escalation.
func closeTasks(ctx context.Context, q dbtx, docID string, taskType types.TaskType) error {
	_, err := q.ExecContext(ctx, `
		UPDATE tasks SET state = 'done', updated_at = ?
		WHERE document_id = ? AND type = ? AND state = 'open'
	`, dbTime(time.Now()), docID, string(taskType))
	if err != nil {
		return fmt.Errorf("failed to close tasks: %w", err)
	}
	return nil
}

func escalateTask(ctx context.Context, q dbtx, id string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE tasks SET state = 'escalated', updated_at = ?
		WHERE id = ? AND state = 'open'
	`, dbTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to escalate task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Already escalated or done; the escalation sweep re-checks state
		// so a no-op here keeps the sweep idempotent.
		if _, getErr := getTask(ctx, q, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("task %s not open: %w", id, storage.ErrConflict)
	}
	return nil
}

func getTask(ctx context.Context, q dbtx, id string) (*types.WorkflowTask, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return task, err
}

func listTasks(ctx context.Context, q dbtx, filter types.TaskFilter) ([]*types.WorkflowTask, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any

	if filter.State != nil {
		query += ` AND state = ?`
		args = append(args, string(*filter.State))
	}
	if filter.Type != nil {
		query += ` AND type = ?`
		args = append(args, string(*filter.Type))
	}
	if filter.DocumentID != "" {
		query += ` AND document_id = ?`
		args = append(args, filter.DocumentID)
	}
	if filter.Assignee != "" {
		query += ` AND assignee = ?`
		args = append(args, filter.Assignee)
	}
	if filter.DueBefore != nil {
		query += ` AND due_at IS NOT NULL AND due_at <= ?`
		args = append(args, dbTime(*filter.DueBefore))
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*types.WorkflowTask
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(scan func(...any) error) (*types.WorkflowTask, error) {
	var t types.WorkflowTask
	var typ, state string
	var dueAt, createdAt, updatedAt sql.NullString
	if err := scan(&t.ID, &t.DocumentID, &typ, &t.Assignee, &state,
		&dueAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Type = types.TaskType(typ)
	t.State = types.TaskState(state)
	var err error
	if t.DueAt, err = scanTimePtr(dueAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = scanTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = scanTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
