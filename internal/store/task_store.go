package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hqnguyen/todotrack/internal/model"
)

// CreateTask inserts a new task and fills in its assigned ID.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *model.Task) error {
	if t.CreatedDate.IsZero() {
		t.CreatedDate = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			title, task_list_id, created_by, assigned_to,
			priority, completed, completed_date, note,
			created_date, due_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.TaskListID, t.CreatedBy, t.AssignedTo,
		t.Priority, boolToInt(t.Completed), t.CompletedDate, t.Note,
		t.CreatedDate, t.DueDate,
	)
	if err != nil {
		return fmt.Errorf("creating task %q: %w", t.Title, err)
	}

	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading task id: %w", err)
	}

	return nil
}

// UpdateTask rewrites all mutable fields of a task. Marking a task
// complete stamps its completed_date if not already set.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t model.Task) error {
	if t.Completed && t.CompletedDate == nil {
		now := time.Now().UTC()
		t.CompletedDate = &now
	}
	if !t.Completed {
		t.CompletedDate = nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, created_by = ?, assigned_to = ?,
			priority = ?, completed = ?, completed_date = ?,
			note = ?, due_date = ?
		WHERE id = ?`,
		t.Title, t.CreatedBy, t.AssignedTo,
		t.Priority, boolToInt(t.Completed), t.CompletedDate,
		t.Note, t.DueDate, t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task %d: %w", t.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating task %d: %w", t.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// UpsertTask updates the task matching (created_by, task_list, title)
// or creates it when absent. Used by the CSV importer. Reports whether
// a new row was created.
func (s *SQLiteStore) UpsertTask(ctx context.Context, t *model.Task) (bool, error) {
	var existing model.Task
	err := s.db.GetContext(ctx, &existing, `
		SELECT * FROM tasks
		WHERE task_list_id = ? AND title = ? AND created_by IS ?
		ORDER BY id LIMIT 1`,
		t.TaskListID, t.Title, t.CreatedBy,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.CreateTask(ctx, t); err != nil {
			return false, err
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("looking up task %q: %w", t.Title, err)
	}

	t.ID = existing.ID
	if t.CreatedDate.IsZero() {
		t.CreatedDate = existing.CreatedDate
	}
	if err := s.UpdateTask(ctx, *t); err != nil {
		return false, err
	}
	return false, nil
}

// GetTask retrieves a single task by id.
func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	var t model.Task
	err := s.db.GetContext(ctx, &t, "SELECT * FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %d: %w", id, err)
	}
	return &t, nil
}

// GetListTask retrieves a task by id scoped to a task list. A thread
// marker naming a task from another list does not resolve.
func (s *SQLiteStore) GetListTask(ctx context.Context, listID, taskID int64) (*model.Task, error) {
	var t model.Task
	err := s.db.GetContext(ctx, &t,
		"SELECT * FROM tasks WHERE task_list_id = ? AND id = ?", listID, taskID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %d in list %d: %w", taskID, listID, err)
	}
	return &t, nil
}

// GetTasks retrieves tasks matching the provided filter options.
func (s *SQLiteStore) GetTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	var conditions []string
	var args []interface{}

	if f.TaskListID != nil {
		conditions = append(conditions, "task_list_id = ?")
		args = append(args, *f.TaskListID)
	}
	if f.Completed != nil {
		conditions = append(conditions, "completed = ?")
		args = append(args, boolToInt(*f.Completed))
	}
	if f.AssignedTo != nil {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, *f.AssignedTo)
	}
	if f.Query != nil && *f.Query != "" {
		conditions = append(conditions, "(title LIKE ? OR note LIKE ?)")
		q := "%" + *f.Query + "%"
		args = append(args, q, q)
	}

	query := "SELECT * FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	sortBy := "priority"
	if f.SortBy != "" {
		allowedSorts := map[string]bool{
			"title":        true,
			"priority":     true,
			"created_date": true,
			"due_date":     true,
		}
		if allowedSorts[f.SortBy] {
			sortBy = f.SortBy
		}
	}

	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC", sortBy, direction)

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	var tasks []model.Task
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}

	return tasks, nil
}

// DeleteTask removes a task; its comments cascade.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting task %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleTaskCompleted flips a task's completed flag, stamping or
// clearing completed_date, and returns the new state.
func (s *SQLiteStore) ToggleTaskCompleted(ctx context.Context, id int64) (bool, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return false, err
	}

	t.Completed = !t.Completed
	if err := s.UpdateTask(ctx, *t); err != nil {
		return false, err
	}

	return t.Completed, nil
}

// BestTaskByCommentRefs finds the most relevant task to attach a mail
// comment to: among tasks in the list, the one owning the most comments
// whose email_message_id appears in messageIDs. Equal counts resolve to
// the lowest task id so reprocessing is deterministic.
func (s *SQLiteStore) BestTaskByCommentRefs(
	ctx context.Context,
	listID int64,
	messageIDs []string,
) (*model.Task, error) {
	if len(messageIDs) == 0 {
		return nil, ErrNotFound
	}

	query, args, err := sqlx.In(`
		SELECT t.* FROM tasks t
		JOIN comments c ON c.task_id = t.id
		WHERE t.task_list_id = ? AND c.email_message_id IN (?)
		GROUP BY t.id
		ORDER BY COUNT(c.id) DESC, t.id ASC
		LIMIT 1`,
		listID, messageIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("building ranking query: %w", err)
	}

	var t model.Task
	err = s.db.GetContext(ctx, &t, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ranking tasks by comment refs: %w", err)
	}

	return &t, nil
}

// MergeTasks moves every comment from source onto target and deletes
// source. Runs in one transaction so a concurrent comment insert cannot
// be lost to the cascade delete.
func (s *SQLiteStore) MergeTasks(ctx context.Context, sourceID, targetID int64) error {
	if sourceID == targetID {
		return fmt.Errorf("merging task %d: can't merge a task with itself", sourceID)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning merge transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE comments SET task_id = ? WHERE task_id = ?", targetID, sourceID,
	); err != nil {
		return fmt.Errorf("moving comments from task %d to %d: %w", sourceID, targetID, err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", sourceID)
	if err != nil {
		return fmt.Errorf("deleting merged task %d: %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting merged task %d: %w", sourceID, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
