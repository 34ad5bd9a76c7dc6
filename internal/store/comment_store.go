package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hqnguyen/todotrack/internal/model"
)

// CreateComment inserts a new comment and fills in its assigned ID.
func (s *SQLiteStore) CreateComment(ctx context.Context, c *model.Comment) error {
	if c.Date.IsZero() {
		c.Date = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (task_id, author_id, email_from, email_message_id, body, date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.TaskID, c.AuthorID, c.EmailFrom, c.EmailMessageID, c.Body, c.Date,
	)
	if err != nil {
		return fmt.Errorf("creating comment on task %d: %w", c.TaskID, err)
	}

	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading comment id: %w", err)
	}

	return nil
}

// GetComments retrieves all comments on a task in thread order.
func (s *SQLiteStore) GetComments(ctx context.Context, taskID int64) ([]model.Comment, error) {
	var comments []model.Comment
	err := s.db.SelectContext(ctx, &comments,
		"SELECT * FROM comments WHERE task_id = ? ORDER BY date ASC, id ASC", taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying comments for task %d: %w", taskID, err)
	}
	return comments, nil
}

// AttachThreadComment performs the reconcile write: optionally create
// the target task, then insert the comment keyed by
// (task, email_message_id), all in one transaction. Redelivery of a
// message the task already has is absorbed by the unique index and
// reported as commentCreated=false.
//
// This is the one mandatory concurrency-control point in the system:
// two workers racing on the same redelivered message must not produce
// two comments, so the existence check and insert share a commit
// boundary.
func (s *SQLiteStore) AttachThreadComment(
	ctx context.Context,
	task *model.Task,
	comment *model.Comment,
) (taskCreated, commentCreated bool, err error) {
	if comment.EmailMessageID == nil || *comment.EmailMessageID == "" {
		return false, false, fmt.Errorf("attaching thread comment: missing email message id")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("beginning reconcile transaction: %w", err)
	}
	defer tx.Rollback()

	if task.ID == 0 {
		if task.CreatedDate.IsZero() {
			task.CreatedDate = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (
				title, task_list_id, created_by, assigned_to,
				priority, completed, completed_date, note,
				created_date, due_date
			) VALUES (?, ?, ?, ?, ?, 0, NULL, ?, ?, ?)`,
			task.Title, task.TaskListID, task.CreatedBy, task.AssignedTo,
			task.Priority, task.Note, task.CreatedDate, task.DueDate,
		)
		if err != nil {
			return false, false, fmt.Errorf("creating task %q: %w", task.Title, err)
		}
		task.ID, err = res.LastInsertId()
		if err != nil {
			return false, false, fmt.Errorf("reading task id: %w", err)
		}
		taskCreated = true
	}

	if comment.Date.IsZero() {
		comment.Date = time.Now().UTC()
	}
	comment.TaskID = task.ID

	res, err := tx.ExecContext(ctx, `
		INSERT INTO comments (task_id, author_id, email_from, email_message_id, body, date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id, email_message_id) WHERE email_message_id IS NOT NULL
		DO NOTHING`,
		comment.TaskID, comment.AuthorID, comment.EmailFrom,
		comment.EmailMessageID, comment.Body, comment.Date,
	)
	if err != nil {
		return false, false, fmt.Errorf("inserting comment on task %d: %w", task.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, false, fmt.Errorf("inserting comment on task %d: %w", task.ID, err)
	}
	commentCreated = n > 0

	if commentCreated {
		if comment.ID, err = res.LastInsertId(); err != nil {
			return false, false, fmt.Errorf("reading comment id: %w", err)
		}
	} else {
		// Duplicate delivery: surface the existing comment.
		err = tx.GetContext(ctx, comment, `
			SELECT * FROM comments WHERE task_id = ? AND email_message_id = ?`,
			task.ID, comment.EmailMessageID,
		)
		if err != nil {
			return false, false, fmt.Errorf("reading existing comment on task %d: %w", task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("committing reconcile transaction: %w", err)
	}

	return taskCreated, commentCreated, nil
}

// ThreadParticipants returns the deduplicated email addresses of
// registered comment authors plus the task creator.
func (s *SQLiteStore) ThreadParticipants(ctx context.Context, taskID int64) ([]string, error) {
	var emails []string
	err := s.db.SelectContext(ctx, &emails, `
		SELECT DISTINCT u.email FROM users u
		JOIN comments c ON c.author_id = u.id
		WHERE c.task_id = ? AND u.email != ''
		UNION
		SELECT u.email FROM users u
		JOIN tasks t ON t.created_by = u.id
		WHERE t.id = ? AND u.email != ''`,
		taskID, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying thread participants for task %d: %w", taskID, err)
	}
	return emails, nil
}
