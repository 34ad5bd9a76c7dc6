package model

import "time"

// Task is a unit of work tracked within a task list.
type Task struct {
	// ID is the database-assigned identifier. It is also the integer
	// encoded in outbound thread markers, so it must be stable for the
	// lifetime of the task.
	ID int64 `db:"id"`

	// Title is the human-readable summary of the task.
	Title string `db:"title"`

	// TaskListID references the owning list. A task belongs to exactly
	// one list for its lifetime.
	TaskListID int64 `db:"task_list_id"`

	// CreatedBy is the creating user, when known. Tasks created from
	// inbound mail may have no matching system user.
	CreatedBy *int64 `db:"created_by"`

	// AssignedTo is the assigned user, if any.
	AssignedTo *int64 `db:"assigned_to"`

	// Priority is a positive integer; lower means more urgent.
	Priority int `db:"priority"`

	// Completed marks the task as done. CompletedDate is stamped when
	// the flag is first set.
	Completed     bool       `db:"completed"`
	CompletedDate *time.Time `db:"completed_date"`

	// Note is the free-text body of the task.
	Note string `db:"note"`

	CreatedDate time.Time  `db:"created_date"`
	DueDate     *time.Time `db:"due_date"`
}

// Overdue reports whether the task's due date has passed.
func (t *Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && now.After(*t.DueDate) && !t.Completed
}
