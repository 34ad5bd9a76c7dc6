package store

import (
	"context"
	"errors"

	"github.com/hqnguyen/todotrack/internal/model"
)

// ErrNotFound is returned when a query matches no rows.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err (or any error in its chain) is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// TaskFilter controls filtering, sorting, and pagination for task queries.
type TaskFilter struct {
	TaskListID *int64
	Completed  *bool
	AssignedTo *int64
	Query      *string // matches title and note
	SortBy     string  // "priority", "created_date", "due_date", "title"
	SortDesc   bool
	Limit      int
	Offset     int
}

// Store defines the persistence interface shared by the mail workers
// and the web request layer.
type Store interface {
	// === Groups, users, lists ===

	CreateGroup(ctx context.Context, name string) (model.Group, error)
	GetGroupByName(ctx context.Context, name string) (*model.Group, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	CreateTaskList(ctx context.Context, l model.TaskList) (model.TaskList, error)
	GetTaskList(ctx context.Context, group, slug string) (*model.TaskList, error)
	GetTaskListByName(ctx context.Context, groupID int64, name string) (*model.TaskList, error)
	DeleteTaskList(ctx context.Context, id int64) error

	// === Tasks ===

	CreateTask(ctx context.Context, t *model.Task) error
	UpdateTask(ctx context.Context, t model.Task) error
	UpsertTask(ctx context.Context, t *model.Task) (created bool, err error)
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	GetListTask(ctx context.Context, listID, taskID int64) (*model.Task, error)
	GetTasks(ctx context.Context, f TaskFilter) ([]model.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	ToggleTaskCompleted(ctx context.Context, id int64) (bool, error)

	// BestTaskByCommentRefs returns the task in the list owning the
	// highest count of comments whose email_message_id appears in
	// messageIDs. Ties resolve to the lowest task id. ErrNotFound when
	// no task matches.
	BestTaskByCommentRefs(ctx context.Context, listID int64, messageIDs []string) (*model.Task, error)

	// MergeTasks moves all comments from source onto target and
	// deletes source, in one transaction.
	MergeTasks(ctx context.Context, sourceID, targetID int64) error

	// === Comments ===

	CreateComment(ctx context.Context, c *model.Comment) error
	GetComments(ctx context.Context, taskID int64) ([]model.Comment, error)

	// AttachThreadComment inserts comment on task as a single atomic
	// unit. When task.ID is zero the task is created first inside the
	// same transaction. The comment insert is keyed by
	// (task, email_message_id): a redelivered message is a no-op and
	// commentCreated is false.
	AttachThreadComment(ctx context.Context, task *model.Task, comment *model.Comment) (taskCreated, commentCreated bool, err error)

	// ThreadParticipants returns the deduplicated email addresses of
	// everyone on a task's thread: registered comment authors plus the
	// task creator.
	ThreadParticipants(ctx context.Context, taskID int64) ([]string, error)

	Close() error
}
