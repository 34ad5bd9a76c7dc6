package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/hqnguyen/todotrack/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// The store is shared by the worker loop and the web layer; WAL
	// keeps readers from blocking the reconcile transaction.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// CreateGroup inserts a new group and returns it with its assigned ID.
func (s *SQLiteStore) CreateGroup(ctx context.Context, name string) (model.Group, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO groups (name) VALUES (?)", name)
	if err != nil {
		return model.Group{}, fmt.Errorf("creating group %q: %w", name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return model.Group{}, fmt.Errorf("reading group id: %w", err)
	}

	return model.Group{ID: id, Name: name}, nil
}

// GetGroupByName retrieves a group by its unique name.
func (s *SQLiteStore) GetGroupByName(ctx context.Context, name string) (*model.Group, error) {
	var g model.Group
	err := s.db.GetContext(ctx, &g, "SELECT * FROM groups WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting group %q: %w", name, err)
	}
	return &g, nil
}

// CreateUser inserts a new user and returns it with its assigned ID.
func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, group_id) VALUES (?, ?, ?)",
		u.Username, u.Email, u.GroupID,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("creating user %q: %w", u.Username, err)
	}

	u.ID, err = res.LastInsertId()
	if err != nil {
		return model.User{}, fmt.Errorf("reading user id: %w", err)
	}

	return u, nil
}

// GetUserByEmail retrieves the user registered under the given email
// address. Returns ErrNotFound when no user matches.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE email = ? ORDER BY id LIMIT 1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email %q: %w", email, err)
	}
	return &u, nil
}

// GetUserByUsername retrieves a user by its unique username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE username = ?", username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", username, err)
	}
	return &u, nil
}

// GetUserByID retrieves a single user by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return &u, nil
}

// CreateTaskList inserts a new task list and returns it with its
// assigned ID. The (group, slug) pair is unique.
func (s *SQLiteStore) CreateTaskList(ctx context.Context, l model.TaskList) (model.TaskList, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO task_lists (name, slug, group_id) VALUES (?, ?, ?)",
		l.Name, l.Slug, l.GroupID,
	)
	if err != nil {
		return model.TaskList{}, fmt.Errorf("creating task list %q: %w", l.Slug, err)
	}

	l.ID, err = res.LastInsertId()
	if err != nil {
		return model.TaskList{}, fmt.Errorf("reading task list id: %w", err)
	}

	return l, nil
}

// GetTaskList retrieves a task list by its group name and slug.
func (s *SQLiteStore) GetTaskList(ctx context.Context, group, slug string) (*model.TaskList, error) {
	var l model.TaskList
	err := s.db.GetContext(ctx, &l, `
		SELECT tl.* FROM task_lists tl
		JOIN groups g ON g.id = tl.group_id
		WHERE g.name = ? AND tl.slug = ?`,
		group, slug,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task list %s/%s: %w", group, slug, err)
	}
	return &l, nil
}

// GetTaskListByName retrieves a task list by its display name within a
// group. Used by the CSV importer, whose rows carry list names rather
// than slugs.
func (s *SQLiteStore) GetTaskListByName(ctx context.Context, groupID int64, name string) (*model.TaskList, error) {
	var l model.TaskList
	err := s.db.GetContext(ctx, &l,
		"SELECT * FROM task_lists WHERE group_id = ? AND name = ?", groupID, name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task list %q in group %d: %w", name, groupID, err)
	}
	return &l, nil
}

// DeleteTaskList removes a task list; its tasks and their comments
// cascade.
func (s *SQLiteStore) DeleteTaskList(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM task_lists WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting task list %d: %w", id, err)
	}
	return nil
}
