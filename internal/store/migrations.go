package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS users (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email    TEXT NOT NULL DEFAULT '',
	group_id INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS task_lists (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL,
	slug     TEXT NOT NULL,
	group_id INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	UNIQUE (group_id, slug)
);

CREATE TABLE IF NOT EXISTS tasks (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	title          TEXT NOT NULL,
	task_list_id   INTEGER NOT NULL REFERENCES task_lists(id) ON DELETE CASCADE,
	created_by     INTEGER REFERENCES users(id) ON DELETE SET NULL,
	assigned_to    INTEGER REFERENCES users(id) ON DELETE SET NULL,
	priority       INTEGER NOT NULL DEFAULT 1,
	completed      INTEGER NOT NULL DEFAULT 0 CHECK(completed IN (0, 1)),
	completed_date DATETIME,
	note           TEXT NOT NULL DEFAULT '',
	created_date   DATETIME NOT NULL,
	due_date       DATETIME
);

CREATE TABLE IF NOT EXISTS comments (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id          INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	author_id        INTEGER REFERENCES users(id) ON DELETE CASCADE,
	email_from       TEXT NOT NULL DEFAULT '',
	email_message_id TEXT,
	body             TEXT NOT NULL DEFAULT '',
	date             DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_task_list_id ON tasks(task_list_id);
CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
CREATE INDEX IF NOT EXISTS idx_comments_task_id ON comments(task_id);
CREATE INDEX IF NOT EXISTS idx_comments_message_id ON comments(email_message_id);

-- An email appears at most once per task. Partial so UI comments
-- (NULL message id) can repeat freely.
CREATE UNIQUE INDEX IF NOT EXISTS idx_comments_task_message
	ON comments(task_id, email_message_id)
	WHERE email_message_id IS NOT NULL;

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
CREATE INDEX IF NOT EXISTS idx_tasks_list_completed ON tasks(task_list_id, completed);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
