package model

// Group is a tenant: a named collection of users owning task lists.
type Group struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// TaskList is a named collection of tasks owned by one group.
// The (group, slug) pair is unique.
type TaskList struct {
	ID      int64  `db:"id"`
	Name    string `db:"name"`
	Slug    string `db:"slug"`
	GroupID int64  `db:"group_id"`
}

// User is a registered account. Email is used to map inbound mail
// senders back to system users.
type User struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
	Email    string `db:"email"`
	GroupID  int64  `db:"group_id"`
}
