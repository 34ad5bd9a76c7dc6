package model

import "time"

// Comment is a threaded note on a task, either user-authored or derived
// from an inbound email.
type Comment struct {
	ID     int64 `db:"id"`
	TaskID int64 `db:"task_id"`

	// AuthorID is the commenting user. It is nil for mail-derived
	// comments whose sender does not map to a system user; EmailFrom
	// carries the sender address in that case.
	AuthorID  *int64 `db:"author_id"`
	EmailFrom string `db:"email_from"`

	// EmailMessageID is the Message-ID header of the originating email.
	// It is nil for comments created through the UI. The pair
	// (TaskID, EmailMessageID) is unique when non-nil, which is what
	// makes mail redelivery idempotent.
	EmailMessageID *string `db:"email_message_id"`

	Body string    `db:"body"`
	Date time.Time `db:"date"`
}

// AuthorText returns the display name for the comment author: the
// user id reference when present, otherwise the raw sender address.
func (c *Comment) AuthorText(username string) string {
	if c.AuthorID != nil && username != "" {
		return username
	}
	return c.EmailFrom
}
