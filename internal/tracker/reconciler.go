package tracker

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hqnguyen/todotrack/internal/mail/message"
	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/store"
)

// ReconcilerConfig carries the per-tracker settings that shape new
// tasks created from mail.
type ReconcilerConfig struct {
	// Priority assigned to tasks created from mail.
	Priority int

	// TitleFormat is applied to new task titles; {subject} and
	// {author} placeholders are substituted from the message.
	TitleFormat string

	// MatchUsers enables mapping the sender address to a registered
	// user for created_by.
	MatchUsers bool
}

// Outcome describes what one reconciled message did to the store.
type Outcome struct {
	Task        model.Task
	TaskCreated bool

	// CommentCreated is false on duplicate delivery: the comment for
	// this (task, message-id) pair already existed.
	CommentCreated bool
	Comment        model.Comment
}

// Reconciler decides whether an inbound message attaches to an existing
// task or creates a new one, and performs the write atomically.
type Reconciler struct {
	store store.Store
	cfg   ReconcilerConfig
	log   *zap.SugaredLogger
}

// NewReconciler creates a Reconciler writing into the given store.
func NewReconciler(st store.Store, cfg ReconcilerConfig, log *zap.SugaredLogger) *Reconciler {
	if cfg.Priority == 0 {
		cfg.Priority = 1
	}
	if cfg.TitleFormat == "" {
		cfg.TitleFormat = "{subject}"
	}
	return &Reconciler{store: st, cfg: cfg, log: log}
}

// Reconcile maps msg onto a task in list: the resolved thread-marker
// task when present, else the list task owning the most comments
// referenced by the message, else a newly created task. Exactly one
// comment keyed by (task, message-id) results; redelivery is a no-op.
// Task creation and comment insertion happen in one transaction.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	list model.TaskList,
	msg *message.Message,
	res Resolution,
) (Outcome, error) {
	target := res.MatchedTask

	if target == nil && len(res.ExternalIDs) > 0 {
		best, err := r.store.BestTaskByCommentRefs(ctx, list.ID, res.ExternalIDs)
		if err != nil && !store.IsNotFound(err) {
			return Outcome{}, fmt.Errorf("ranking candidate tasks: %w", err)
		}
		target = best
	}

	var sender *model.User
	if r.cfg.MatchUsers && msg.FromAddress != "" {
		user, err := r.store.GetUserByEmail(ctx, msg.FromAddress)
		if err != nil && !store.IsNotFound(err) {
			return Outcome{}, fmt.Errorf("matching sender %s: %w", msg.FromAddress, err)
		}
		sender = user
	}

	var task model.Task
	if target != nil {
		task = *target
	} else {
		task = model.Task{
			Title:      r.formatTitle(msg),
			TaskListID: list.ID,
			Priority:   r.cfg.Priority,
		}
		if sender != nil {
			task.CreatedBy = &sender.ID
		}
	}

	messageID := msg.MessageID
	comment := model.Comment{
		EmailFrom:      msg.From,
		EmailMessageID: &messageID,
		Body:           msg.Body,
	}
	if sender != nil {
		comment.AuthorID = &sender.ID
	}

	taskCreated, commentCreated, err := r.store.AttachThreadComment(ctx, &task, &comment)
	if err != nil {
		return Outcome{}, fmt.Errorf("attaching comment %s: %w", msg.MessageID, err)
	}

	r.log.Infow("using task",
		"task_id", task.ID,
		"title", task.Title,
		"created", taskCreated,
	)
	if !commentCreated {
		r.log.Infow("duplicate delivery absorbed",
			"task_id", task.ID,
			"message_id", msg.MessageID,
		)
	}

	return Outcome{
		Task:           task,
		TaskCreated:    taskCreated,
		CommentCreated: commentCreated,
		Comment:        comment,
	}, nil
}

// formatTitle applies the configured title format to the message.
func (r *Reconciler) formatTitle(msg *message.Message) string {
	return strings.NewReplacer(
		"{subject}", msg.Subject,
		"{author}", msg.From,
	).Replace(r.cfg.TitleFormat)
}
