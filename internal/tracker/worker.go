package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hqnguyen/todotrack/internal/mail/message"
	"github.com/hqnguyen/todotrack/internal/model"
)

// Session is one authenticated mailbox connection with the tracker
// folder selected. The worker opens a fresh session per cycle and
// guarantees Close on every exit path.
type Session interface {
	// Search returns UIDs matching the tracker filter, in ascending
	// mailbox order. all selects every message instead of unseen only.
	Search(ctx context.Context, all bool) ([]uint32, error)

	// Fetch retrieves the raw RFC 822 content of one message.
	Fetch(ctx context.Context, uid uint32) ([]byte, error)

	// MarkDeleted flags a message for deletion at the next Expunge.
	MarkDeleted(ctx context.Context, uid uint32) error

	// Expunge commits all accumulated deletion flags in one batch.
	Expunge(ctx context.Context) error

	Close() error
}

// DialFunc opens a mailbox session. Connection failures abort the
// current cycle and are retried after the poll interval.
type DialFunc func(ctx context.Context) (Session, error)

// Notifier delivers new-comment notifications to thread participants.
// Notification delivery is best-effort: failures are logged and never
// affect message retirement.
type Notifier interface {
	CommentAdded(ctx context.Context, task model.Task, c model.Comment) error
}

// WorkerConfig carries the loop settings for one worker.
type WorkerConfig struct {
	// Name identifies this worker in logs.
	Name string

	// ProcessAll selects every message instead of only unseen ones.
	ProcessAll bool

	// Preserve disables message retirement entirely, for replay and
	// testing against a live mailbox.
	Preserve bool

	// PollInterval is the sleep between cycles, and also the fixed
	// backoff after a transport failure.
	PollInterval time.Duration
}

// Worker drives the connector → parser → resolver → reconciler pipeline
// for one (mailbox, task list) pairing. Each worker is a sequential
// polling loop with no internal concurrency; parallelism comes from
// running multiple worker processes on disjoint lists.
type Worker struct {
	dial       DialFunc
	list       model.TaskList
	resolver   *Resolver
	reconciler *Reconciler
	notifier   Notifier
	cfg        WorkerConfig
	log        *zap.SugaredLogger
}

// NewWorker assembles a worker. notifier may be nil when outbound
// notifications are not configured.
func NewWorker(
	dial DialFunc,
	list model.TaskList,
	resolver *Resolver,
	reconciler *Reconciler,
	notifier Notifier,
	cfg WorkerConfig,
	log *zap.SugaredLogger,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Worker{
		dial:       dial,
		list:       list,
		resolver:   resolver,
		reconciler: reconciler,
		notifier:   notifier,
		cfg:        cfg,
		log:        log.With("worker", cfg.Name),
	}
}

// Run polls the mailbox until ctx is cancelled. Transport failures are
// logged and retried after the poll interval; per-message failures
// never escape a cycle. The only errors that abort a worker happen
// before Run, at configuration time.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infow("starting mail worker", "list", w.list.Slug)

	for {
		results, err := w.RunCycle(ctx)
		if err != nil {
			w.log.Errorw("mail fetching went wrong, retrying", "error", err)
		} else if len(results) > 0 {
			w.log.Infow("cycle complete", summarize(results)...)
		}

		select {
		case <-ctx.Done():
			w.log.Infow("mail worker stopping")
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// RunCycle performs one connect → fetch → process → retire pass and
// returns the per-message results. A returned error is a transport
// failure; any messages already processed in the batch stay processed.
func (w *Worker) RunCycle(ctx context.Context) ([]Result, error) {
	sess, err := w.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	uids, err := sess.Search(ctx, w.cfg.ProcessAll)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		w.log.Debugw("no messages to process")
		return nil, nil
	}

	results := make([]Result, 0, len(uids))
	for _, uid := range uids {
		raw, fetchErr := sess.Fetch(ctx, uid)
		var res Result
		if fetchErr != nil {
			// A single bad fetch must not poison the batch; the
			// message stays unretired for the next cycle.
			w.log.Warnw("fetching message failed", "uid", uid, "error", fetchErr)
			res = Result{UID: uid, Disposition: DispositionRetry, Err: fetchErr}
		} else {
			res = w.processOne(ctx, uid, raw)
		}
		results = append(results, res)

		if w.cfg.Preserve || res.Disposition == DispositionRetry {
			continue
		}
		if err := sess.MarkDeleted(ctx, uid); err != nil {
			w.log.Warnw("flagging message for deletion failed", "uid", uid, "error", err)
		}
	}

	// Deletions are committed once per cycle, not per message.
	if !w.cfg.Preserve {
		if err := sess.Expunge(ctx); err != nil {
			return results, err
		}
	}

	return results, nil
}

// processOne runs one message through parse → resolve → reconcile and
// classifies the outcome.
func (w *Worker) processOne(ctx context.Context, uid uint32, raw []byte) Result {
	msg, err := message.Parse(raw)
	if err != nil {
		w.log.Warnw("ignoring unprocessable message", "uid", uid, "error", err)
		return Result{UID: uid, Disposition: DispositionSkipped, Err: err}
	}

	w.log.Infow("received message",
		"uid", uid,
		"subject", msg.Subject,
		"message_id", msg.MessageID,
		"from", msg.From,
	)

	res, err := w.resolver.Resolve(ctx, w.list.ID, msg.References)
	if err != nil {
		w.log.Errorw("resolving references failed",
			"uid", uid,
			"subject", msg.Subject,
			"message_id", msg.MessageID,
			"error", err,
		)
		return Result{UID: uid, Disposition: DispositionRetry, MessageID: msg.MessageID, Err: err}
	}

	outcome, err := w.reconciler.Reconcile(ctx, w.list, msg, res)
	if err != nil {
		w.log.Errorw("reconciling message failed",
			"uid", uid,
			"subject", msg.Subject,
			"message_id", msg.MessageID,
			"error", err,
		)
		return Result{UID: uid, Disposition: DispositionRetry, MessageID: msg.MessageID, Err: err}
	}

	if w.notifier != nil && outcome.CommentCreated && !outcome.TaskCreated {
		if err := w.notifier.CommentAdded(ctx, outcome.Task, outcome.Comment); err != nil {
			w.log.Warnw("sending notification failed",
				"task_id", outcome.Task.ID,
				"error", err,
			)
		}
	}

	return Result{UID: uid, Disposition: DispositionProcessed, MessageID: msg.MessageID}
}

// summarize builds the structured log fields for a cycle's results.
func summarize(results []Result) []interface{} {
	var processed, skipped, retries int
	for _, r := range results {
		switch r.Disposition {
		case DispositionProcessed:
			processed++
		case DispositionSkipped:
			skipped++
		case DispositionRetry:
			retries++
		}
	}
	return []interface{}{
		"messages", len(results),
		"processed", processed,
		"skipped", skipped,
		"retries", retries,
	}
}
