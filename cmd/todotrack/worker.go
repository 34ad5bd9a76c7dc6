package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hqnguyen/todotrack/internal/credential"
	"github.com/hqnguyen/todotrack/internal/logging"
	"github.com/hqnguyen/todotrack/internal/mail/imap"
	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/notify"
	"github.com/hqnguyen/todotrack/internal/store"
	"github.com/hqnguyen/todotrack/internal/tracker"
)

func newWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker <name>",
		Short: "Run the mail worker for the named tracker",
		Long: `Runs one mail polling worker. The name selects a tracker block from
the configuration file; each worker owns one mailbox → task list
pairing and runs until the process is signalled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), *configPath, args[0])
		},
	}
}

// runWorker wires the connector → parser → resolver → reconciler
// pipeline and runs it until the process is signalled. Configuration
// problems return an error, which exits the process non-zero; anything
// after startup is recoverable and stays inside the loop.
func runWorker(ctx context.Context, configPath, name string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	tr, err := cfg.Tracker(name)
	if err != nil {
		log.Errorw("missing tracker configuration", "worker", name, "error", err)
		return err
	}

	tr.Password, err = credential.Resolve(tr.Password)
	if err != nil {
		log.Errorw("resolving mailbox password failed", "worker", name, "error", err)
		return err
	}

	if err := tr.Validate(); err != nil {
		log.Errorw("invalid tracker configuration", "worker", name, "error", err)
		return err
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.GetTaskList(ctx, tr.Group, tr.TaskListSlug)
	if err != nil {
		log.Errorw("task list not found",
			"worker", name,
			"group", tr.Group,
			"slug", tr.TaskListSlug,
			"error", err,
		)
		return fmt.Errorf("task list %s/%s: %w", tr.Group, tr.TaskListSlug, err)
	}

	client := imap.NewClient(
		tr.Host, tr.Port, tr.Username, tr.Password, tr.Folder,
		time.Duration(tr.SocketTimeoutSec)*time.Second,
	)
	dial := func(ctx context.Context) (tracker.Session, error) {
		return client.Dial(ctx)
	}

	resolver := tracker.NewResolver(st, cfg.Domain)
	reconciler := tracker.NewReconciler(st, tracker.ReconcilerConfig{
		Priority:    tr.Priority,
		TitleFormat: tr.TitleFormat,
		MatchUsers:  tr.MatchUsers,
	}, log)

	var notifier tracker.Notifier
	if mailer := cfg.MailerFor(tr.TaskListSlug); mailer.Host != "" {
		mailer.Password, err = credential.Resolve(mailer.Password)
		if err != nil {
			log.Errorw("resolving SMTP password failed", "worker", name, "error", err)
			return err
		}
		notifier = notify.NewMailer(mailer, st, cfg.Domain, log)
	}

	w := tracker.NewWorker(dial, *list, resolver, reconciler, notifier, tracker.WorkerConfig{
		Name:         name,
		ProcessAll:   tr.ProcessAll,
		Preserve:     tr.PreserveMessages,
		PollInterval: time.Duration(tr.PollIntervalSec) * time.Second,
	}, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return w.Run(ctx)
}
