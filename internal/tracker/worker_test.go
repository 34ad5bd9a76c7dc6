package tracker_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/store"
	"github.com/hqnguyen/todotrack/internal/tracker"
	"github.com/hqnguyen/todotrack/tests/testutil"
)

// fakeSession is an in-memory mailbox standing in for an IMAP session.
type fakeSession struct {
	messages map[uint32][]byte
	deleted  map[uint32]bool

	searchErr error
	fetchErr  map[uint32]error

	expunged  int
	closeCnt  int
	retired   []uint32
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		messages: make(map[uint32][]byte),
		deleted:  make(map[uint32]bool),
		fetchErr: make(map[uint32]error),
	}
}

func (f *fakeSession) add(uid uint32, lines ...string) {
	f.messages[uid] = []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func (f *fakeSession) Search(ctx context.Context, all bool) ([]uint32, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	uids := make([]uint32, 0, len(f.messages))
	for uid := range f.messages {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (f *fakeSession) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if err := f.fetchErr[uid]; err != nil {
		return nil, err
	}
	raw, ok := f.messages[uid]
	if !ok {
		return nil, fmt.Errorf("no such message %d", uid)
	}
	return raw, nil
}

func (f *fakeSession) MarkDeleted(ctx context.Context, uid uint32) error {
	f.deleted[uid] = true
	return nil
}

func (f *fakeSession) Expunge(ctx context.Context) error {
	f.expunged++
	for uid := range f.deleted {
		f.retired = append(f.retired, uid)
		delete(f.messages, uid)
	}
	f.deleted = make(map[uint32]bool)
	return nil
}

func (f *fakeSession) Close() error {
	f.closeCnt++
	return nil
}

type recordedNotification struct {
	task    model.Task
	comment model.Comment
}

type fakeNotifier struct {
	sent []recordedNotification
	err  error
}

func (f *fakeNotifier) CommentAdded(ctx context.Context, task model.Task, c model.Comment) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recordedNotification{task: task, comment: c})
	return nil
}

func newWorker(
	s store.Store,
	list model.TaskList,
	sess *fakeSession,
	notifier tracker.Notifier,
	cfg tracker.WorkerConfig,
) *tracker.Worker {
	log := zap.NewNop().Sugar()
	dial := func(ctx context.Context) (tracker.Session, error) { return sess, nil }
	resolver := tracker.NewResolver(s, "tracker.example.com")
	reconciler := tracker.NewReconciler(s, tracker.ReconcilerConfig{}, log)
	return tracker.NewWorker(dial, list, resolver, reconciler, notifier, cfg, log)
}

func TestRunCycleThreadedConversation(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	ctx := context.Background()

	sess := newFakeSession()
	sess.add(1,
		"From: alice@example.com",
		"Subject: Printer broken",
		"Message-ID: <1@x>",
		"",
		"It is jammed.",
	)

	notifier := &fakeNotifier{}
	w := newWorker(s, fx.List, sess, notifier, tracker.WorkerConfig{Name: "test"})

	results, err := w.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tracker.DispositionProcessed, results[0].Disposition)
	assert.Equal(t, "<1@x>", results[0].MessageID)

	tasks, err := s.GetTasks(ctx, store.TaskFilter{TaskListID: &fx.List.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Printer broken", tasks[0].Title)

	// The first message created the task, so nobody is notified yet.
	assert.Empty(t, notifier.sent)
	assert.Empty(t, sess.messages)
	assert.Equal(t, 1, sess.expunged)
	assert.Equal(t, 1, sess.closeCnt)

	// A reply referencing the original lands on the same task.
	sess.add(2,
		"From: bob@example.com",
		"Subject: Re: Printer broken",
		"Message-ID: <2@x>",
		"References: <1@x>",
		"",
		"Tried turning it off and on.",
	)

	results, err = w.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tracker.DispositionProcessed, results[0].Disposition)

	tasks, err = s.GetTasks(ctx, store.TaskFilter{TaskListID: &fx.List.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	comments, err := s.GetComments(ctx, tasks[0].ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)

	// The follow-up comment triggers a notification.
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, tasks[0].ID, notifier.sent[0].task.ID)
	assert.Equal(t, "Tried turning it off and on.", notifier.sent[0].comment.Body)
}

func TestRunCycleThreadMarkerReply(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	ctx := context.Background()

	task := model.Task{Title: "existing", TaskListID: fx.List.ID, Priority: 1}
	require.NoError(t, s.CreateTask(ctx, &task))

	sess := newFakeSession()
	sess.add(1,
		"From: alice@example.com",
		"Subject: Re: existing",
		"Message-ID: <r@x>",
		"References: "+tracker.FormatThreadMarker(task.ID, "tracker.example.com"),
		"",
		"reply via marker",
	)

	w := newWorker(s, fx.List, sess, nil, tracker.WorkerConfig{Name: "test"})
	results, err := w.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tracker.DispositionProcessed, results[0].Disposition)

	comments, err := s.GetComments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "reply via marker", comments[0].Body)
}

func TestRunCycleSkipsMalformed(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)

	sess := newFakeSession()
	// No Message-ID header: permanently unprocessable.
	sess.add(1,
		"From: alice@example.com",
		"Subject: broken",
		"",
		"body",
	)

	w := newWorker(s, fx.List, sess, nil, tracker.WorkerConfig{Name: "test"})
	results, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tracker.DispositionSkipped, results[0].Disposition)

	// Skipped messages are still retired so they never loop.
	assert.Contains(t, sess.retired, uint32(1))

	tasks, err := s.GetTasks(context.Background(), store.TaskFilter{TaskListID: &fx.List.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRunCycleFetchFailureLeftForRetry(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)

	sess := newFakeSession()
	sess.add(1,
		"From: alice@example.com",
		"Subject: ok",
		"Message-ID: <ok@x>",
		"",
		"body",
	)
	sess.add(2,
		"From: alice@example.com",
		"Subject: transient",
		"Message-ID: <bad@x>",
		"",
		"body",
	)
	sess.fetchErr[2] = errors.New("connection reset")

	w := newWorker(s, fx.List, sess, nil, tracker.WorkerConfig{Name: "test"})
	results, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, tracker.DispositionProcessed, results[0].Disposition)
	assert.Equal(t, tracker.DispositionRetry, results[1].Disposition)

	// The failed message stays in the mailbox for the next cycle.
	assert.Contains(t, sess.retired, uint32(1))
	assert.NotContains(t, sess.retired, uint32(2))
	_, stillThere := sess.messages[2]
	assert.True(t, stillThere)
}

func TestRunCyclePreserveMode(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)

	sess := newFakeSession()
	sess.add(1,
		"From: alice@example.com",
		"Subject: keep me",
		"Message-ID: <p@x>",
		"",
		"body",
	)

	w := newWorker(s, fx.List, sess, nil, tracker.WorkerConfig{
		Name:     "test",
		Preserve: true,
	})
	results, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tracker.DispositionProcessed, results[0].Disposition)

	// Preserve disables both flagging and expunge.
	assert.Empty(t, sess.deleted)
	assert.Zero(t, sess.expunged)
	_, stillThere := sess.messages[1]
	assert.True(t, stillThere)
}

func TestRunCycleSearchFailure(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)

	sess := newFakeSession()
	sess.searchErr = errors.New("mailbox gone")

	w := newWorker(s, fx.List, sess, nil, tracker.WorkerConfig{Name: "test"})
	_, err := w.RunCycle(context.Background())
	require.Error(t, err)

	// The session is still closed on the failure path.
	assert.Equal(t, 1, sess.closeCnt)
}

func TestRunCycleNotifierFailureDoesNotBlockRetirement(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	ctx := context.Background()

	task := model.Task{Title: "existing", TaskListID: fx.List.ID, Priority: 1}
	require.NoError(t, s.CreateTask(ctx, &task))

	sess := newFakeSession()
	sess.add(1,
		"From: alice@example.com",
		"Subject: Re: existing",
		"Message-ID: <n@x>",
		"References: "+tracker.FormatThreadMarker(task.ID, "tracker.example.com"),
		"",
		"body",
	)

	notifier := &fakeNotifier{err: errors.New("smtp down")}
	w := newWorker(s, fx.List, sess, notifier, tracker.WorkerConfig{Name: "test"})

	results, err := w.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tracker.DispositionProcessed, results[0].Disposition)
	assert.Contains(t, sess.retired, uint32(1))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)

	sess := newFakeSession()
	w := newWorker(s, fx.List, sess, nil, tracker.WorkerConfig{
		Name:         "test",
		PollInterval: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
