package tracker_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/tracker"
	"github.com/hqnguyen/todotrack/tests/testutil"
)

func TestFormatThreadMarker(t *testing.T) {
	assert.Equal(t, "<thread-42@tracker.example.com>",
		tracker.FormatThreadMarker(42, "tracker.example.com"))
}

func TestResolveSeparatesForeignIDs(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	r := tracker.NewResolver(s, "tracker.example.com")

	task := model.Task{Title: "t", TaskListID: fx.List.ID, Priority: 1}
	require.NoError(t, s.CreateTask(context.Background(), &task))

	res, err := r.Resolve(context.Background(), fx.List.ID, []string{
		"<abc@mail.example.org>",
		tracker.FormatThreadMarker(task.ID, "tracker.example.com"),
		"<def@mail.example.org>",
	})
	require.NoError(t, err)

	require.NotNil(t, res.MatchedTask)
	assert.Equal(t, task.ID, res.MatchedTask.ID)
	assert.Equal(t,
		[]string{"<abc@mail.example.org>", "<def@mail.example.org>"},
		res.ExternalIDs,
	)
}

func TestResolveLastMarkerWins(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	r := tracker.NewResolver(s, "tracker.example.com")
	ctx := context.Background()

	first := model.Task{Title: "first", TaskListID: fx.List.ID, Priority: 1}
	require.NoError(t, s.CreateTask(ctx, &first))
	second := model.Task{Title: "second", TaskListID: fx.List.ID, Priority: 1}
	require.NoError(t, s.CreateTask(ctx, &second))

	res, err := r.Resolve(ctx, fx.List.ID, []string{
		tracker.FormatThreadMarker(first.ID, "tracker.example.com"),
		tracker.FormatThreadMarker(second.ID, "tracker.example.com"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.MatchedTask)
	assert.Equal(t, second.ID, res.MatchedTask.ID)
}

func TestResolveUnknownMarkerIgnored(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	r := tracker.NewResolver(s, "tracker.example.com")

	// Marker for a task that no longer exists resolves to nothing and
	// is not retained as a foreign id either.
	res, err := r.Resolve(context.Background(), fx.List.ID, []string{
		"<thread-9999@tracker.example.com>",
	})
	require.NoError(t, err)
	assert.Nil(t, res.MatchedTask)
	assert.Empty(t, res.ExternalIDs)
}

func TestResolveMarkerScopedToList(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	r := tracker.NewResolver(s, "tracker.example.com")
	ctx := context.Background()

	otherList, err := s.CreateTaskList(ctx, model.TaskList{
		Name: "Zap", Slug: "zap", GroupID: fx.Group.ID,
	})
	require.NoError(t, err)
	foreign := model.Task{Title: "elsewhere", TaskListID: otherList.ID, Priority: 1}
	require.NoError(t, s.CreateTask(ctx, &foreign))

	res, err := r.Resolve(ctx, fx.List.ID, []string{
		tracker.FormatThreadMarker(foreign.ID, "tracker.example.com"),
	})
	require.NoError(t, err)
	assert.Nil(t, res.MatchedTask)
}

func TestResolveForeignDomainMarkerIsExternal(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	r := tracker.NewResolver(s, "tracker.example.com")

	// A thread marker issued by a different deployment is just another
	// foreign message id.
	res, err := r.Resolve(context.Background(), fx.List.ID, []string{
		"<thread-3@other.example.net>",
	})
	require.NoError(t, err)
	assert.Nil(t, res.MatchedTask)
	assert.Equal(t, []string{"<thread-3@other.example.net>"}, res.ExternalIDs)
}

func TestResolveBareMarkerWithoutBrackets(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	r := tracker.NewResolver(s, "tracker.example.com")
	ctx := context.Background()

	task := model.Task{Title: "t", TaskListID: fx.List.ID, Priority: 1}
	require.NoError(t, s.CreateTask(ctx, &task))

	// Some clients strip angle brackets when rewriting References.
	bare := strings.Trim(tracker.FormatThreadMarker(task.ID, "tracker.example.com"), "<>")
	res, err := r.Resolve(ctx, fx.List.ID, []string{bare})
	require.NoError(t, err)
	require.NotNil(t, res.MatchedTask)
	assert.Equal(t, task.ID, res.MatchedTask.ID)
}
