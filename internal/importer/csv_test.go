package importer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hqnguyen/todotrack/internal/importer"
	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/store"
	"github.com/hqnguyen/todotrack/tests/testutil"
)

const csvHeader = "Title,Group,Task List,Created By,Created Date,Due Date,Completed,Assigned To,Note,Priority"

func runImport(t *testing.T, s store.Store, rows ...string) (*importer.Report, error) {
	t.Helper()
	data := strings.Join(append([]string{csvHeader}, rows...), "\n")
	return importer.New(s).Upsert(context.Background(), strings.NewReader(data))
}

func TestUpsertCreatesAndUpdates(t *testing.T) {
	s := testutil.NewTestStore(t)
	fx := testutil.NewFixture(t, s)
	ctx := context.Background()

	report, err := runImport(t, s,
		`Quarterly report,Workgroup One,Zip,u1,2026-08-01,2026-09-15,No,u1,First pass,3`,
	)
	require.NoError(t, err)
	require.Empty(t, report.Errors)
	assert.Equal(t, 1, report.UpsertCount)
	require.Len(t, report.Upserts, 1)
	assert.Contains(t, report.Upserts[0], "Created")

	tasks, err := s.GetTasks(ctx, store.TaskFilter{TaskListID: &fx.List.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Quarterly report", tasks[0].Title)
	assert.Equal(t, 3, tasks[0].Priority)
	require.NotNil(t, tasks[0].DueDate)

	// Same (creator, list, title) key updates in place.
	report, err = runImport(t, s,
		`Quarterly report,Workgroup One,Zip,u1,2026-08-01,,Yes,,Second pass,5`,
	)
	require.NoError(t, err)
	require.Empty(t, report.Errors)
	require.Len(t, report.Upserts, 1)
	assert.Contains(t, report.Upserts[0], "Updated")

	tasks, err = s.GetTasks(ctx, store.TaskFilter{TaskListID: &fx.List.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 5, tasks[0].Priority)
	assert.Equal(t, "Second pass", tasks[0].Note)
	assert.True(t, tasks[0].Completed)
}

func TestUpsertRejectsBadHeader(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.NewFixture(t, s)

	_, err := importer.New(s).Upsert(context.Background(),
		strings.NewReader("Name,Group\nfoo,bar"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected columns")
}

func TestUpsertCollectsRowErrors(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.NewFixture(t, s)

	report, err := runImport(t, s,
		// Unknown creator.
		`Task A,Workgroup One,Zip,ghost,,,No,,,1`,
		// Unknown group.
		`Task B,No Such Group,Zip,u1,,,No,,,1`,
		// Bad date and bad priority.
		`Task C,Workgroup One,Zip,u1,08/01/2026,,No,,,zero`,
		// Valid row after the bad ones.
		`Task D,Workgroup One,Zip,u1,,,No,,,2`,
	)
	require.NoError(t, err)

	assert.Equal(t, 4, report.LineCount)
	assert.Equal(t, 1, report.UpsertCount)
	require.Len(t, report.Errors, 3)

	assert.Equal(t, 1, report.Errors[0].Line)
	assert.Contains(t, strings.Join(report.Errors[0].Messages, "; "), "invalid task creator")

	assert.Equal(t, 2, report.Errors[1].Line)
	assert.Contains(t, strings.Join(report.Errors[1].Messages, "; "), "could not find group")

	assert.Equal(t, 3, report.Errors[2].Line)
	joined := strings.Join(report.Errors[2].Messages, "; ")
	assert.Contains(t, joined, "Created Date")
	assert.Contains(t, joined, "invalid priority")
}

func TestUpsertChecksGroupMembership(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.NewFixture(t, s)
	ctx := context.Background()

	otherGroup, err := s.CreateGroup(ctx, "Workgroup Two")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, model.User{
		Username: "outsider",
		Email:    "outsider@example.com",
		GroupID:  otherGroup.ID,
	})
	require.NoError(t, err)

	report, err := runImport(t, s,
		`Task A,Workgroup One,Zip,outsider,,,No,,,1`,
	)
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, strings.Join(report.Errors[0].Messages, "; "),
		"outsider is not in group Workgroup One")
}

func TestUpsertUnknownTaskList(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.NewFixture(t, s)

	report, err := runImport(t, s,
		`Task A,Workgroup One,Nonexistent,u1,,,No,,,1`,
	)
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, strings.Join(report.Errors[0].Messages, "; "),
		`task list "Nonexistent"`)
}

func TestUpsertSummaries(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.NewFixture(t, s)

	report, err := runImport(t, s,
		`Task A,Workgroup One,Zip,u1,,,No,,,1`,
		`Task B,Bad Group,Zip,u1,,,No,,,1`,
	)
	require.NoError(t, err)

	assert.Contains(t, report.Summaries, "Processed 2 CSV rows")
	assert.Contains(t, report.Summaries, "Upserted 1 rows")
	assert.Contains(t, report.Summaries, "Skipped 1 rows")
}
