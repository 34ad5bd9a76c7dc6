// Package importer provides bulk task upsert from CSV, shared by the
// import-csv command and the web uploader.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/store"
)

// expectedHeader is the required CSV header row, in order.
var expectedHeader = []string{
	"Title",
	"Group",
	"Task List",
	"Created By",
	"Created Date",
	"Due Date",
	"Completed",
	"Assigned To",
	"Note",
	"Priority",
}

// Report collects what was and was not imported, for display at the
// end of a run.
type Report struct {
	LineCount   int
	UpsertCount int
	Upserts     []string
	Errors      []RowError
	Summaries   []string
}

// RowError ties validation messages to their CSV line number.
type RowError struct {
	Line     int
	Messages []string
}

// Importer upserts tasks from CSV rows, keyed by
// (created by, task list, title).
type Importer struct {
	store store.Store
}

// New creates an Importer writing into the given store.
func New(st store.Store) *Importer {
	return &Importer{store: st}
}

// Upsert reads CSV rows from r and upserts a task per valid row.
// Invalid rows are collected in the report rather than aborting the
// run.
func (i *Importer) Upsert(ctx context.Context, r io.Reader) (*Report, error) {
	report := &Report{}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(expectedHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if !headerMatches(header) {
		return nil, fmt.Errorf(
			"inbound data does not have expected columns; should be: %v", expectedHeader,
		)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}

		report.LineCount++

		row := make(map[string]string, len(expectedHeader))
		for idx, name := range expectedHeader {
			row[name] = record[idx]
		}

		task, list, rowErrs := i.validateRow(ctx, row)
		if len(rowErrs) > 0 {
			report.Errors = append(report.Errors, RowError{
				Line:     report.LineCount,
				Messages: rowErrs,
			})
			continue
		}

		created, err := i.store.UpsertTask(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("upserting task %q: %w", task.Title, err)
		}

		verb := "Updated"
		if created {
			verb = "Created"
		}
		report.UpsertCount++
		report.Upserts = append(report.Upserts, fmt.Sprintf(
			"%s task %d: %q in list %q", verb, task.ID, task.Title, list.Name,
		))
	}

	report.Summaries = append(report.Summaries,
		fmt.Sprintf("Processed %d CSV rows", report.LineCount),
		fmt.Sprintf("Upserted %d rows", report.UpsertCount),
		fmt.Sprintf("Skipped %d rows", report.LineCount-report.UpsertCount),
	)

	return report, nil
}

// validateRow performs data integrity checks and resolves references.
// All problems for a row are collected so the operator sees them at
// once. The checks are interdependent (group membership needs both the
// resolved user and group), so they stay in one function.
func (i *Importer) validateRow(
	ctx context.Context,
	row map[string]string,
) (*model.Task, *model.TaskList, []string) {
	var rowErrs []string

	if row["Title"] == "" {
		rowErrs = append(rowErrs, "missing required task title")
	}

	if row["Created By"] == "" {
		rowErrs = append(rowErrs, "missing required task creator")
	}

	creator, err := i.store.GetUserByUsername(ctx, row["Created By"])
	if store.IsNotFound(err) {
		rowErrs = append(rowErrs, fmt.Sprintf("invalid task creator %q", row["Created By"]))
	} else if err != nil {
		rowErrs = append(rowErrs, err.Error())
	}

	var assignee *model.User
	if row["Assigned To"] != "" {
		assignee, err = i.store.GetUserByUsername(ctx, row["Assigned To"])
		if store.IsNotFound(err) {
			rowErrs = append(rowErrs, fmt.Sprintf("missing or invalid task assignee %q", row["Assigned To"]))
		} else if err != nil {
			rowErrs = append(rowErrs, err.Error())
		}
	}

	group, err := i.store.GetGroupByName(ctx, row["Group"])
	if store.IsNotFound(err) {
		rowErrs = append(rowErrs, fmt.Sprintf("could not find group %q", row["Group"]))
	} else if err != nil {
		rowErrs = append(rowErrs, err.Error())
	}

	if creator != nil && group != nil && creator.GroupID != group.ID {
		rowErrs = append(rowErrs, fmt.Sprintf("%s is not in group %s", creator.Username, group.Name))
	}
	if assignee != nil && group != nil && assignee.GroupID != group.ID {
		rowErrs = append(rowErrs, fmt.Sprintf("%s is not in group %s", assignee.Username, group.Name))
	}

	var list *model.TaskList
	if group != nil {
		list, err = i.store.GetTaskListByName(ctx, group.ID, row["Task List"])
		if store.IsNotFound(err) {
			rowErrs = append(rowErrs, fmt.Sprintf(
				"task list %q in group %q does not exist", row["Task List"], group.Name,
			))
		} else if err != nil {
			rowErrs = append(rowErrs, err.Error())
		}
	}

	createdDate, derr := parseDate(row["Created Date"])
	if derr != nil {
		rowErrs = append(rowErrs, fmt.Sprintf(
			"could not convert Created Date %q to a valid date", row["Created Date"],
		))
	}
	dueDate, derr := parseDate(row["Due Date"])
	if derr != nil {
		rowErrs = append(rowErrs, fmt.Sprintf(
			"could not convert Due Date %q to a valid date", row["Due Date"],
		))
	}

	priority := 0
	if row["Priority"] != "" {
		if _, err := fmt.Sscanf(row["Priority"], "%d", &priority); err != nil || priority < 1 {
			rowErrs = append(rowErrs, fmt.Sprintf("invalid priority %q", row["Priority"]))
		}
	}

	if len(rowErrs) > 0 {
		return nil, nil, rowErrs
	}

	task := &model.Task{
		Title:      row["Title"],
		TaskListID: list.ID,
		CreatedBy:  &creator.ID,
		Priority:   priority,
		Completed:  row["Completed"] == "Yes",
		Note:       row["Note"],
		DueDate:    dueDate,
	}
	if assignee != nil {
		task.AssignedTo = &assignee.ID
	}
	if createdDate != nil {
		task.CreatedDate = *createdDate
	} else {
		task.CreatedDate = time.Now().UTC()
	}

	return task, list, nil
}

// parseDate converts a YYYY-MM-DD CSV field; empty fields are nil.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// headerMatches reports whether the CSV header row is exactly the
// expected column list.
func headerMatches(header []string) bool {
	if len(header) != len(expectedHeader) {
		return false
	}
	for i := range header {
		if header[i] != expectedHeader[i] {
			return false
		}
	}
	return true
}
