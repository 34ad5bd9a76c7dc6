// Package testutil provides shared helpers for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/hqnguyen/todotrack/internal/model"
	"github.com/hqnguyen/todotrack/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations
// applied. It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Fixture holds the tenancy rows most tests need: one group, one user
// in it, and one task list.
type Fixture struct {
	Group model.Group
	User  model.User
	List  model.TaskList
}

// NewFixture seeds a group, a member user, and a task list.
func NewFixture(t *testing.T, s *store.SQLiteStore) Fixture {
	t.Helper()
	ctx := context.Background()

	group, err := s.CreateGroup(ctx, "Workgroup One")
	if err != nil {
		t.Fatalf("creating group: %v", err)
	}

	user, err := s.CreateUser(ctx, model.User{
		Username: "u1",
		Email:    "u1@example.com",
		GroupID:  group.ID,
	})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}

	list, err := s.CreateTaskList(ctx, model.TaskList{
		Name:    "Zip",
		Slug:    "zip",
		GroupID: group.ID,
	})
	if err != nil {
		t.Fatalf("creating task list: %v", err)
	}

	return Fixture{Group: group, User: user, List: list}
}
