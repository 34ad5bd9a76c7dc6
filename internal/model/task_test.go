package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskOverdue(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	assert.False(t, (&Task{}).Overdue(now))
	assert.False(t, (&Task{DueDate: &future}).Overdue(now))
	assert.True(t, (&Task{DueDate: &past}).Overdue(now))
	assert.False(t, (&Task{DueDate: &past, Completed: true}).Overdue(now))
}
