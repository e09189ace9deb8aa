// Package store implements the task-state store (spec.md §4.6): a
// SQLite-backed, transactionally row-locked persistence layer for Task
// rows, grounded on the teacher's internal/core/db.Cache (WAL mode,
// bounded connection pool, singleton construction) but repurposed from a
// translation-memory cache to a task state machine.
package store

import (
	"context"
	"time"

	"github.com/lsilvatti/modxlate/internal/task"
)

// Store is the capability the coordinator needs from task persistence.
type Store interface {
	// Create upserts a new task row; re-submitting the same ID is a
	// no-op, making task submission idempotent under at-least-once
	// retries (spec.md §4.6).
	Create(ctx context.Context, t task.Task) error

	Get(ctx context.Context, id string) (task.Task, error)

	// List returns every task whose Status is one of statuses, or every
	// task when statuses is empty.
	List(ctx context.Context, statuses ...task.Status) ([]task.Task, error)

	Delete(ctx context.Context, id string) error

	// Update applies mutate to the current row inside a single
	// row-locked transaction (BEGIN IMMEDIATE), validating
	// mutate's returned Status transition against internal/task's state
	// machine before committing. completedAt is stamped automatically
	// when the new status is terminal.
	Update(ctx context.Context, id string, mutate func(t *task.Task) error) (task.Task, error)
}

// ListOlderThan is a convenience predicate the janitor uses against
// List's result to find terminal tasks eligible for cleanup.
func ListOlderThan(tasks []task.Task, cutoff time.Time) []task.Task {
	var out []task.Task
	for _, t := range tasks {
		if t.Status.IsTerminal() && t.UpdatedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
