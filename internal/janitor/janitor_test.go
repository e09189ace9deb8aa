package janitor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lsilvatti/modxlate/internal/store"
	"github.com/lsilvatti/modxlate/internal/task"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "tasks.db")
	st, err := store.Open(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func createTerminalTask(t *testing.T, st store.Store, status task.Status) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := st.Create(context.Background(), task.Task{
		ID:             id,
		SourceURL:      "s3://src/a.zip",
		DestBucket:     "dst",
		DestKey:        "a.zip",
		TargetLanguage: "zh",
		Status:         task.StatusPending,
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if status == task.StatusFailed {
		if _, err := st.Update(context.Background(), id.String(), func(tk *task.Task) error {
			tk.Status = task.StatusFailed
			return nil
		}); err != nil {
			t.Fatalf("advance task to FAILED: %v", err)
		}
		return id
	}

	for _, step := range []task.Status{task.StatusPreparing, task.StatusTranslating, task.StatusFinalizing, task.StatusCompleted} {
		if _, err := st.Update(context.Background(), id.String(), func(tk *task.Task) error {
			tk.Status = step
			return nil
		}); err != nil {
			t.Fatalf("advance task to %s: %v", step, err)
		}
	}
	return id
}

// TestSweepTasksDeletesOnlyStaleTerminalTasks exercises SweepTasks
// end-to-end through the real store. Since Update always stamps
// UpdatedAt to time.Now(), a task created moments ago can never predate
// a positive retention window, so a freshly terminal task must survive;
// the age-filtering behavior itself is covered precisely against
// hand-built timestamps in TestListOlderThanFiltersTerminalAndAge, the
// predicate SweepTasks delegates to.
func TestSweepTasksDeletesOnlyStaleTerminalTasks(t *testing.T) {
	st := newTestStore(t)

	failedID := createTerminalTask(t, st, task.StatusFailed)
	completedID := createTerminalTask(t, st, task.StatusCompleted)

	j := New(st, time.Hour, time.Minute, "", silentLogger())

	deleted, err := j.SweepTasks(context.Background())
	if err != nil {
		t.Fatalf("SweepTasks: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 deletions for freshly-updated rows, got %d", deleted)
	}

	if _, err := st.Get(context.Background(), failedID.String()); err != nil {
		t.Fatalf("expected FAILED task to still exist: %v", err)
	}
	if _, err := st.Get(context.Background(), completedID.String()); err != nil {
		t.Fatalf("expected COMPLETED task to still exist: %v", err)
	}
}

func TestListOlderThanFiltersTerminalAndAge(t *testing.T) {
	now := time.Now()
	tasks := []task.Task{
		{ID: uuid.New(), Status: task.StatusCompleted, UpdatedAt: now.Add(-48 * time.Hour)},
		{ID: uuid.New(), Status: task.StatusFailed, UpdatedAt: now.Add(-1 * time.Hour)},
		{ID: uuid.New(), Status: task.StatusTranslating, UpdatedAt: now.Add(-48 * time.Hour)},
	}

	stale := store.ListOlderThan(tasks, now.Add(-24*time.Hour))
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale terminal task, got %d", len(stale))
	}
	if stale[0].Status != task.StatusCompleted {
		t.Fatalf("expected the COMPLETED task to be selected, got %s", stale[0].Status)
	}
}

func TestSweepOrphanedWorkDirsRemovesOldDirsOnly(t *testing.T) {
	root := t.TempDir()

	oldDir := filepath.Join(root, "modxlate-old")
	newDir := filepath.Join(root, "modxlate-new")
	unrelated := filepath.Join(root, "not-ours")
	for _, d := range []string{oldDir, newDir, unrelated} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}

	oldTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	j := New(nil, time.Hour, time.Minute, root, silentLogger())
	removed, err := j.SweepOrphanedWorkDirs()
	if err != nil {
		t.Fatalf("SweepOrphanedWorkDirs: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed directory, got %d", removed)
	}

	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatalf("expected old work dir to be removed")
	}
	if _, err := os.Stat(newDir); err != nil {
		t.Fatalf("expected new work dir to survive: %v", err)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatalf("expected unrelated dir to survive: %v", err)
	}
}
