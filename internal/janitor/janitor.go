// Package janitor implements the periodic terminal-task sweep mentioned
// but not detailed in spec.md §1. Grounded on
// original_source/workers/cleanup_worker.py's CleanupWorker: on a fixed
// interval, list terminal tasks older than a retention window and delete
// them, plus remove stray working directories a coordinator crash left
// behind.
package janitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lsilvatti/modxlate/internal/store"
)

// Janitor sweeps terminal task rows and orphaned working directories on
// a fixed interval.
type Janitor struct {
	Store           store.Store
	RetentionWindow time.Duration
	SweepInterval   time.Duration
	WorkDirRoot     string
	Log             *slog.Logger
}

// New builds a Janitor with the given collaborators.
func New(st store.Store, retention, interval time.Duration, workDirRoot string, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		Store:           st,
		RetentionWindow: retention,
		SweepInterval:   interval,
		WorkDirRoot:     workDirRoot,
		Log:             log.With("component", "janitor"),
	}
}

// Run sweeps immediately, then on every SweepInterval tick, until ctx is
// canceled. A failed sweep is logged and retried on the next tick rather
// than aborting the process (original_source's start.py loop keeps
// running after a single cycle's exception).
func (j *Janitor) Run(ctx context.Context) {
	j.sweepOnce(ctx)

	ticker := time.NewTicker(j.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweepOnce(ctx)
		}
	}
}

func (j *Janitor) sweepOnce(ctx context.Context) {
	deleted, err := j.SweepTasks(ctx)
	if err != nil {
		j.Log.Error("task sweep failed", "error", err)
	} else {
		j.Log.Info("task sweep complete", "deleted", deleted)
	}

	if j.WorkDirRoot != "" {
		removed, err := j.SweepOrphanedWorkDirs()
		if err != nil {
			j.Log.Error("orphaned work dir sweep failed", "error", err)
		} else {
			j.Log.Info("orphaned work dir sweep complete", "removed", removed)
		}
	}
}

// SweepTasks deletes every terminal task row whose UpdatedAt predates
// the retention window.
func (j *Janitor) SweepTasks(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.RetentionWindow)

	tasks, err := j.Store.List(ctx)
	if err != nil {
		return 0, err
	}

	stale := store.ListOlderThan(tasks, cutoff)
	for _, t := range stale {
		if err := j.Store.Delete(ctx, t.ID.String()); err != nil {
			return 0, err
		}
		j.Log.Debug("deleted expired task", "task_id", t.ID, "status", t.Status, "updated_at", t.UpdatedAt)
	}
	return len(stale), nil
}

// SweepOrphanedWorkDirs removes leftover "modxlate-*" working
// directories (internal/coordinator.run's working-directory naming
// convention) that are older than the retention window, left behind by
// a coordinator process that crashed before its own cleanup ran.
func (j *Janitor) SweepOrphanedWorkDirs() (int, error) {
	entries, err := os.ReadDir(j.WorkDirRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-j.RetentionWindow)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "modxlate-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.WorkDirRoot, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, err
		}
		j.Log.Debug("removed orphaned work dir", "path", path)
		removed++
	}
	return removed, nil
}
