// Command janitor runs the periodic terminal-task sweep: it deletes
// completed/failed task rows and orphaned working directories older than
// the configured retention window.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lsilvatti/modxlate/internal/config"
	"github.com/lsilvatti/modxlate/internal/janitor"
	"github.com/lsilvatti/modxlate/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "janitor: load config: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "janitor")
	slog.SetDefault(log)

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		log.Error("open task store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// An empty work_dir_root means the coordinator uses os.TempDir(), so
	// sweep the same place.
	workDirRoot := cfg.Coordinator.WorkDirRoot
	if workDirRoot == "" {
		workDirRoot = os.TempDir()
	}
	j := janitor.New(st, cfg.Janitor.RetentionWindow, cfg.Janitor.SweepInterval, workDirRoot, log)
	log.Info("janitor starting", "retention", cfg.Janitor.RetentionWindow, "interval", cfg.Janitor.SweepInterval)
	j.Run(ctx)
}
