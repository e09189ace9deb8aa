// Package worker implements the file worker (spec.md §4.10, component
// G): it consumes file-unit messages, runs the config-grammar rewriter
// against the referenced file, and reports the per-file terminal state
// into the completion registry the owning coordinator polls.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/lsilvatti/modxlate/internal/bus"
	"github.com/lsilvatti/modxlate/internal/grammar"
	"github.com/lsilvatti/modxlate/internal/registry"
	"github.com/lsilvatti/modxlate/internal/task"
	"github.com/lsilvatti/modxlate/internal/translator"
	"github.com/lsilvatti/modxlate/pkg/safe"
)

// Worker runs the rewrite for each file-unit message it is handed.
// Stateless, per spec.md §4.10: it keeps no per-message state, so
// concurrent callers can share a single Worker value safely.
// RabbitMQBus.Consume invokes Handle for one delivery at a time.
type Worker struct {
	Translator translator.Client
	Registry   registry.Registry
	Log        *slog.Logger
}

// New builds a Worker with the given collaborators.
func New(tr translator.Client, reg registry.Registry, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{Translator: tr, Registry: reg, Log: log.With("component", "worker")}
}

// Handle implements bus.Handler for the file_translation_tasks queue. It
// is panic-guarded (spec.md §10.4): a recovered panic is treated as a
// permanent per-file failure rather than crashing the worker process.
func (w *Worker) Handle(ctx context.Context, d bus.Delivery) error {
	var msg FileUnitMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		w.Log.Error("malformed file-unit message, dropping", "error", err)
		return d.Nack(false)
	}

	err := safe.Run(w.Log, func() error {
		return w.process(ctx, msg)
	})

	key := registry.Key{TaskID: msg.TaskID.String(), FileID: msg.FileID.String()}
	if err != nil {
		w.Log.Error("file unit failed", "task_id", msg.TaskID, "file_id", msg.FileID, "path", msg.FilePath, "error", err)
		if setErr := w.Registry.SetStatus(ctx, key, task.FileStatus{Code: task.FileStatusFailed, Error: err.Error()}); setErr != nil {
			w.Log.Error("failed to record failure status", "error", setErr)
		}
		// Worker handlers never requeue on application errors (spec.md
		// §7): a deterministic bug would otherwise dead-letter-amplify.
		return d.Nack(false)
	}

	if setErr := w.Registry.SetStatus(ctx, key, task.FileStatus{Code: task.FileStatusCompleted}); setErr != nil {
		w.Log.Error("failed to record completion status", "error", setErr)
	}
	return d.Ack()
}

func (w *Worker) process(ctx context.Context, msg FileUnitMessage) error {
	key := registry.Key{TaskID: msg.TaskID.String(), FileID: msg.FileID.String()}
	if err := w.Registry.SetStatus(ctx, key, task.FileStatus{Code: task.FileStatusTranslating}); err != nil {
		return fmt.Errorf("worker: set TRANSLATING status: %w", err)
	}

	absPath := filepath.Join(msg.WorkDir, filepath.FromSlash(msg.FilePath))

	spec := grammar.ResolveLanguage(msg.TargetLanguage)
	_, err := grammar.RewriteFile(ctx, absPath, spec, msg.TranslateStyle, w.Translator)
	if err != nil {
		return fmt.Errorf("worker: rewrite %s: %w", msg.FilePath, err)
	}
	return nil
}
