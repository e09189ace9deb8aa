// Package coordinator implements the per-archive coordinator (spec.md
// §4.9, component H): it consumes task messages, drives the task state
// machine through unpack → analyze → fan-out → fan-in → repack → upload,
// and is the only writer of a task's fields once the submission API has
// created the initial row. Grounded on
// original_source/workers/coordinator_worker.py's CoordinatorWorker,
// reworked from asyncio/pika callbacks into the bus.Handler/Bus contract.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/lsilvatti/modxlate/internal/archive"
	"github.com/lsilvatti/modxlate/internal/blobstore"
	"github.com/lsilvatti/modxlate/internal/bus"
	"github.com/lsilvatti/modxlate/internal/registry"
	"github.com/lsilvatti/modxlate/internal/store"
	"github.com/lsilvatti/modxlate/internal/task"
	"github.com/lsilvatti/modxlate/internal/translator"
	"github.com/lsilvatti/modxlate/internal/worker"
	"github.com/lsilvatti/modxlate/pkg/safe"
)

// translatableExtensions is the allow-list spec.md §4.9 step 5 names:
// .ini/.template/mod-info.txt and other config-like files the unpacker
// yields. mod-info.txt is matched by exact base name; everything else by
// extension.
var translatableExtensions = map[string]bool{
	".ini":      true,
	".template": true,
	".cfg":      true,
	".txt":      true,
}

const modInfoFileName = "mod-info.txt"

// DefaultPollInterval is the fan-in poll cadence spec.md §4.9 step 9
// mandates ("every ~2 seconds").
const DefaultPollInterval = 2 * time.Second

const (
	progressStart      = 5.0
	progressDownloaded = 10.0
	progressFanOut     = 20.0
	progressFanInEnd   = 90.0
	progressRepacked   = 95.0
	progressDone       = 100.0
)

// styleSampleLimit and styleSampleCharLimit bound the automatic
// style-hint derivation sample (spec.md §4.9 step 6b).
const (
	styleSampleLimit     = 30
	styleSampleCharLimit = 500
)

const defaultStyleHint = "neutral, literal game-localization tone"

// Coordinator wires together every collaborator one task run needs.
type Coordinator struct {
	Blob       blobstore.Store
	Store      store.Store
	Bus        bus.Bus
	Registry   registry.Registry
	Translator translator.Client
	Log        *slog.Logger

	WorkDirRoot  string
	PollInterval time.Duration
}

// New builds a Coordinator with sane defaults for optional fields.
func New(blob blobstore.Store, st store.Store, b bus.Bus, reg registry.Registry, tr translator.Client, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		Blob:         blob,
		Store:        st,
		Bus:          b,
		Registry:     reg,
		Translator:   tr,
		Log:          log.With("component", "coordinator"),
		WorkDirRoot:  os.TempDir(),
		PollInterval: DefaultPollInterval,
	}
}

// Handle implements bus.Handler for the translation_tasks queue.
func (c *Coordinator) Handle(ctx context.Context, d bus.Delivery) error {
	var msg TaskMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.Log.Error("malformed task message, dropping", "error", err)
		return d.Nack(false)
	}

	log := c.Log.With("task_id", msg.TaskID)

	if err := safe.Run(log, func() error {
		return c.run(ctx, msg, log)
	}); err != nil {
		log.Error("coordination run failed", "error", err)
	}

	// Every exit path acks: redeliveries are made safe by the
	// state-machine guard in run(), not by bus-level requeue (spec.md
	// §4.8, §7 — a coordinator failure is captured in the task row).
	return d.Ack()
}

func (c *Coordinator) run(ctx context.Context, msg TaskMessage, log *slog.Logger) error {
	current, err := c.Store.Get(ctx, msg.TaskID.String())
	if err != nil {
		return fmt.Errorf("coordinator: load task %s: %w", msg.TaskID, err)
	}

	// Step 1: dedup guard. Redelivered or stale messages for a task
	// that has already moved past PENDING are dropped silently.
	if current.Status.IsTerminal() || current.Status != task.StatusPending {
		log.Debug("dropping message for non-PENDING task", "status", current.Status)
		return nil
	}

	workDir := filepath.Join(c.WorkDirRoot, "modxlate-"+msg.TaskID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		c.fail(ctx, msg.TaskID.String(), fmt.Errorf("create working directory: %w", err), log)
		return nil
	}
	defer os.RemoveAll(workDir) // step 13: every exit path removes the working directory.

	if err := c.prepare(ctx, msg, workDir, log); err != nil {
		c.fail(ctx, msg.TaskID.String(), err, log)
		return nil
	}
	return nil
}

// prepare runs steps 2-12 of spec.md §4.9. Any error here causes the
// caller to transition the task to FAILED.
func (c *Coordinator) prepare(ctx context.Context, msg TaskMessage, workDir string, log *slog.Logger) error {
	// Step 2: PENDING -> PREPARING, progress 5.
	if _, err := c.transition(ctx, msg.TaskID.String(), task.StatusPreparing, progressStart); err != nil {
		return err
	}

	// Step 3: download source blob, progress 10. The local copy keeps the
	// source object's extension, which archive.Extract dispatches on.
	ext := strings.ToLower(filepath.Ext(msg.S3SourceURL))
	if strings.HasSuffix(strings.ToLower(msg.S3SourceURL), ".tar.xz") {
		ext = ".tar.xz"
	}
	archivePath := filepath.Join(workDir, "source"+ext)
	if err := c.Blob.Download(ctx, msg.S3SourceURL, archivePath); err != nil {
		return fmt.Errorf("download source: %w", err)
	}
	if _, err := c.transition(ctx, msg.TaskID.String(), task.StatusPreparing, progressDownloaded); err != nil {
		return err
	}

	// Step 4: unpack.
	extractDir := filepath.Join(workDir, "extracted")
	if err := archive.Extract(archivePath, extractDir); err != nil {
		return fmt.Errorf("unpack archive: %w", err)
	}

	// Step 5: enumerate translatable files.
	relPaths, err := enumerateTranslatableFiles(extractDir)
	if err != nil {
		return fmt.Errorf("enumerate files: %w", err)
	}
	log.Info("enumerated translatable files", "count", len(relPaths))

	totalFiles := len(relPaths)
	if _, err := c.Store.Update(ctx, msg.TaskID.String(), func(t *task.Task) error {
		t.TotalFiles = totalFiles
		return nil
	}); err != nil {
		return fmt.Errorf("record total files: %w", err)
	}

	if totalFiles == 0 {
		// Nothing to translate: still a valid, successful run. The state
		// machine has no PREPARING -> FINALIZING edge, so pass through
		// TRANSLATING first.
		if _, err := c.transition(ctx, msg.TaskID.String(), task.StatusTranslating, progressFanOut); err != nil {
			return err
		}
		return c.finalize(ctx, msg, workDir, extractDir, log)
	}

	// Step 6: derive the style hint. Never fails the task.
	styleHint := c.deriveStyleHint(ctx, msg, extractDir, relPaths, log)

	// Step 7: PREPARING -> TRANSLATING, progress 20.
	if _, err := c.transition(ctx, msg.TaskID.String(), task.StatusTranslating, progressFanOut); err != nil {
		return err
	}

	// Step 8: fan out one file-unit message per file.
	expected := make(map[uuid.UUID]bool, totalFiles)
	for _, rel := range relPaths {
		fileID := uuid.New()
		expected[fileID] = true

		fm := worker.FileUnitMessage{
			TaskID:         msg.TaskID,
			FileID:         fileID,
			FilePath:       rel,
			WorkDir:        extractDir,
			TranslateStyle: styleHint,
			TargetLanguage: msg.TargetLanguage,
		}
		body, err := json.Marshal(fm)
		if err != nil {
			return fmt.Errorf("marshal file-unit message for %s: %w", rel, err)
		}
		if err := c.Bus.Publish(ctx, bus.QueueFileTranslationTasks, body, 0); err != nil {
			return fmt.Errorf("publish file-unit message for %s: %w", rel, err)
		}
	}

	// Step 9: fan-in poll loop.
	completed, failed, err := c.pollUntilDone(ctx, msg.TaskID.String(), expected, log)
	if err != nil {
		return err
	}

	// Step 10: any failure aborts the task.
	if failed > 0 {
		return &task.PartialCompletionError{Failed: failed, Total: totalFiles}
	}
	_ = completed

	return c.finalize(ctx, msg, workDir, extractDir, log)
}

// finalize implements steps 11-12: repack, upload, COMPLETED.
func (c *Coordinator) finalize(ctx context.Context, msg TaskMessage, workDir, extractDir string, log *slog.Logger) error {
	if _, err := c.transition(ctx, msg.TaskID.String(), task.StatusFinalizing, progressFanInEnd); err != nil {
		return err
	}

	outputArchive := filepath.Join(workDir, "output.zip")
	if err := archive.Pack(extractDir, outputArchive); err != nil {
		return fmt.Errorf("repack archive: %w", err)
	}

	info, statErr := os.Stat(outputArchive)
	if statErr == nil {
		log.Info("repacked archive", "size", humanize.Bytes(uint64(info.Size())))
	}

	if _, err := c.Blob.Upload(ctx, outputArchive, msg.S3DestBucket, msg.S3DestKey); err != nil {
		return fmt.Errorf("upload result: %w", err)
	}
	if _, err := c.transition(ctx, msg.TaskID.String(), task.StatusFinalizing, progressRepacked); err != nil {
		return err
	}

	if _, err := c.transition(ctx, msg.TaskID.String(), task.StatusCompleted, progressDone); err != nil {
		return err
	}

	_ = c.Registry.DeleteTask(ctx, msg.TaskID.String())
	return nil
}

// pollUntilDone implements step 9 exactly: poll every c.PollInterval,
// tally terminal file units, interpolate progress linearly from 20 to 90
// across the completed fraction, and persist processed_files as the
// completed count. The loop exits once every unit is COMPLETED or FAILED.
func (c *Coordinator) pollUntilDone(ctx context.Context, taskID string, expected map[uuid.UUID]bool, log *slog.Logger) (completed, failed int, err error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	total := len(expected)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		completed, failed = 0, 0
		for fileID := range expected {
			status, ok, getErr := c.Registry.GetStatus(ctx, registry.Key{TaskID: taskID, FileID: fileID.String()})
			if getErr != nil {
				return 0, 0, fmt.Errorf("poll registry for %s: %w", fileID, getErr)
			}
			if !ok {
				continue
			}
			switch status.Code {
			case task.FileStatusCompleted:
				completed++
			case task.FileStatusFailed:
				failed++
			}
		}

		progress := progressFanOut
		if total > 0 {
			fraction := float64(completed) / float64(total)
			progress = progressFanOut + fraction*(progressFanInEnd-progressFanOut)
		}

		if _, err := c.Store.Update(ctx, taskID, func(t *task.Task) error {
			t.ProcessedFiles = completed
			t.Progress = progress
			return nil
		}); err != nil {
			return 0, 0, fmt.Errorf("record fan-in progress: %w", err)
		}

		if completed+failed >= total {
			log.Info("fan-in complete", "completed", completed, "failed", failed, "total", total)
			return completed, failed, nil
		}

		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// deriveStyleHint implements step 6: caller literal, else automatic
// derivation from a bounded sample, else the neutral default. Failures
// are logged, never propagated.
func (c *Coordinator) deriveStyleHint(ctx context.Context, msg TaskMessage, extractDir string, relPaths []string, log *slog.Logger) string {
	if msg.TranslateStyle != "" {
		return msg.TranslateStyle
	}

	samples := sampleTexts(extractDir, relPaths, styleSampleLimit, styleSampleCharLimit)
	if len(samples) == 0 {
		return defaultStyleHint
	}

	hint, err := c.Translator.AnalyzeStyle(ctx, samples)
	if err != nil || strings.TrimSpace(hint) == "" {
		log.Warn("style derivation failed, using default", "error", err)
		return defaultStyleHint
	}
	return hint
}

func (c *Coordinator) transition(ctx context.Context, taskID string, status task.Status, progress float64) (task.Task, error) {
	return c.Store.Update(ctx, taskID, func(t *task.Task) error {
		t.Status = status
		t.Progress = progress
		return nil
	})
}

func (c *Coordinator) fail(ctx context.Context, taskID string, cause error, log *slog.Logger) {
	log.Error("task failed", "error", cause)
	if _, err := c.Store.Update(ctx, taskID, func(t *task.Task) error {
		t.Status = task.StatusFailed
		t.ErrorMessage = cause.Error()
		return nil
	}); err != nil {
		log.Error("failed to record task failure", "error", err)
	}
}

func enumerateTranslatableFiles(root string) ([]string, error) {
	var rel []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !isTranslatableFile(path) {
			return nil
		}
		r, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = append(rel, archive.CanonicalPath(r))
		return nil
	})
	return rel, err
}

func isTranslatableFile(path string) bool {
	if strings.EqualFold(filepath.Base(path), modInfoFileName) {
		return true
	}
	return translatableExtensions[strings.ToLower(filepath.Ext(path))]
}

// sampleTexts scans a bounded number of translatable files for
// allow-listed natural-language values to feed AnalyzeStyle, without
// running the full rewrite pipeline against them.
func sampleTexts(extractDir string, relPaths []string, limit, charLimit int) []string {
	var samples []string
	for _, rel := range relPaths {
		if len(samples) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(extractDir, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if len(samples) >= limit {
				break
			}
			text := extractSampleValue(line)
			if text == "" {
				continue
			}
			if len(text) > charLimit {
				text = text[:charLimit]
			}
			samples = append(samples, text)
		}
	}
	return samples
}

// extractSampleValue pulls a KV line's value when its key looks
// allow-listed, for the style-sample scan only; it does not replicate
// the rewriter's full section/triple-quote-block state machine, since a
// slightly noisy sample cannot corrupt anything (it only feeds a
// best-effort style description).
func extractSampleValue(line string) string {
	idx := strings.IndexAny(line, ":=")
	if idx <= 0 {
		return ""
	}
	key := strings.TrimSpace(line[:idx])
	value := strings.TrimSpace(line[idx+1:])
	if value == "" {
		return ""
	}
	lower := strings.ToLower(key)
	switch {
	case lower == "description", lower == "title", lower == "displaytext", lower == "text":
		return value
	default:
		return ""
	}
}
