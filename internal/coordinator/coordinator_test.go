package coordinator

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lsilvatti/modxlate/internal/bus"
	"github.com/lsilvatti/modxlate/internal/registry"
	"github.com/lsilvatti/modxlate/internal/store"
	"github.com/lsilvatti/modxlate/internal/task"
	"github.com/lsilvatti/modxlate/internal/worker"
)

func jsonMarshal(v any) ([]byte, error) { return json.Marshal(v) }

// fakeBlobStore keeps uploaded/downloaded bytes in memory, keyed by the
// s3://bucket/key URI, so tests never touch a network.
type fakeBlobStore struct {
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) put(bucket, key string, data []byte) string {
	uri := "s3://" + bucket + "/" + key
	f.objects[uri] = data
	return uri
}

func (f *fakeBlobStore) Download(_ context.Context, uri, localPath string) error {
	data, ok := f.objects[uri]
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (f *fakeBlobStore) Upload(_ context.Context, localPath, bucket, key string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	uri := "s3://" + bucket + "/" + key
	f.objects[uri] = data
	return uri, nil
}

func (f *fakeBlobStore) PresignPut(_ context.Context, bucket, key string, _ time.Duration, _ string) (string, error) {
	return "https://presigned.example/" + bucket + "/" + key + "?op=put", nil
}

func (f *fakeBlobStore) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://presigned.example/" + bucket + "/" + key + "?op=get", nil
}

type fakeTranslateClient struct{ fail bool }

func (c *fakeTranslateClient) Translate(_ context.Context, batch []string, _, _ string) ([]string, error) {
	out := make([]string, len(batch))
	for i, s := range batch {
		out[i] = "TR:" + s
	}
	return out, nil
}

func (c *fakeTranslateClient) AnalyzeStyle(_ context.Context, _ []string) (string, error) {
	return "neutral", nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newZipFixture(t *testing.T, dir string) string {
	t.Helper()
	archivePath := filepath.Join(dir, "source.zip")
	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("create fixture archive: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("mod-info.txt")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := w.Write([]byte("[Mod]\ndescription: Open the door\n")); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return archivePath
}

// syncFanOutBus is a Bus whose Publish hands each file-unit message
// directly to a worker.Worker, synchronously, simulating the full
// fan-out/fan-in loop without a real broker or goroutine pool.
type syncFanOutBus struct {
	w       *worker.Worker
	forceFail bool
}

func (b *syncFanOutBus) Declare(context.Context, string) error { return nil }

func (b *syncFanOutBus) Publish(ctx context.Context, queue string, body []byte, _ uint8) error {
	if queue != bus.QueueFileTranslationTasks {
		return nil
	}
	if b.forceFail {
		// Simulate a worker that can never find its file, while keeping
		// the real task_id/file_id so the coordinator's fan-in poll sees
		// the FAILED status land under the key it is actually watching.
		var fm worker.FileUnitMessage
		if err := json.Unmarshal(body, &fm); err != nil {
			return err
		}
		fm.FilePath = "does-not-exist.ini"
		redirected, err := json.Marshal(fm)
		if err != nil {
			return err
		}
		body = redirected
	}
	var acked, nacked bool
	d := bus.DeliveryForTest(body, &acked, &nacked)
	return b.w.Handle(ctx, d)
}

func (b *syncFanOutBus) Consume(context.Context, string, int, bus.Handler) error { return nil }
func (b *syncFanOutBus) Purge(context.Context, string) (int, error)             { return 0, nil }
func (b *syncFanOutBus) Close() error                                           { return nil }

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

func TestCoordinatorHappyPath(t *testing.T) {
	blob := newFakeBlobStore()
	srcDir := t.TempDir()
	archivePath := newZipFixture(t, srcDir)
	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	sourceURI := blob.put("src-bucket", "archive.zip", data)

	reg := registry.NewInProcessRegistry(0)
	tr := &fakeTranslateClient{}
	w := worker.New(tr, reg, silentLogger())

	st := newTestStore(t)
	taskID := uuid.New()
	if err := st.Create(context.Background(), task.Task{
		ID:             taskID,
		SourceURL:      sourceURI,
		DestBucket:     "dst-bucket",
		DestKey:        "result.zip",
		TargetLanguage: "zh",
		Status:         task.StatusPending,
	}); err != nil {
		t.Fatalf("create task row: %v", err)
	}

	c := New(blob, st, &syncFanOutBus{w: w}, reg, tr, silentLogger())
	c.WorkDirRoot = t.TempDir()
	c.PollInterval = time.Millisecond

	msg := TaskMessage{
		TaskID:         taskID,
		S3SourceURL:    sourceURI,
		S3DestBucket:   "dst-bucket",
		S3DestKey:      "result.zip",
		TargetLanguage: "zh",
	}
	body, err := jsonMarshal(msg)
	if err != nil {
		t.Fatalf("marshal task message: %v", err)
	}

	var acked, nacked bool
	d := bus.DeliveryForTest(body, &acked, &nacked)

	if err := c.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !acked {
		t.Fatalf("expected delivery to be acked")
	}
	if nacked {
		t.Fatalf("expected delivery not to be nacked")
	}

	final, err := st.Get(context.Background(), taskID.String())
	if err != nil {
		t.Fatalf("Get final task: %v", err)
	}
	if final.Status != task.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED (error=%q)", final.Status, final.ErrorMessage)
	}
	if final.Progress != progressDone {
		t.Fatalf("progress = %v, want %v", final.Progress, progressDone)
	}
	if final.TotalFiles != 1 || final.ProcessedFiles != 1 {
		t.Fatalf("total/processed = %d/%d, want 1/1", final.TotalFiles, final.ProcessedFiles)
	}

	if _, ok := blob.objects["s3://dst-bucket/result.zip"]; !ok {
		t.Fatalf("expected result archive to be uploaded")
	}
}

func TestCoordinatorDedupGuardSkipsNonPendingTask(t *testing.T) {
	blob := newFakeBlobStore()
	reg := registry.NewInProcessRegistry(0)
	tr := &fakeTranslateClient{}
	st := newTestStore(t)

	taskID := uuid.New()
	if err := st.Create(context.Background(), task.Task{
		ID:             taskID,
		SourceURL:      "s3://src/archive.zip",
		DestBucket:     "dst",
		DestKey:        "out.zip",
		TargetLanguage: "zh",
		Status:         task.StatusPending,
	}); err != nil {
		t.Fatalf("create task row: %v", err)
	}
	if _, err := st.Update(context.Background(), taskID.String(), func(tk *task.Task) error {
		tk.Status = task.StatusPreparing
		return nil
	}); err != nil {
		t.Fatalf("force task to PREPARING: %v", err)
	}

	c := New(blob, st, &syncFanOutBus{}, reg, tr, silentLogger())
	c.WorkDirRoot = t.TempDir()

	msg := TaskMessage{TaskID: taskID, S3SourceURL: "s3://src/archive.zip", S3DestBucket: "dst", S3DestKey: "out.zip", TargetLanguage: "zh"}
	body, err := jsonMarshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var acked, nacked bool
	d := bus.DeliveryForTest(body, &acked, &nacked)

	if err := c.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !acked {
		t.Fatalf("expected dedup-guarded message to be acked")
	}

	final, err := st.Get(context.Background(), taskID.String())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != task.StatusPreparing {
		t.Fatalf("dedup guard should not have touched status, got %s", final.Status)
	}
}

func TestCoordinatorPartialFailureFailsTask(t *testing.T) {
	blob := newFakeBlobStore()
	srcDir := t.TempDir()
	archivePath := newZipFixture(t, srcDir)
	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	sourceURI := blob.put("src-bucket", "archive.zip", data)

	reg := registry.NewInProcessRegistry(0)
	tr := &fakeTranslateClient{}
	w := worker.New(tr, reg, silentLogger())

	st := newTestStore(t)
	taskID := uuid.New()
	if err := st.Create(context.Background(), task.Task{
		ID:             taskID,
		SourceURL:      sourceURI,
		DestBucket:     "dst-bucket",
		DestKey:        "result.zip",
		TargetLanguage: "zh",
		Status:         task.StatusPending,
	}); err != nil {
		t.Fatalf("create task row: %v", err)
	}

	c := New(blob, st, &syncFanOutBus{w: w, forceFail: true}, reg, tr, silentLogger())
	c.WorkDirRoot = t.TempDir()
	c.PollInterval = time.Millisecond

	msg := TaskMessage{TaskID: taskID, S3SourceURL: sourceURI, S3DestBucket: "dst-bucket", S3DestKey: "result.zip", TargetLanguage: "zh"}
	body, err := jsonMarshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var acked, nacked bool
	d := bus.DeliveryForTest(body, &acked, &nacked)

	if err := c.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !acked {
		t.Fatalf("expected delivery to be acked even on task failure")
	}

	final, err := st.Get(context.Background(), taskID.String())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != task.StatusFailed {
		t.Fatalf("status = %s, want FAILED", final.Status)
	}
	if final.ErrorMessage == "" {
		t.Fatalf("expected a non-empty error message")
	}
}
