package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lsilvatti/modxlate/internal/bus"
	"github.com/lsilvatti/modxlate/internal/registry"
	"github.com/lsilvatti/modxlate/internal/task"
)

type fakeTranslateClient struct{ fail bool }

func (f *fakeTranslateClient) Translate(_ context.Context, batch []string, _, _ string) ([]string, error) {
	out := make([]string, len(batch))
	for i, s := range batch {
		out[i] = "TR:" + s
	}
	return out, nil
}

func (f *fakeTranslateClient) AnalyzeStyle(_ context.Context, _ []string) (string, error) {
	return "", nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDelivery(t *testing.T, msg FileUnitMessage) bus.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	var acked, nacked bool
	return bus.DeliveryForTest(body, &acked, &nacked)
}

func TestWorkerHandleSuccess(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "mod.ini")
	if err := os.WriteFile(file, []byte("[Item]\ndescription: Open the door\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	reg := registry.NewInProcessRegistry(0)
	w := New(&fakeTranslateClient{}, reg, silentLogger())

	taskID, fileID := uuid.New(), uuid.New()
	msg := FileUnitMessage{
		TaskID:         taskID,
		FileID:         fileID,
		FilePath:       "mod.ini",
		WorkDir:        dir,
		TargetLanguage: "zh",
	}

	d := newDelivery(t, msg)
	if err := w.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	status, ok, err := reg.GetStatus(context.Background(), registry.Key{TaskID: taskID.String(), FileID: fileID.String()})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !ok || status.Code != task.FileStatusCompleted {
		t.Fatalf("status = %+v, ok=%v, want COMPLETED", status, ok)
	}

	content, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read rewritten file: %v", err)
	}
	if !strings.Contains(string(content), "TR:Open the door") {
		t.Fatalf("expected rewritten file to contain translated text, got: %s", content)
	}
}

func TestWorkerHandleMissingFileIsFailure(t *testing.T) {
	dir := t.TempDir()
	reg := registry.NewInProcessRegistry(0)
	w := New(&fakeTranslateClient{}, reg, silentLogger())

	taskID, fileID := uuid.New(), uuid.New()
	msg := FileUnitMessage{
		TaskID:   taskID,
		FileID:   fileID,
		FilePath: "does-not-exist.ini",
		WorkDir:  dir,
	}

	d := newDelivery(t, msg)
	if err := w.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle should not itself return an error for an application failure: %v", err)
	}

	status, ok, err := reg.GetStatus(context.Background(), registry.Key{TaskID: taskID.String(), FileID: fileID.String()})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !ok || status.Code != task.FileStatusFailed {
		t.Fatalf("status = %+v, ok=%v, want FAILED", status, ok)
	}
}

