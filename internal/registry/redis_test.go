package registry

import "testing"

func TestStatusKeyShape(t *testing.T) {
	got := statusKey(Key{TaskID: "task-1", FileID: "file-2"})
	want := "file_task:task-1:file-2:status"
	if got != want {
		t.Fatalf("statusKey = %q, want %q", got, want)
	}
}

func TestTaskIndexKeyShape(t *testing.T) {
	got := taskIndexKey("task-1")
	want := "file_task:task-1:__index"
	if got != want {
		t.Fatalf("taskIndexKey = %q, want %q", got, want)
	}
}
