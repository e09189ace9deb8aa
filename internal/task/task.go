// Package task holds the data model shared by the coordinator, the task
// store, and the completion registry: the Task row, the transient FileUnit
// work item, and the per-file status slot.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is one of the six states of the task lifecycle (spec §4.8).
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusPreparing   Status = "PREPARING"
	StatusTranslating Status = "TRANSLATING"
	StatusFinalizing  Status = "FINALIZING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
)

// IsTerminal reports whether no further transitions are possible from s
// without going through the explicit retry entry point.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one row per archive submission.
type Task struct {
	ID             uuid.UUID
	SourceURL      string // s3://bucket/key of the uploaded archive
	DestBucket     string
	DestKey        string
	TargetLanguage string
	StyleHint      string // caller-supplied literal; may be empty
	Status         Status
	Progress       float64 // [0,100]
	TotalFiles     int
	ProcessedFiles int
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// FileUnit is one translatable file within a task's extracted tree. It is
// transient: minted by the coordinator at fan-out time and never persisted
// beyond the lifetime of the run.
type FileUnit struct {
	TaskID         uuid.UUID
	FileID         uuid.UUID
	RelPath        string // forward-slash relative path inside the work dir
	WorkDir        string // absolute path to the task's working directory
	StyleHint      string
	TargetLanguage string
}

// FileStatusCode is the status of one FileUnit as reported by a worker and
// polled by the owning coordinator via the completion registry.
type FileStatusCode string

const (
	FileStatusPending     FileStatusCode = "PENDING"
	FileStatusTranslating FileStatusCode = "TRANSLATING"
	FileStatusCompleted   FileStatusCode = "COMPLETED"
	FileStatusFailed      FileStatusCode = "FAILED"
)

// FileStatus is the value stored in the completion registry for a single
// (task_id, file_id) pair.
type FileStatus struct {
	Code  FileStatusCode
	Error string
}

// Terminal reports whether the file unit has reached COMPLETED or FAILED.
func (s FileStatus) Terminal() bool {
	return s.Code == FileStatusCompleted || s.Code == FileStatusFailed
}
