package coordinator

import "github.com/google/uuid"

// TaskMessage is the wire schema of a translation_tasks message
// (spec.md §6).
type TaskMessage struct {
	TaskID         uuid.UUID `json:"task_id"`
	S3SourceURL    string    `json:"s3_source_url"`
	S3DestBucket   string    `json:"s3_dest_bucket"`
	S3DestKey      string    `json:"s3_dest_key"`
	TargetLanguage string    `json:"target_language"`
	TranslateStyle string    `json:"translate_style"`
}
