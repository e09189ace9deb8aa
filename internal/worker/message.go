package worker

import "github.com/google/uuid"

// FileUnitMessage is the wire schema of a file_translation_tasks message
// (spec.md §6).
type FileUnitMessage struct {
	TaskID         uuid.UUID `json:"task_id"`
	FileID         uuid.UUID `json:"file_id"`
	FilePath       string    `json:"file_path"`
	WorkDir        string    `json:"work_dir"`
	TranslateStyle string    `json:"translate_style"`
	TargetLanguage string    `json:"target_language"`
}
