package upload

import (
	"time"

	"github.com/google/uuid"

	"github.com/volumetria/volumetria/internal/domain/records"
)

// Status is the lifecycle state of one ingestion invocation.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusStuck      Status = "stuck"
)

// Terminal reports whether the status can no longer change. Stuck is not
// terminal: a slow ingestion that eventually finishes may still close the row.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// UploadStatus tracks one ingestion+pipeline invocation. The UI polls it by
// id until a terminal status appears.
type UploadStatus struct {
	ID         uuid.UUID          `db:"id" json:"id"`
	FileName   string             `db:"file_name" json:"file_name"`
	SourceFile records.SourceFile `db:"source_file" json:"source_file"`
	Status     Status             `db:"status" json:"status"`
	Processed  int                `db:"processed" json:"processed"`
	Inserted   int                `db:"inserted" json:"inserted"`
	Updated    int                `db:"updated" json:"updated"`
	Errored    int                `db:"errored" json:"errored"`

	// Details carries invocation metadata, most importantly the batch id
	// the records were stamped with.
	Details map[string]any `db:"details" json:"details"`

	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// UploadBatch extracts the batch id from the details blob.
func (u *UploadStatus) UploadBatch() string {
	if u.Details == nil {
		return ""
	}
	batch, _ := u.Details["upload_batch"].(string)
	return batch
}
