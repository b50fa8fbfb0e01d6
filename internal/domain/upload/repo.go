package upload

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, u *UploadStatus) error
	GetByID(ctx context.Context, id uuid.UUID) (*UploadStatus, error)
	Update(ctx context.Context, u *UploadStatus) error

	// ProcessingOlderThan returns non-terminal rows last touched before
	// cutoff, for the stuck sweep.
	ProcessingOlderThan(ctx context.Context, cutoff time.Time) ([]*UploadStatus, error)
}
