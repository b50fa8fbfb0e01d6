package records

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the record store access layer. Bulk consumers iterate with
// ListChunk keyset pagination so rows deleted or mutated mid-scan do not
// shift the cursor.
type Repository interface {
	InsertBatch(ctx context.Context, recs []*ExamRecord) (int, error)
	// RestoreBatch re-inserts previously deleted rows under their original
	// ids, skipping rows that already exist so a retry converges.
	RestoreBatch(ctx context.Context, recs []*ExamRecord) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ExamRecord, error)
	List(ctx context.Context, sel Selector, limit, offset int) ([]*ExamRecord, int, error)
	ListChunk(ctx context.Context, sel Selector, after uuid.UUID, limit int) ([]*ExamRecord, error)
	Update(ctx context.Context, rec *ExamRecord) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	Count(ctx context.Context, sel Selector) (int, error)

	// Integrity queries, all scoped to one upload batch.
	CountInvalidValues(ctx context.Context, batch string) (int, error)
	CountMissingRequired(ctx context.Context, batch string) (int, error)
	CountDuplicateKeys(ctx context.Context, batch string) (int, error)
	DistinctPeriods(ctx context.Context, batch string) ([]string, error)
}
