package rejection

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the ledger store. Append never overwrites: an entry that
// collides on (reason_code, upload_batch, record_id) is dropped silently so
// re-running an exclusion rule does not duplicate audit rows.
type Repository interface {
	Append(ctx context.Context, rec *Record) (inserted bool, err error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error)
	ListChunk(ctx context.Context, f Filter, after uuid.UUID, limit int) ([]*Record, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}
