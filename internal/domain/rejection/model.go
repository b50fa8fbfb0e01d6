package rejection

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/volumetria/volumetria/internal/domain/records"
)

// ReasonCode identifies which family of exclusion removed a record.
type ReasonCode string

const (
	ReasonPeriodFilter ReasonCode = "PERIOD_FILTER_AUTOMATIC"
	ReasonBusinessRule ReasonCode = "BUSINESS_RULE_AUTOMATIC"
	ReasonDuplicate    ReasonCode = "DUPLICATE"
)

var reasonCodes = map[ReasonCode]bool{
	ReasonPeriodFilter: true,
	ReasonBusinessRule: true,
	ReasonDuplicate:    true,
}

func ParseReasonCode(s string) (ReasonCode, error) {
	rc := ReasonCode(s)
	if !reasonCodes[rc] {
		return "", fmt.Errorf("unknown reason code %q", s)
	}
	return rc, nil
}

// Record is one ledger entry: the full snapshot of an exam record at the
// moment an exclusion rule removed it. Entries are append-only and keyed so
// the same record is never logged twice for the same reason and batch.
type Record struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	SourceFile  records.SourceFile `db:"source_file" json:"source_file"`
	UploadBatch string             `db:"upload_batch" json:"upload_batch"`
	RecordID    uuid.UUID          `db:"record_id" json:"record_id"`
	ReasonCode  ReasonCode         `db:"reason_code" json:"reason_code"`
	Detail      string             `db:"detail" json:"detail"`
	LineNumber  *int               `db:"line_number" json:"line_number,omitempty"`

	// OriginalData preserves every field of the removed record so the entry
	// can be replayed back into the record store.
	OriginalData records.ExamRecord `db:"original_data" json:"original_data"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Filter narrows ledger queries.
type Filter struct {
	ReasonCode  ReasonCode
	SourceFile  records.SourceFile
	UploadBatch string
}
