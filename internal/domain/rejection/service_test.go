package rejection

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/records"
)

func sampleRecord(batch, desc string) *records.ExamRecord {
	return &records.ExamRecord{
		ID:              uuid.New(),
		SourceFile:      records.SourceStandard,
		UploadBatch:     batch,
		ReferencePeriod: "2025-06",
		Company:         "HOSPITAL CENTRAL",
		PatientName:     "PACIENTE TESTE",
		ExamDescription: desc,
		Modality:        "RX",
		Value:           42.5,
	}
}

func TestLog_DeduplicatesOnReasonBatchRecord(t *testing.T) {
	ledger := newMemLedger()
	svc := NewService(ledger, &memRecordStore{}, 100, zerolog.Nop())

	rec := sampleRecord("batch-1", "RX TORAX")
	ins, err := svc.Log(context.Background(), rec, ReasonDuplicate, "duplicate accession")
	if err != nil || !ins {
		t.Fatalf("first Log: inserted=%v err=%v", ins, err)
	}
	ins, err = svc.Log(context.Background(), rec, ReasonDuplicate, "duplicate accession")
	if err != nil {
		t.Fatalf("second Log: %v", err)
	}
	if ins {
		t.Error("expected duplicate entry to be dropped")
	}
	if len(ledger.items) != 1 {
		t.Errorf("expected 1 ledger entry, got %d", len(ledger.items))
	}

	// Same record under a different reason is a distinct entry.
	ins, _ = svc.Log(context.Background(), rec, ReasonBusinessRule, "excluded company")
	if !ins {
		t.Error("expected entry under a different reason to insert")
	}
}

func TestReplay_RoundTrip(t *testing.T) {
	ledger := newMemLedger()
	store := &memRecordStore{}
	svc := NewService(ledger, store, 2, zerolog.Nop())

	originals := make(map[uuid.UUID]*records.ExamRecord)
	for i := 0; i < 5; i++ {
		rec := sampleRecord("batch-1", fmt.Sprintf("RX TORAX %d", i))
		originals[rec.ID] = rec
		if _, err := svc.Log(context.Background(), rec, ReasonPeriodFilter, "outside window"); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	res, err := svc.Replay(context.Background(), ReplayRequest{UploadBatch: "batch-1"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Recovered != 5 || res.Removed != 5 {
		t.Fatalf("expected 5 recovered/removed, got %d/%d", res.Recovered, res.Removed)
	}
	if len(ledger.items) != 0 {
		t.Errorf("expected empty ledger after replay, got %d entries", len(ledger.items))
	}
	if len(store.inserted) != 5 {
		t.Fatalf("expected 5 re-inserted records, got %d", len(store.inserted))
	}
	for _, got := range store.inserted {
		want, ok := originals[got.ID]
		if !ok {
			t.Fatalf("unexpected record %s re-inserted", got.ID)
		}
		if got.ExamDescription != want.ExamDescription || got.Value != want.Value ||
			got.ReferencePeriod != want.ReferencePeriod || got.Company != want.Company {
			t.Errorf("record %s lost fields in round trip", got.ID)
		}
	}
}

func TestReplay_FiltersByReasonCode(t *testing.T) {
	ledger := newMemLedger()
	store := &memRecordStore{}
	svc := NewService(ledger, store, 100, zerolog.Nop())

	svc.Log(context.Background(), sampleRecord("batch-1", "A"), ReasonDuplicate, "")
	svc.Log(context.Background(), sampleRecord("batch-1", "B"), ReasonPeriodFilter, "")

	res, err := svc.Replay(context.Background(), ReplayRequest{
		UploadBatch: "batch-1",
		ReasonCode:  string(ReasonDuplicate),
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Recovered != 1 {
		t.Fatalf("expected 1 recovered, got %d", res.Recovered)
	}
	if len(ledger.items) != 1 {
		t.Errorf("expected the period-filter entry to remain, got %d entries", len(ledger.items))
	}
}

func TestReplay_DryRunCountsWithoutMutating(t *testing.T) {
	ledger := newMemLedger()
	store := &memRecordStore{}
	svc := NewService(ledger, store, 100, zerolog.Nop())

	for i := 0; i < 3; i++ {
		svc.Log(context.Background(), sampleRecord("batch-1", fmt.Sprintf("E%d", i)), ReasonBusinessRule, "")
	}

	res, err := svc.Replay(context.Background(), ReplayRequest{UploadBatch: "batch-1", DryRun: true})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !res.DryRun || res.Matched != 3 {
		t.Fatalf("expected dry-run match of 3, got %+v", res)
	}
	if len(ledger.items) != 3 || len(store.inserted) != 0 {
		t.Error("dry run must not mutate ledger or record store")
	}
}

func TestReplay_RestoreFailureLeavesLedgerIntact(t *testing.T) {
	ledger := newMemLedger()
	store := &memRecordStore{failRestore: true}
	svc := NewService(ledger, store, 100, zerolog.Nop())

	for i := 0; i < 3; i++ {
		svc.Log(context.Background(), sampleRecord("batch-1", fmt.Sprintf("E%d", i)), ReasonDuplicate, "")
	}

	res, err := svc.Replay(context.Background(), ReplayRequest{UploadBatch: "batch-1"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Recovered != 0 || res.FailedChunks != 1 {
		t.Fatalf("expected failed chunk and no recovery, got %+v", res)
	}
	if len(ledger.items) != 3 {
		t.Errorf("expected ledger untouched after failed restore, got %d entries", len(ledger.items))
	}
}

// A chunk whose records restored but whose ledger delete failed must be
// replayable again: the retry skips the already-present records and only
// removes the leftover entries.
func TestReplay_RetryAfterDeleteFailureConverges(t *testing.T) {
	ledger := newMemLedger()
	store := &memRecordStore{}
	svc := NewService(ledger, store, 100, zerolog.Nop())

	for i := 0; i < 3; i++ {
		svc.Log(context.Background(), sampleRecord("batch-1", fmt.Sprintf("E%d", i)), ReasonDuplicate, "")
	}

	ledger.failDelete = true
	res, err := svc.Replay(context.Background(), ReplayRequest{UploadBatch: "batch-1"})
	if err != nil {
		t.Fatalf("first Replay: %v", err)
	}
	if res.Recovered != 3 || res.Removed != 0 || res.FailedChunks != 1 {
		t.Fatalf("expected restored records with a failed delete, got %+v", res)
	}
	if len(ledger.items) != 3 {
		t.Fatalf("expected entries kept after failed delete, got %d", len(ledger.items))
	}

	ledger.failDelete = false
	res, err = svc.Replay(context.Background(), ReplayRequest{UploadBatch: "batch-1"})
	if err != nil {
		t.Fatalf("second Replay: %v", err)
	}
	if res.FailedChunks != 0 || res.Removed != 3 {
		t.Fatalf("expected clean retry, got %+v", res)
	}
	if res.Recovered != 0 {
		t.Errorf("retry must skip already-restored records, recovered %d", res.Recovered)
	}
	if len(ledger.items) != 0 {
		t.Errorf("expected empty ledger after retry, got %d entries", len(ledger.items))
	}
	if len(store.inserted) != 3 {
		t.Errorf("expected 3 records exactly once, got %d", len(store.inserted))
	}
}

func TestReplay_RejectsEmptyAndInvalidFilters(t *testing.T) {
	svc := NewService(newMemLedger(), &memRecordStore{}, 100, zerolog.Nop())

	if _, err := svc.Replay(context.Background(), ReplayRequest{}); err == nil {
		t.Error("expected error for empty filter")
	}
	if _, err := svc.Replay(context.Background(), ReplayRequest{ReasonCode: "bogus"}); err == nil {
		t.Error("expected error for unknown reason code")
	}
	if _, err := svc.Replay(context.Background(), ReplayRequest{SourceFile: "bogus"}); err == nil {
		t.Error("expected error for unknown source file")
	}
}
