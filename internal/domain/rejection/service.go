package rejection

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/pkg/chunk"
)

// RecordStore is the slice of the record store replay needs. RestoreBatch
// keeps original record ids and skips rows that already exist, so a chunk
// whose ledger delete failed can be replayed again without tripping over
// its own earlier insert.
type RecordStore interface {
	RestoreBatch(ctx context.Context, recs []*records.ExamRecord) (int, error)
}

type Service struct {
	ledger    Repository
	recs      RecordStore
	chunkSize int
	log       zerolog.Logger
}

func NewService(ledger Repository, recs RecordStore, chunkSize int, log zerolog.Logger) *Service {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Service{
		ledger:    ledger,
		recs:      recs,
		chunkSize: chunkSize,
		log:       log.With().Str("component", "rejection").Logger(),
	}
}

// Log snapshots rec into the ledger under the given reason. Duplicate
// entries for the same (reason, batch, record) are dropped by the store.
func (s *Service) Log(ctx context.Context, rec *records.ExamRecord, reason ReasonCode, detail string) (bool, error) {
	entry := &Record{
		ID:           uuid.New(),
		SourceFile:   rec.SourceFile,
		UploadBatch:  rec.UploadBatch,
		RecordID:     rec.ID,
		ReasonCode:   reason,
		Detail:       detail,
		OriginalData: *rec,
	}
	return s.ledger.Append(ctx, entry)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	return s.ledger.List(ctx, f, limit, offset)
}

type ReplayRequest struct {
	ReasonCode  string `json:"reason_code"`
	SourceFile  string `json:"source_file"`
	UploadBatch string `json:"upload_batch"`
	DryRun      bool   `json:"dry_run"`
}

type ReplayResult struct {
	Matched      int      `json:"matched"`
	Recovered    int      `json:"recovered"`
	Removed      int      `json:"removed"`
	FailedChunks int      `json:"failed_chunks"`
	DryRun       bool     `json:"dry_run"`
	Errors       []string `json:"errors,omitempty"`
}

// Replay moves ledger entries matching the filter back into the record
// store and deletes the consumed entries. A dry run only counts matches.
// Chunks fail independently: an error leaves that chunk's entries in the
// ledger and replay moves on. The restore skips records that already exist,
// so a chunk that restored its records but failed to delete its entries
// converges on the next replay instead of failing forever.
func (s *Service) Replay(ctx context.Context, req ReplayRequest) (*ReplayResult, error) {
	f := Filter{UploadBatch: req.UploadBatch}
	if req.ReasonCode != "" {
		rc, err := ParseReasonCode(req.ReasonCode)
		if err != nil {
			return nil, err
		}
		f.ReasonCode = rc
	}
	if req.SourceFile != "" {
		sf, err := records.ParseSourceFile(req.SourceFile)
		if err != nil {
			return nil, err
		}
		f.SourceFile = sf
	}
	if f.ReasonCode == "" && f.SourceFile == "" && f.UploadBatch == "" {
		return nil, fmt.Errorf("replay requires at least one of reason_code, source_file, upload_batch")
	}

	if req.DryRun {
		_, total, err := s.ledger.List(ctx, f, 1, 0)
		if err != nil {
			return nil, err
		}
		return &ReplayResult{Matched: total, DryRun: true}, nil
	}

	cursor := uuid.Nil
	recovered := 0
	res := chunk.Apply(ctx, s.chunkSize,
		func(ctx context.Context, limit int) ([]*Record, error) {
			entries, err := s.ledger.ListChunk(ctx, f, cursor, limit)
			if err != nil {
				return nil, err
			}
			if len(entries) > 0 {
				cursor = entries[len(entries)-1].ID
			}
			return entries, nil
		},
		func(ctx context.Context, entries []*Record) (int, int, error) {
			recs := make([]*records.ExamRecord, len(entries))
			ids := make([]uuid.UUID, len(entries))
			for i, e := range entries {
				snap := e.OriginalData
				recs[i] = &snap
				ids[i] = e.ID
			}
			restored, err := s.recs.RestoreBatch(ctx, recs)
			if err != nil {
				return 0, 0, fmt.Errorf("restore records: %w", err)
			}
			recovered += restored
			removed, err := s.ledger.DeleteByIDs(ctx, ids)
			if err != nil {
				return 0, 0, fmt.Errorf("delete ledger entries: %w", err)
			}
			return int(removed), 0, nil
		},
	)

	s.log.Info().
		Str("reason_code", req.ReasonCode).
		Str("upload_batch", req.UploadBatch).
		Int("recovered", recovered).
		Int("removed", res.Affected).
		Int("failed_chunks", res.FailedChunks).
		Msg("ledger replay finished")

	return &ReplayResult{
		Matched:      res.Processed,
		Recovered:    recovered,
		Removed:      res.Affected,
		FailedChunks: res.FailedChunks,
		Errors:       res.ErrStrings(),
	}, nil
}
