package records

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/period"
	"github.com/volumetria/volumetria/pkg/chunk"
)

// UploadTracker is the slice of the upload-status lifecycle the ingestion
// path needs. Implemented by the upload service.
type UploadTracker interface {
	Start(ctx context.Context, fileName string, source SourceFile, batch string, declared int) (uuid.UUID, error)
	Finish(ctx context.Context, id uuid.UUID, inserted, errored int, runErr error) error
}

// PipelineTrigger fires the rule pipeline for a freshly ingested batch.
// Invoked fire-and-forget after a successful ingest.
type PipelineTrigger func(sel Selector, referencePeriod string)

type Service struct {
	repo      Repository
	uploads   UploadTracker
	trigger   PipelineTrigger
	chunkSize int
	log       zerolog.Logger
}

func NewService(repo Repository, uploads UploadTracker, chunkSize int, log zerolog.Logger) *Service {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Service{
		repo:      repo,
		uploads:   uploads,
		chunkSize: chunkSize,
		log:       log.With().Str("component", "records").Logger(),
	}
}

// SetPipelineTrigger attaches an optional post-ingest pipeline trigger.
func (s *Service) SetPipelineTrigger(t PipelineTrigger) { s.trigger = t }

// IngestRow is one raw row as delivered by the upload flow. Classification
// fields may arrive empty or wrong; the pipeline corrects them afterwards.
type IngestRow struct {
	Company         string     `json:"company"`
	PatientName     string     `json:"patient_name"`
	ExamDescription string     `json:"exam_description"`
	Physician       string     `json:"physician"`
	Modality        string     `json:"modality"`
	Specialty       string     `json:"specialty"`
	Category        string     `json:"category"`
	Priority        string     `json:"priority"`
	AccessionNumber string     `json:"accession_number"`
	Value           float64    `json:"value"`
	DateOfExam      *time.Time `json:"date_of_exam"`
	DateOfReport    *time.Time `json:"date_of_report"`
	DateOfDeadline  *time.Time `json:"date_of_deadline"`
}

type IngestRequest struct {
	FileName    string      `json:"file_name"`
	SourceFile  string      `json:"source_file"`
	Rows        []IngestRow `json:"rows"`
	RunPipeline bool        `json:"run_pipeline"`
}

type IngestResult struct {
	UploadID        uuid.UUID `json:"upload_id"`
	UploadBatch     string    `json:"upload_batch"`
	ReferencePeriod string    `json:"reference_period"`
	Inserted        int       `json:"inserted"`
	Errored         int       `json:"errored"`
}

// Ingest writes raw rows into the record store under a fresh upload batch.
// Each row's reference period is derived from its report date by the day-8
// cutover; rows without a report date are counted as errors and skipped.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	source, err := ParseSourceFile(req.SourceFile)
	if err != nil {
		return nil, err
	}
	if len(req.Rows) == 0 {
		return nil, fmt.Errorf("no rows to ingest")
	}

	batch := uuid.New().String()

	var uploadID uuid.UUID
	if s.uploads != nil {
		uploadID, err = s.uploads.Start(ctx, req.FileName, source, batch, len(req.Rows))
		if err != nil {
			return nil, fmt.Errorf("create upload status: %w", err)
		}
	}

	recs := make([]*ExamRecord, 0, len(req.Rows))
	periodVotes := map[string]int{}
	errored := 0
	for _, row := range req.Rows {
		if row.DateOfReport == nil {
			errored++
			continue
		}
		p := period.Derive(*row.DateOfReport).String()
		periodVotes[p]++
		recs = append(recs, &ExamRecord{
			SourceFile:      source,
			UploadBatch:     batch,
			ReferencePeriod: p,
			Modality:        row.Modality,
			Specialty:       row.Specialty,
			Category:        row.Category,
			Priority:        row.Priority,
			Company:         row.Company,
			PatientName:     row.PatientName,
			ExamDescription: row.ExamDescription,
			Physician:       row.Physician,
			AccessionNumber: row.AccessionNumber,
			Value:           row.Value,
			DateOfExam:      row.DateOfExam,
			DateOfReport:    row.DateOfReport,
			DateOfDeadline:  row.DateOfDeadline,
		})
	}

	pos := 0
	res := chunk.Apply(ctx, s.chunkSize,
		func(_ context.Context, limit int) ([]*ExamRecord, error) {
			if pos >= len(recs) {
				return nil, nil
			}
			end := pos + limit
			if end > len(recs) {
				end = len(recs)
			}
			out := recs[pos:end]
			pos = end
			return out, nil
		},
		func(ctx context.Context, items []*ExamRecord) (int, int, error) {
			n, err := s.repo.InsertBatch(ctx, items)
			if err != nil {
				return 0, 0, err
			}
			return n, 0, nil
		})

	inserted := res.Affected
	errored += res.Errored

	if s.uploads != nil {
		var runErr error
		if len(res.Errs) > 0 {
			runErr = res.Errs[0]
		}
		if err := s.uploads.Finish(ctx, uploadID, inserted, errored, runErr); err != nil {
			s.log.Error().Err(err).Str("upload_id", uploadID.String()).Msg("finish upload status")
		}
	}

	dominant := ""
	best := 0
	for p, n := range periodVotes {
		if n > best || (n == best && p > dominant) {
			dominant, best = p, n
		}
	}

	s.log.Info().
		Str("source_file", string(source)).
		Str("upload_batch", batch).
		Str("reference_period", dominant).
		Int("inserted", inserted).
		Int("errored", errored).
		Msg("batch ingested")

	if req.RunPipeline && s.trigger != nil && inserted > 0 {
		s.trigger(Selector{SourceFile: source, UploadBatch: batch}, dominant)
	}

	return &IngestResult{
		UploadID:        uploadID,
		UploadBatch:     batch,
		ReferencePeriod: dominant,
		Inserted:        inserted,
		Errored:         errored,
	}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ExamRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, sel Selector, limit, offset int) ([]*ExamRecord, int, error) {
	if err := sel.Validate(); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, sel, limit, offset)
}
