package upload

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/records"
)

// RecordCounter tells the sweep whether a batch's records actually landed.
type RecordCounter interface {
	Count(ctx context.Context, sel records.Selector) (int, error)
}

type Service struct {
	repo         Repository
	counter      RecordCounter
	stuckTimeout time.Duration
	log          zerolog.Logger
}

func NewService(repo Repository, counter RecordCounter, stuckTimeout time.Duration, log zerolog.Logger) *Service {
	if stuckTimeout <= 0 {
		stuckTimeout = 30 * time.Minute
	}
	return &Service{
		repo:         repo,
		counter:      counter,
		stuckTimeout: stuckTimeout,
		log:          log.With().Str("component", "upload").Logger(),
	}
}

// Start opens the tracking row for one ingestion. Implements the record
// service's UploadTracker.
func (s *Service) Start(ctx context.Context, fileName string, source records.SourceFile, batch string, declared int) (uuid.UUID, error) {
	u := &UploadStatus{
		ID:         uuid.New(),
		FileName:   fileName,
		SourceFile: source,
		Status:     StatusProcessing,
		Processed:  declared,
		Details:    map[string]any{"upload_batch": batch},
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return uuid.Nil, err
	}
	return u.ID, nil
}

// Finish closes the tracking row with the ingestion outcome. The first
// terminal outcome wins: a row the sweep already completed or failed is
// left as is.
func (s *Service) Finish(ctx context.Context, id uuid.UUID, inserted, errored int, runErr error) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Status.Terminal() {
		s.log.Warn().
			Str("upload_id", id.String()).
			Str("status", string(u.Status)).
			Msg("upload already finished")
		return nil
	}
	u.Inserted = inserted
	u.Errored = errored
	u.Status = StatusCompleted
	if runErr != nil {
		u.Status = StatusError
		if u.Details == nil {
			u.Details = map[string]any{}
		}
		u.Details["error"] = runErr.Error()
	}
	now := time.Now()
	u.FinishedAt = &now
	return s.repo.Update(ctx, u)
}

// Get returns the status row for polling.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*UploadStatus, error) {
	return s.repo.GetByID(ctx, id)
}

// SweepStuck reclassifies rows that sat in processing beyond the timeout.
// When the batch's records are present the upload actually finished and the
// row is completed; otherwise it is marked stuck for operator attention.
// Returns how many rows were reclassified.
func (s *Service) SweepStuck(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.stuckTimeout)
	stale, err := s.repo.ProcessingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, u := range stale {
		sel := records.Selector{SourceFile: u.SourceFile, UploadBatch: u.UploadBatch()}
		n := 0
		if sel.UploadBatch != "" {
			n, err = s.counter.Count(ctx, sel)
			if err != nil {
				s.log.Error().Err(err).Str("upload_id", u.ID.String()).Msg("sweep count failed")
				continue
			}
		}

		if n > 0 {
			u.Status = StatusCompleted
			u.Inserted = n
		} else {
			u.Status = StatusStuck
		}
		now := time.Now()
		u.FinishedAt = &now
		if err := s.repo.Update(ctx, u); err != nil {
			s.log.Error().Err(err).Str("upload_id", u.ID.String()).Msg("sweep update failed")
			continue
		}
		swept++
		s.log.Warn().
			Str("upload_id", u.ID.String()).
			Str("file", u.FileName).
			Str("status", string(u.Status)).
			Msg("reclassified stale upload")
	}
	return swept, nil
}

// SweepLoop runs SweepStuck on the given interval until ctx is cancelled.
func (s *Service) SweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepStuck(ctx); err != nil {
				s.log.Error().Err(err).Msg("stuck-upload sweep failed")
			}
		}
	}
}
