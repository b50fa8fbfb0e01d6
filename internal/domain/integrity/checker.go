// Package integrity implements the post-pipeline batch validation: a set of
// weighted checks producing a 0-100 score. The check is advisory, it never
// mutates data.
package integrity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/internal/domain/upload"
)

// Verdict thresholds on the aggregate score.
const (
	ScoreClean    = 80
	ScoreWarnings = 60
)

const (
	VerdictPassed   = "passed"
	VerdictWarnings = "passed_with_warnings"
	VerdictRollback = "rollback_consideration"
)

// Check is one weighted validation outcome.
type Check struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Report is the integrity result for one upload batch.
type Report struct {
	UploadID     uuid.UUID `json:"upload_id"`
	UploadBatch  string    `json:"upload_batch"`
	Score        int       `json:"score"`
	Status       string    `json:"status"`
	PassedChecks []Check   `json:"passed_checks"`
	FailedChecks []Check   `json:"failed_checks"`
	Detail       string    `json:"detail"`
}

// RecordStats is the slice of the record store the checks read.
type RecordStats interface {
	Count(ctx context.Context, sel records.Selector) (int, error)
	CountInvalidValues(ctx context.Context, batch string) (int, error)
	CountMissingRequired(ctx context.Context, batch string) (int, error)
	CountDuplicateKeys(ctx context.Context, batch string) (int, error)
	DistinctPeriods(ctx context.Context, batch string) ([]string, error)
}

// UploadGetter resolves the upload row the check validates against.
type UploadGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*upload.UploadStatus, error)
}

type Service struct {
	stats   RecordStats
	uploads UploadGetter
	log     zerolog.Logger
}

func NewService(stats RecordStats, uploads UploadGetter, log zerolog.Logger) *Service {
	return &Service{
		stats:   stats,
		uploads: uploads,
		log:     log.With().Str("component", "integrity").Logger(),
	}
}

// Validate runs every check against the upload's batch and aggregates the
// weighted score.
func (s *Service) Validate(ctx context.Context, uploadID uuid.UUID, sourceOverride string) (*Report, error) {
	u, err := s.uploads.Get(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", uploadID, err)
	}
	source := u.SourceFile
	if sourceOverride != "" {
		source, err = records.ParseSourceFile(sourceOverride)
		if err != nil {
			return nil, err
		}
	}
	batch := u.UploadBatch()
	if batch == "" {
		return nil, fmt.Errorf("upload %s carries no batch id", uploadID)
	}
	sel := records.Selector{SourceFile: source, UploadBatch: batch}

	checks, err := s.runChecks(ctx, sel, u)
	if err != nil {
		return nil, err
	}

	report := &Report{UploadID: uploadID, UploadBatch: batch}
	var failures []string
	for _, c := range checks {
		if c.Passed {
			report.Score += c.Weight
			report.PassedChecks = append(report.PassedChecks, c)
		} else {
			report.FailedChecks = append(report.FailedChecks, c)
			failures = append(failures, c.Detail)
		}
	}

	switch {
	case report.Score >= ScoreClean:
		report.Status = VerdictPassed
		report.Detail = "batch passed integrity validation"
	case report.Score >= ScoreWarnings:
		report.Status = VerdictWarnings
		report.Detail = "batch passed with warnings: " + strings.Join(failures, "; ")
	default:
		report.Status = VerdictRollback
		report.Detail = "batch requires rollback consideration: " + strings.Join(failures, "; ")
	}

	s.log.Info().
		Str("upload_id", uploadID.String()).
		Str("batch", batch).
		Int("score", report.Score).
		Str("status", report.Status).
		Msg("integrity check finished")
	return report, nil
}

func (s *Service) runChecks(ctx context.Context, sel records.Selector, u *upload.UploadStatus) ([]Check, error) {
	actual, err := s.stats.Count(ctx, sel)
	if err != nil {
		return nil, err
	}
	invalid, err := s.stats.CountInvalidValues(ctx, sel.UploadBatch)
	if err != nil {
		return nil, err
	}
	missing, err := s.stats.CountMissingRequired(ctx, sel.UploadBatch)
	if err != nil {
		return nil, err
	}
	dupes, err := s.stats.CountDuplicateKeys(ctx, sel.UploadBatch)
	if err != nil {
		return nil, err
	}
	periods, err := s.stats.DistinctPeriods(ctx, sel.UploadBatch)
	if err != nil {
		return nil, err
	}

	expected := u.Inserted
	if expected == 0 {
		expected = u.Processed
	}

	return []Check{
		{
			Name:   "count_match",
			Weight: 30,
			Passed: actual == expected,
			Detail: fmt.Sprintf("expected %d rows, found %d", expected, actual),
		},
		{
			Name:   "valid_values",
			Weight: 20,
			Passed: invalid == 0,
			Detail: fmt.Sprintf("%d rows with null or negative value", invalid),
		},
		{
			Name:   "required_fields",
			Weight: 20,
			Passed: missing == 0,
			Detail: fmt.Sprintf("%d rows with empty required fields", missing),
		},
		{
			Name:   "no_duplicates",
			Weight: 15,
			Passed: dupes == 0,
			Detail: fmt.Sprintf("%d duplicate natural keys", dupes),
		},
		{
			Name:   "single_period",
			Weight: 15,
			Passed: len(periods) == 1,
			Detail: fmt.Sprintf("%d distinct reference periods: %s", len(periods), strings.Join(periods, ", ")),
		},
	}, nil
}
