package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/volumetria/volumetria/internal/domain/period"
	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/pkg/chunk"
)

// splitExams replaces each record whose exam is configured as breakable with
// the derived records of its quebra rule. The value is divided evenly and
// each derived record is reclassified from the catalog. The source record is
// replaced, not excluded, so no ledger entry is written.
type splitExams struct{}

func (splitExams) ID() ID { return "split_exams" }
func (splitExams) Name() string { return "Split breakable exams into derived records" }
func (splitExams) Stage() Stage { return StageExclude }

func (splitExams) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	raw, err := env.Catalog.QuebraRules(ctx)
	if err != nil {
		return nil, err
	}
	out := &Result{RuleID: "split_exams"}
	if len(raw) == 0 {
		return out, nil
	}
	splits := make(map[string][]string, len(raw))
	for name, derived := range raw {
		splits[foldKey(name)] = derived
	}

	cursor := uuid.Nil
	res := chunk.Apply(ctx, env.ChunkSize,
		func(ctx context.Context, limit int) ([]*records.ExamRecord, error) {
			recs, err := env.Records.ListChunk(ctx, sel, cursor, limit)
			if err != nil {
				return nil, err
			}
			if len(recs) > 0 {
				cursor = recs[len(recs)-1].ID
			}
			return recs, nil
		},
		func(ctx context.Context, recs []*records.ExamRecord) (int, int, error) {
			affected, errored := 0, 0
			for _, rec := range recs {
				derived, ok := splits[foldKey(rec.ExamDescription)]
				if !ok || len(derived) == 0 {
					continue
				}
				out.Matched++
				children, err := deriveRecords(ctx, env, rec, derived)
				if err != nil {
					errored++
					continue
				}
				if _, err := env.Records.InsertBatch(ctx, children); err != nil {
					errored++
					continue
				}
				if _, err := env.Records.DeleteByIDs(ctx, []uuid.UUID{rec.ID}); err != nil {
					// Derived rows are already in; the leftover source row
					// will split again on the next run.
					errored++
					continue
				}
				affected++
				out.addExample(rec)
			}
			return affected, errored, nil
		},
	)

	out.Affected = res.Affected
	out.Errored = res.Errored
	out.FailedChunks = res.FailedChunks
	out.Errors = res.ErrStrings()
	return out, nil
}

// deriveRecords builds the replacement records for one split: value divided
// evenly, classification re-derived from the catalog per derived name.
func deriveRecords(ctx context.Context, env *Env, src *records.ExamRecord, derived []string) ([]*records.ExamRecord, error) {
	share := src.Value / float64(len(derived))
	children := make([]*records.ExamRecord, 0, len(derived))
	for _, name := range derived {
		child := *src
		child.ID = uuid.New()
		child.ExamDescription = name
		child.Value = share

		entry, err := env.Catalog.LookupExact(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("lookup %q: %w", name, err)
		}
		if entry != nil {
			if entry.Modality != "" {
				child.Modality = entry.Modality
			}
			if entry.Specialty != "" {
				child.Specialty = entry.Specialty
			}
			if entry.Category != "" {
				child.Category = entry.Category
			}
		}
		children = append(children, &child)
	}
	return children, nil
}
