package rules

import (
	"context"

	"github.com/volumetria/volumetria/internal/domain/period"
	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/internal/domain/reference"
)

// needsClassification reports whether any classification field is absent or
// a placeholder.
func needsClassification(rec *records.ExamRecord) bool {
	return isPlaceholder(rec.Modality) || isPlaceholder(rec.Specialty) || isPlaceholder(rec.Category)
}

// fillFromEntry overwrites only placeholder fields. Non-empty legitimate
// values are never replaced.
func fillFromEntry(rec *records.ExamRecord, e *reference.Entry) bool {
	changed := false
	if isPlaceholder(rec.Modality) && e.Modality != "" && rec.Modality != e.Modality {
		rec.Modality = e.Modality
		changed = true
	}
	if isPlaceholder(rec.Specialty) && e.Specialty != "" && rec.Specialty != e.Specialty {
		rec.Specialty = e.Specialty
		changed = true
	}
	if isPlaceholder(rec.Category) && e.Category != "" && rec.Category != e.Category {
		rec.Category = e.Category
		changed = true
	}
	return changed
}

// classifyCatalog fills modality, specialty and category from the reference
// catalog: exact exam-name match first, substring match second.
type classifyCatalog struct{}

func (classifyCatalog) ID() ID { return "classify_catalog" }
func (classifyCatalog) Name() string { return "Classify from reference catalog" }
func (classifyCatalog) Stage() Stage { return StageClassify }

func (classifyCatalog) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	return applyUpdate(ctx, env, sel, "classify_catalog", func(ctx context.Context, env *Env, rec *records.ExamRecord) (bool, error) {
		if !needsClassification(rec) {
			return false, nil
		}
		entry, err := env.Catalog.LookupExact(ctx, rec.ExamDescription)
		if err != nil {
			return false, err
		}
		if entry == nil {
			entry, err = env.Catalog.LookupSubstring(ctx, rec.ExamDescription)
			if err != nil {
				return false, err
			}
		}
		if entry == nil {
			return false, nil
		}
		return fillFromEntry(rec, entry), nil
	})
}

// modalityDefaults supplies a specialty/category pair for exams with no
// catalog entry, keyed by modality.
var modalityDefaults = map[string]reference.Entry{
	"RX": {Specialty: "Músculo Esquelético", Category: "GERAL"},
	"MG": {Specialty: "Mama", Category: "GERAL"},
	"DO": {Specialty: "Músculo Esquelético", Category: "GERAL"},
	"TC": {Specialty: "Medicina Interna", Category: "GERAL"},
	"RM": {Specialty: "Neuro", Category: "GERAL"},
	"US": {Specialty: "Medicina Interna", Category: "GERAL"},
}

// classifyModalityDefaults applies the per-modality default classification
// to records the catalog could not classify.
type classifyModalityDefaults struct{}

func (classifyModalityDefaults) ID() ID { return "classify_modality_defaults" }
func (classifyModalityDefaults) Name() string { return "Apply per-modality default classification" }
func (classifyModalityDefaults) Stage() Stage { return StageClassify }

func (classifyModalityDefaults) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	return applyUpdate(ctx, env, sel, "classify_modality_defaults", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		if !isPlaceholder(rec.Specialty) && !isPlaceholder(rec.Category) {
			return false, nil
		}
		def, ok := modalityDefaults[foldKey(rec.Modality)]
		if !ok {
			return false, nil
		}
		changed := false
		if isPlaceholder(rec.Specialty) && rec.Specialty != def.Specialty {
			rec.Specialty = def.Specialty
			changed = true
		}
		if isPlaceholder(rec.Category) && rec.Category != def.Category {
			rec.Category = def.Category
			changed = true
		}
		return changed, nil
	})
}

// fixOncoSpecialty folds the deprecated oncology specialty labels into the
// single canonical "Medicina Interna".
type fixOncoSpecialty struct{}

func (fixOncoSpecialty) ID() ID { return "fix_onco_specialty" }
func (fixOncoSpecialty) Name() string { return "Canonicalize oncology specialty labels" }
func (fixOncoSpecialty) Stage() Stage { return StageClassify }

func (fixOncoSpecialty) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	return applyUpdate(ctx, env, sel, "fix_onco_specialty", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		switch foldKey(rec.Specialty) {
		case "ANGIOTCS", "ONCO MEDICINA INTERNA":
			rec.Specialty = "Medicina Interna"
			return true, nil
		}
		return false, nil
	})
}

// disambiguateColunas resolves the ambiguous "Colunas" specialty bucket:
// neurologists' reads go to Neuro, everything else to Músculo Esquelético.
// Category is backfilled from the catalog when available.
type disambiguateColunas struct{}

func (disambiguateColunas) ID() ID { return "disambiguate_colunas" }
func (disambiguateColunas) Name() string { return "Disambiguate Colunas specialty" }
func (disambiguateColunas) Stage() Stage { return StageClassify }

func (disambiguateColunas) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	neuro := make(map[string]bool, len(env.Policy.NeuroPhysicians))
	for name := range env.Policy.NeuroPhysicians {
		neuro[foldKey(name)] = true
	}

	return applyUpdate(ctx, env, sel, "disambiguate_colunas", func(ctx context.Context, env *Env, rec *records.ExamRecord) (bool, error) {
		if foldKey(rec.Specialty) != "COLUNAS" {
			return false, nil
		}
		if neuro[foldKey(rec.Physician)] {
			rec.Specialty = "Neuro"
		} else {
			rec.Specialty = "Músculo Esquelético"
		}
		if isPlaceholder(rec.Category) {
			entry, err := env.Catalog.LookupExact(ctx, rec.ExamDescription)
			if err != nil {
				return false, err
			}
			if entry != nil && entry.Category != "" {
				rec.Category = entry.Category
			}
		}
		return true, nil
	})
}

// fallbackClassification guarantees non-empty classification after the
// classify stage: whatever is still empty gets the generic labels.
type fallbackClassification struct{}

func (fallbackClassification) ID() ID { return "fallback_classification" }
func (fallbackClassification) Name() string { return "Fill classification fallbacks" }
func (fallbackClassification) Stage() Stage { return StageClassify }

func (fallbackClassification) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	return applyUpdate(ctx, env, sel, "fallback_classification", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		changed := false
		if rec.Category == "" {
			rec.Category = "GERAL"
			changed = true
		}
		if rec.Specialty == "" {
			rec.Specialty = "SC"
			changed = true
		}
		return changed, nil
	})
}

// recomputePeriod reassigns reference_period from the report date via the
// day-8 cutover. period.Derive is the single source of truth.
type recomputePeriod struct{}

func (recomputePeriod) ID() ID { return "recompute_period" }
func (recomputePeriod) Name() string { return "Recompute reference period from report date" }
func (recomputePeriod) Stage() Stage { return StageClassify }

func (recomputePeriod) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	return applyUpdate(ctx, env, sel, "recompute_period", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		if rec.DateOfReport == nil {
			return false, nil
		}
		derived := period.Derive(*rec.DateOfReport).String()
		if rec.ReferencePeriod == derived {
			return false, nil
		}
		rec.ReferencePeriod = derived
		return true, nil
	})
}

// correctValues replaces non-positive values with the configured price for
// the exam and modality.
type correctValues struct{}

func (correctValues) ID() ID { return "correct_values" }
func (correctValues) Name() string { return "Correct values from price table" }
func (correctValues) Stage() Stage { return StageClassify }

func (correctValues) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	return applyUpdate(ctx, env, sel, "correct_values", func(ctx context.Context, env *Env, rec *records.ExamRecord) (bool, error) {
		if rec.Value > 0 {
			return false, nil
		}
		price, ok, err := env.Catalog.Price(ctx, rec.ExamDescription, rec.Modality)
		if err != nil {
			return false, err
		}
		if !ok || price <= 0 {
			return false, nil
		}
		rec.Value = price
		return true, nil
	})
}
