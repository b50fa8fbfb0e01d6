package rules

import (
	"context"
	"strings"

	"github.com/volumetria/volumetria/internal/domain/period"
	"github.com/volumetria/volumetria/internal/domain/records"
)

// trimFields collapses whitespace in free-text fields and canonicalizes the
// exam description to uppercase.
type trimFields struct{}

func (trimFields) ID() ID { return "trim_fields" }
func (trimFields) Name() string { return "Trim and collapse free-text fields" }
func (trimFields) Stage() Stage { return StageNormalize }

func (trimFields) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	return applyUpdate(ctx, env, sel, "trim_fields", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		company := collapseSpaces(rec.Company)
		patient := collapseSpaces(rec.PatientName)
		physician := collapseSpaces(rec.Physician)
		desc := strings.ToUpper(collapseSpaces(rec.ExamDescription))

		if company == rec.Company && patient == rec.PatientName &&
			physician == rec.Physician && desc == rec.ExamDescription {
			return false, nil
		}
		rec.Company = company
		rec.PatientName = patient
		rec.Physician = physician
		rec.ExamDescription = desc
		return true, nil
	})
}

// canonicalCompany rewrites client-name variants to the canonical company
// name from the alias table.
type canonicalCompany struct{}

func (canonicalCompany) ID() ID { return "canonical_company" }
func (canonicalCompany) Name() string { return "Canonicalize company names" }
func (canonicalCompany) Stage() Stage { return StageNormalize }

func (canonicalCompany) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	raw, err := env.Catalog.ClientAliases(ctx)
	if err != nil {
		return nil, err
	}
	aliases := make(map[string]string, len(raw))
	for alias, canonical := range raw {
		aliases[foldKey(alias)] = canonical
	}

	return applyUpdate(ctx, env, sel, "canonical_company", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		canonical, ok := aliases[foldKey(rec.Company)]
		if !ok || canonical == rec.Company {
			return false, nil
		}
		rec.Company = canonical
		return true, nil
	})
}

// builtinPriorities maps folded priority spellings to the canonical
// vocabulary. INTERNADO folds to ROTINA by billing policy.
var builtinPriorities = map[string]string{
	"URGENCIA":  records.PriorityUrgency,
	"ROTINA":    records.PriorityRoutine,
	"ELETIVO":   records.PriorityElective,
	"ELETIVA":   records.PriorityElective,
	"INTERNADO": records.PriorityRoutine,
}

// normalizePriority standardizes the priority field to the canonical
// vocabulary using the synonym table, falling back to built-in fixes.
type normalizePriority struct{}

func (normalizePriority) ID() ID { return "normalize_priority" }
func (normalizePriority) Name() string { return "Normalize priority vocabulary" }
func (normalizePriority) Stage() Stage { return StageNormalize }

func (normalizePriority) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	raw, err := env.Catalog.PrioritySynonyms(ctx)
	if err != nil {
		return nil, err
	}
	synonyms := make(map[string]string, len(raw)+len(builtinPriorities))
	for k, v := range builtinPriorities {
		synonyms[k] = v
	}
	for syn, canonical := range raw {
		synonyms[foldKey(syn)] = canonical
	}

	return applyUpdate(ctx, env, sel, "normalize_priority", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		canonical, ok := synonyms[foldKey(rec.Priority)]
		if !ok || canonical == rec.Priority {
			return false, nil
		}
		rec.Priority = canonical
		return true, nil
	})
}

// fixModalityCRDX remaps the deprecated CR and DX modality codes. The
// description decides between plain radiography and mammography.
type fixModalityCRDX struct{}

func (fixModalityCRDX) ID() ID { return "fix_modality_cr_dx" }
func (fixModalityCRDX) Name() string { return "Remap CR/DX modality codes" }
func (fixModalityCRDX) Stage() Stage { return StageNormalize }

func (fixModalityCRDX) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	return applyUpdate(ctx, env, sel, "fix_modality_cr_dx", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		m := foldKey(rec.Modality)
		if m != "CR" && m != "DX" {
			return false, nil
		}
		if strings.Contains(foldKey(rec.ExamDescription), "MAMOGRAFIA") {
			rec.Modality = "MG"
		} else {
			rec.Modality = "RX"
		}
		return true, nil
	})
}

// fixModalityBMD remaps the BMD bone-densitometry code to DO.
type fixModalityBMD struct{}

func (fixModalityBMD) ID() ID { return "fix_modality_bmd" }
func (fixModalityBMD) Name() string { return "Remap BMD modality code" }
func (fixModalityBMD) Stage() Stage { return StageNormalize }

func (fixModalityBMD) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	return applyUpdate(ctx, env, sel, "fix_modality_bmd", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		if foldKey(rec.Modality) != "BMD" {
			return false, nil
		}
		rec.Modality = "DO"
		return true, nil
	})
}
