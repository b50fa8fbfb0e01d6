package rules

import (
	"context"
	"fmt"

	"github.com/volumetria/volumetria/internal/domain/period"
	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/internal/domain/rejection"
)

// excludePeriod removes records of non-retroactive files whose dates fall
// outside the billing window of the reference period: date_of_exam must lie
// in [first, last] of the month, date_of_report in [first, day 7 of the next
// month]. Every bound is inclusive.
type excludePeriod struct{}

func (excludePeriod) ID() ID { return "exclude_period" }
func (excludePeriod) Name() string { return "Exclude records outside billing window" }
func (excludePeriod) Stage() Stage { return StageExclude }

func (excludePeriod) Apply(ctx context.Context, env *Env, sel records.Selector, p period.Period) (*Result, error) {
	if sel.SourceFile.IsRetroactive() {
		return &Result{RuleID: "exclude_period"}, nil
	}
	if p.IsZero() {
		return nil, fmt.Errorf("exclude_period: reference period required")
	}
	return applyExclusion(ctx, env, sel, "exclude_period", rejection.ReasonPeriodFilter, func(rec *records.ExamRecord) (bool, string) {
		if rec.DateOfExam != nil && !p.ContainsExamDate(*rec.DateOfExam) {
			return true, fmt.Sprintf("date_of_exam %s outside %s", rec.DateOfExam.Format("2006-01-02"), p)
		}
		if rec.DateOfReport != nil && !p.ContainsReportDate(*rec.DateOfReport) {
			return true, fmt.Sprintf("date_of_report %s outside billing window of %s", rec.DateOfReport.Format("2006-01-02"), p)
		}
		return false, ""
	})
}

// excludePeriodRetroactive removes records of retroactive files that are not
// genuinely retroactive: the exam must predate the reference month and the
// report must land inside the billing window [day 8, day 7 next month].
type excludePeriodRetroactive struct{}

func (excludePeriodRetroactive) ID() ID { return "exclude_period_retroactive" }
func (excludePeriodRetroactive) Name() string { return "Exclude non-retroactive records from retroactive files" }
func (excludePeriodRetroactive) Stage() Stage { return StageExclude }

func (excludePeriodRetroactive) Apply(ctx context.Context, env *Env, sel records.Selector, p period.Period) (*Result, error) {
	if !sel.SourceFile.IsRetroactive() {
		return &Result{RuleID: "exclude_period_retroactive"}, nil
	}
	if p.IsZero() {
		return nil, fmt.Errorf("exclude_period_retroactive: reference period required")
	}
	return applyExclusion(ctx, env, sel, "exclude_period_retroactive", rejection.ReasonPeriodFilter, func(rec *records.ExamRecord) (bool, string) {
		if rec.DateOfExam != nil && !p.ExamPredatesMonth(*rec.DateOfExam) {
			return true, fmt.Sprintf("date_of_exam %s not before %s",
				rec.DateOfExam.Format("2006-01-02"), p.FirstOfMonth().Format("2006-01-02"))
		}
		if rec.DateOfReport != nil && !p.ReportInBillingWindow(*rec.DateOfReport) {
			return true, fmt.Sprintf("date_of_report %s outside [%s, %s]",
				rec.DateOfReport.Format("2006-01-02"),
				p.BillingWindowStart().Format("2006-01-02"), p.BillingWindowEnd().Format("2006-01-02"))
		}
		return false, ""
	})
}

// excludeCompanies removes records of clients on the hard exclusion list.
type excludeCompanies struct{}

func (excludeCompanies) ID() ID { return "exclude_companies" }
func (excludeCompanies) Name() string { return "Exclude hard-excluded companies" }
func (excludeCompanies) Stage() Stage { return StageExclude }

func (excludeCompanies) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	excluded := make(map[string]bool, len(env.Policy.HardExcludedCompanies))
	for name := range env.Policy.HardExcludedCompanies {
		excluded[foldKey(name)] = true
	}
	return applyExclusion(ctx, env, sel, "exclude_companies", rejection.ReasonBusinessRule, func(rec *records.ExamRecord) (bool, string) {
		if !excluded[foldKey(rec.Company)] {
			return false, ""
		}
		return true, fmt.Sprintf("company %q is hard-excluded", rec.Company)
	})
}

// excludeDynamic removes records matching the operator-configured exclusion
// criteria, evaluated in ascending priority order.
type excludeDynamic struct{}

func (excludeDynamic) ID() ID { return "exclude_dynamic" }
func (excludeDynamic) Name() string { return "Exclude by configured criteria" }
func (excludeDynamic) Stage() Stage { return StageExclude }

func (excludeDynamic) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	criteria, err := env.Catalog.ExclusionCriteria(ctx)
	if err != nil {
		return nil, err
	}
	if len(criteria) == 0 {
		return &Result{RuleID: "exclude_dynamic"}, nil
	}
	return applyExclusion(ctx, env, sel, "exclude_dynamic", rejection.ReasonBusinessRule, func(rec *records.ExamRecord) (bool, string) {
		for _, c := range criteria {
			if !c.Active {
				continue
			}
			v, ok := fieldValue(rec, c.Field)
			if !ok {
				continue
			}
			if foldKey(v) == foldKey(c.Value) {
				return true, fmt.Sprintf("criterion %s=%q (priority %d)", c.Field, c.Value, c.Priority)
			}
		}
		return false, ""
	})
}

// fieldValue resolves an exclusion criterion's field name to the record's
// current value.
func fieldValue(rec *records.ExamRecord, field string) (string, bool) {
	switch field {
	case "company":
		return rec.Company, true
	case "modality":
		return rec.Modality, true
	case "specialty":
		return rec.Specialty, true
	case "category":
		return rec.Category, true
	case "priority":
		return rec.Priority, true
	case "billing_type":
		return rec.BillingType, true
	case "exam_description":
		return rec.ExamDescription, true
	case "physician":
		return rec.Physician, true
	default:
		return "", false
	}
}

// excludeDuplicates removes records repeating the natural key accession
// number + exam description + exam date. The first record in stable id
// order is kept.
type excludeDuplicates struct{}

func (excludeDuplicates) ID() ID { return "exclude_duplicates" }
func (excludeDuplicates) Name() string { return "Exclude duplicate records" }
func (excludeDuplicates) Stage() Stage { return StageExclude }

func (excludeDuplicates) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	seen := make(map[string]bool)
	return applyExclusion(ctx, env, sel, "exclude_duplicates", rejection.ReasonDuplicate, func(rec *records.ExamRecord) (bool, string) {
		if rec.AccessionNumber == "" {
			return false, ""
		}
		key := foldKey(rec.AccessionNumber) + "|" + foldKey(rec.ExamDescription)
		if rec.DateOfExam != nil {
			key += "|" + rec.DateOfExam.Format("2006-01-02")
		}
		if seen[key] {
			return true, fmt.Sprintf("duplicate of accession %s", rec.AccessionNumber)
		}
		seen[key] = true
		return false, ""
	})
}
