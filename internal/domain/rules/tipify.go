package rules

import (
	"context"

	"github.com/volumetria/volumetria/internal/domain/period"
	"github.com/volumetria/volumetria/internal/domain/records"
)

// tipifyUrgency assigns the on-call billing type to urgent exams. Retroactive
// files are skipped: their billing type belongs to tipify_retroactive, and the
// two rules must not fight over the same rows.
type tipifyUrgency struct{}

func (tipifyUrgency) ID() ID { return "tipify_urgency" }
func (tipifyUrgency) Name() string { return "Tipify urgent exams as PLANTAO" }
func (tipifyUrgency) Stage() Stage { return StageTipify }

func (tipifyUrgency) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	if sel.SourceFile.IsRetroactive() {
		return &Result{RuleID: "tipify_urgency"}, nil
	}
	return applyUpdate(ctx, env, sel, "tipify_urgency", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		if rec.Priority != records.PriorityUrgency || rec.BillingType == records.BillingPlantao {
			return false, nil
		}
		rec.BillingType = records.BillingPlantao
		return true, nil
	})
}

// tipifyRetroactive assigns the retroactive billing type to every record of
// a retroactive source file, overriding earlier tipification.
type tipifyRetroactive struct{}

func (tipifyRetroactive) ID() ID { return "tipify_retroactive" }
func (tipifyRetroactive) Name() string { return "Tipify retroactive files as RETROATIVO" }
func (tipifyRetroactive) Stage() Stage { return StageTipify }

func (tipifyRetroactive) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	if !sel.SourceFile.IsRetroactive() {
		return &Result{RuleID: "tipify_retroactive"}, nil
	}
	return applyUpdate(ctx, env, sel, "tipify_retroactive", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		if rec.BillingType == records.BillingRetroativo {
			return false, nil
		}
		rec.BillingType = records.BillingRetroativo
		return true, nil
	})
}

// tipifyDefault fills the remaining empty billing types: oncology files get
// ONCO, everything else ROTINA.
type tipifyDefault struct{}

func (tipifyDefault) ID() ID { return "tipify_default" }
func (tipifyDefault) Name() string { return "Tipify remaining exams by source file" }
func (tipifyDefault) Stage() Stage { return StageTipify }

func (tipifyDefault) Apply(ctx context.Context, env *Env, sel records.Selector, _ period.Period) (*Result, error) {
	fallback := records.BillingRotina
	if sel.SourceFile == records.SourceOncoStandard {
		fallback = records.BillingOnco
	}
	return applyUpdate(ctx, env, sel, "tipify_default", func(_ context.Context, _ *Env, rec *records.ExamRecord) (bool, error) {
		if rec.BillingType != "" {
			return false, nil
		}
		rec.BillingType = fallback
		return true, nil
	})
}
