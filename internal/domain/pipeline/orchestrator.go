package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/period"
	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/internal/domain/rules"
)

// RuleSet is the registry slice the orchestrator needs. Satisfied by
// *rules.Registry.
type RuleSet interface {
	All() []rules.Unit
	ByStage(s rules.Stage) []rules.Unit
	Get(id rules.ID) rules.Unit
}

// Orchestrator executes the rule set in stage order against one selector
// and produces an aggregate report. Stages run strictly sequentially; a
// failed rule never stops the stage, and nothing already applied is rolled
// back.
type Orchestrator struct {
	set       RuleSet
	env       *rules.Env
	runs      Repository
	timeout   time.Duration
	threshold int
	log       zerolog.Logger
}

func NewOrchestrator(set RuleSet, env *rules.Env, runs Repository, timeout time.Duration, thresholdPct int, log zerolog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if thresholdPct <= 0 || thresholdPct > 100 {
		thresholdPct = 80
	}
	return &Orchestrator{
		set:       set,
		env:       env,
		runs:      runs,
		timeout:   timeout,
		threshold: thresholdPct,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// RunAll applies every registered rule, stage by stage.
func (o *Orchestrator) RunAll(ctx context.Context, sel records.Selector, p period.Period) *Report {
	report := &Report{TotalRules: len(o.set.All())}

	for _, stage := range rules.Stages {
		for _, unit := range o.set.ByStage(stage) {
			outcome := o.runUnit(ctx, unit, sel, p)
			report.Results = append(report.Results, outcome)
			if outcome.Success {
				report.RulesApplied++
			} else {
				report.RulesFailed++
			}
		}
	}

	report.PercentSuccess = percentSuccess(report.RulesApplied, report.TotalRules)
	report.Success = report.PercentSuccess >= o.threshold
	report.RequiresIntervention = !report.Success

	o.log.Info().
		Str("selector", sel.String()).
		Str("period", p.String()).
		Int("applied", report.RulesApplied).
		Int("failed", report.RulesFailed).
		Int("percent", report.PercentSuccess).
		Bool("success", report.Success).
		Msg("pipeline finished")
	return report
}

// ErrUnknownRule is returned when a rule id is not in the registry.
var ErrUnknownRule = errors.New("unknown rule")

// RunOne applies a single rule by id.
func (o *Orchestrator) RunOne(ctx context.Context, id rules.ID, sel records.Selector, p period.Period) (*RuleOutcome, error) {
	unit := o.set.Get(id)
	if unit == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownRule, id)
	}
	return o.runUnit(ctx, unit, sel, p), nil
}

// runUnit runs one rule under the per-rule timeout and records its audit
// row. A timeout counts as a rule failure, not a pipeline abort; chunks
// committed before the deadline stay committed.
func (o *Orchestrator) runUnit(ctx context.Context, unit rules.Unit, sel records.Selector, p period.Period) *RuleOutcome {
	tctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	res, err := unit.Apply(tctx, o.env, sel, p)
	elapsed := time.Since(start)

	if err == nil && tctx.Err() != nil {
		err = fmt.Errorf("rule %s: %w", unit.ID(), tctx.Err())
	}

	outcome := &RuleOutcome{
		RuleID:     unit.ID(),
		Stage:      unit.Stage(),
		Success:    err == nil,
		DurationMS: elapsed.Milliseconds(),
		Result:     res,
	}
	if err != nil {
		outcome.Error = err.Error()
		o.log.Warn().Err(err).Str("rule", string(unit.ID())).Str("selector", sel.String()).Msg("rule failed")
	}

	o.recordRun(unit, sel, p, outcome)
	return outcome
}

func (o *Orchestrator) recordRun(unit rules.Unit, sel records.Selector, p period.Period, outcome *RuleOutcome) {
	run := &RuleRun{
		RuleID:          string(unit.ID()),
		RuleName:        unit.Name(),
		Stage:           string(unit.Stage()),
		SourceFile:      sel.SourceFile,
		UploadBatch:     sel.UploadBatch,
		ReferencePeriod: p.String(),
		DurationMS:      outcome.DurationMS,
		Success:         outcome.Success,
		Error:           outcome.Error,
	}
	if outcome.Result != nil {
		run.Matched = outcome.Result.Matched
		run.Affected = outcome.Result.Affected
		run.Errored = outcome.Result.Errored
	}

	// Audit writes use a fresh context so an expired rule deadline cannot
	// lose the run row.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.runs.Insert(ctx, run); err != nil {
		o.log.Error().Err(err).Str("rule", run.RuleID).Msg("failed to persist rule run")
	}
}

func percentSuccess(applied, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(applied) * 100 / float64(total)))
}
