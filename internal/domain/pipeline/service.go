package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/period"
	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/internal/domain/rules"
)

// RecordCounter guards pipeline invocations: applying rules to a selector
// with no records is almost always a caller mistake.
type RecordCounter interface {
	Count(ctx context.Context, sel records.Selector) (int, error)
}

type Service struct {
	orch          *Orchestrator
	runs          Repository
	counter       RecordCounter
	defaultPeriod string
	log           zerolog.Logger
}

func NewService(orch *Orchestrator, runs Repository, counter RecordCounter, defaultPeriod string, log zerolog.Logger) *Service {
	return &Service{
		orch:          orch,
		runs:          runs,
		counter:       counter,
		defaultPeriod: defaultPeriod,
		log:           log.With().Str("component", "pipeline").Logger(),
	}
}

type ApplyRequest struct {
	SourceFile      string `json:"source_file"`
	UploadBatch     string `json:"upload_batch"`
	ReferencePeriod string `json:"reference_period"`
	ForceApply      bool   `json:"force_apply"`
	Async           bool   `json:"async"`
}

// AsyncAck is returned for detached invocations.
type AsyncAck struct {
	InvocationID uuid.UUID `json:"invocation_id"`
	Accepted     bool      `json:"accepted"`
}

// resolve validates the request before any rule runs. Selector or period
// problems are request errors, never partial pipeline failures.
func (s *Service) resolve(ctx context.Context, req ApplyRequest) (records.Selector, period.Period, error) {
	source, err := records.ParseSourceFile(req.SourceFile)
	if err != nil {
		return records.Selector{}, period.Period{}, err
	}
	sel := records.Selector{SourceFile: source, UploadBatch: req.UploadBatch}

	raw := req.ReferencePeriod
	if raw == "" {
		raw = s.defaultPeriod
	}
	p, err := period.Parse(raw)
	if err != nil {
		return records.Selector{}, period.Period{}, err
	}

	if !req.ForceApply {
		n, err := s.counter.Count(ctx, sel)
		if err != nil {
			return records.Selector{}, period.Period{}, err
		}
		if n == 0 {
			return records.Selector{}, period.Period{}, fmt.Errorf("no records for selector %s; use force_apply to override", sel)
		}
	}
	return sel, p, nil
}

// Apply runs the full pipeline for the request's selector.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*Report, error) {
	sel, p, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.orch.RunAll(ctx, sel, p), nil
}

// ApplyAsync validates the request, then runs the pipeline detached from
// the caller's context. Progress lands in the rule_runs audit trail.
func (s *Service) ApplyAsync(ctx context.Context, req ApplyRequest) (*AsyncAck, error) {
	sel, p, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		s.log.Info().Str("invocation_id", id.String()).Str("selector", sel.String()).Msg("detached pipeline started")
		s.orch.RunAll(ctx, sel, p)
	}()
	return &AsyncAck{InvocationID: id, Accepted: true}, nil
}

// ApplyRule runs a single rule by id for the request's selector.
func (s *Service) ApplyRule(ctx context.Context, ruleID string, req ApplyRequest) (*RuleOutcome, error) {
	sel, p, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.orch.RunOne(ctx, rules.ID(ruleID), sel, p)
}

// RuleInfo describes one registered rule for listings.
type RuleInfo struct {
	ID    rules.ID    `json:"id"`
	Name  string      `json:"name"`
	Stage rules.Stage `json:"stage"`
}

// Rules lists the registry in execution order.
func (s *Service) Rules() []RuleInfo {
	units := s.orch.set.All()
	out := make([]RuleInfo, 0, len(units))
	for _, u := range units {
		out = append(out, RuleInfo{ID: u.ID(), Name: u.Name(), Stage: u.Stage()})
	}
	return out
}

// Runs lists the persisted audit trail.
func (s *Service) Runs(ctx context.Context, f RunFilter, limit, offset int) ([]*RuleRun, int, error) {
	return s.runs.List(ctx, f, limit, offset)
}
