package pipeline

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/records"
)

type fixedCounter struct{ n int }

func (c *fixedCounter) Count(_ context.Context, _ records.Selector) (int, error) {
	return c.n, nil
}

func newSvc(counter RecordCounter, total, failing int) (*Service, *memRuns) {
	runs := &memRuns{}
	orch := newOrch(buildSet(total, failing, nil), runs)
	return NewService(orch, runs, counter, "2025-06", zerolog.Nop()), runs
}

func TestApply_ValidatesBeforeRunning(t *testing.T) {
	svc, runs := newSvc(&fixedCounter{n: 10}, 4, 0)

	if _, err := svc.Apply(context.Background(), ApplyRequest{SourceFile: "bogus"}); err == nil {
		t.Error("expected error for unknown source file")
	}
	if _, err := svc.Apply(context.Background(), ApplyRequest{SourceFile: "padrao", ReferencePeriod: "junho"}); err == nil {
		t.Error("expected error for malformed period")
	}
	if len(runs.runs) != 0 {
		t.Fatalf("no rule may run on a rejected request, got %d audit rows", len(runs.runs))
	}
}

func TestApply_DefaultPeriodFromConfig(t *testing.T) {
	svc, runs := newSvc(&fixedCounter{n: 10}, 2, 0)

	report, err := svc.Apply(context.Background(), ApplyRequest{SourceFile: "padrao", UploadBatch: "b1"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !report.Success {
		t.Errorf("expected success, got %+v", report)
	}
	for _, run := range runs.runs {
		if run.ReferencePeriod != "2025-06" {
			t.Errorf("expected config default period, got %q", run.ReferencePeriod)
		}
	}
}

func TestApply_EmptySelectorNeedsForce(t *testing.T) {
	svc, _ := newSvc(&fixedCounter{n: 0}, 2, 0)

	if _, err := svc.Apply(context.Background(), ApplyRequest{SourceFile: "padrao"}); err == nil {
		t.Error("expected error for selector without records")
	}
	if _, err := svc.Apply(context.Background(), ApplyRequest{SourceFile: "padrao", ForceApply: true}); err != nil {
		t.Errorf("force_apply must bypass the record-count guard: %v", err)
	}
}

func TestApplyRule_SingleUnit(t *testing.T) {
	svc, runs := newSvc(&fixedCounter{n: 5}, 3, 0)

	outcome, err := svc.ApplyRule(context.Background(), "stub_01", ApplyRequest{SourceFile: "padrao"})
	if err != nil {
		t.Fatalf("ApplyRule: %v", err)
	}
	if !outcome.Success || outcome.RuleID != "stub_01" {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if len(runs.runs) != 1 {
		t.Errorf("expected 1 audit row, got %d", len(runs.runs))
	}
}

func TestRulesListing(t *testing.T) {
	svc, _ := newSvc(&fixedCounter{n: 1}, 5, 0)
	infos := svc.Rules()
	if len(infos) != 5 {
		t.Fatalf("expected 5 rules, got %d", len(infos))
	}
	if infos[0].ID == "" || infos[0].Stage == "" {
		t.Error("rule info must carry id and stage")
	}
}
