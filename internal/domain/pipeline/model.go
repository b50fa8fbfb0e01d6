package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/internal/domain/rules"
)

// RuleRun is the persisted audit row for one rule unit execution. Every
// mutation the pipeline performs is traceable to one of these.
type RuleRun struct {
	ID              uuid.UUID          `db:"id" json:"id"`
	RuleID          string             `db:"rule_id" json:"rule_id"`
	RuleName        string             `db:"rule_name" json:"rule_name"`
	Stage           string             `db:"stage" json:"stage"`
	SourceFile      records.SourceFile `db:"source_file" json:"source_file"`
	UploadBatch     string             `db:"upload_batch" json:"upload_batch"`
	ReferencePeriod string             `db:"reference_period" json:"reference_period"`
	Matched         int                `db:"matched" json:"matched"`
	Affected        int                `db:"affected" json:"affected"`
	Errored         int                `db:"errored" json:"errored"`
	DurationMS      int64              `db:"duration_ms" json:"duration_ms"`
	Success         bool               `db:"success" json:"success"`
	Error           string             `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
}

// RunFilter narrows rule-run queries.
type RunFilter struct {
	RuleID      string
	SourceFile  records.SourceFile
	UploadBatch string
}

// RuleOutcome is one rule's entry in the aggregate report.
type RuleOutcome struct {
	RuleID     rules.ID      `json:"rule_id"`
	Stage      rules.Stage   `json:"stage"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	DurationMS int64         `json:"duration_ms"`
	Result     *rules.Result `json:"result,omitempty"`
}

// Report aggregates one pipeline invocation. Rules that succeeded stay
// applied regardless of the overall verdict; there is no rollback.
type Report struct {
	Success              bool           `json:"success"`
	TotalRules           int            `json:"total_rules"`
	RulesApplied         int            `json:"rules_applied"`
	RulesFailed          int            `json:"rules_failed"`
	PercentSuccess       int            `json:"percent_success"`
	RequiresIntervention bool           `json:"requires_intervention"`
	Results              []*RuleOutcome `json:"results"`
}
