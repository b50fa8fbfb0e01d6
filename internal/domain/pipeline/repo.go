package pipeline

import "context"

// Repository persists the rule-run audit trail. Audit writes are best
// effort: a failed insert is logged, never fails the rule it describes.
type Repository interface {
	Insert(ctx context.Context, run *RuleRun) error
	List(ctx context.Context, f RunFilter, limit, offset int) ([]*RuleRun, int, error)
}
