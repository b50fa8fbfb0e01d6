package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) Insert(ctx context.Context, run *RuleRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rule_runs
			(id, rule_id, rule_name, stage, source_file, upload_batch, reference_period,
			 matched, affected, errored, duration_ms, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.RuleID, run.RuleName, run.Stage, run.SourceFile, run.UploadBatch,
		run.ReferencePeriod, run.Matched, run.Affected, run.Errored, run.DurationMS,
		run.Success, run.Error)
	return err
}

func runFilterClause(f RunFilter, args []interface{}) (string, []interface{}) {
	clause := "TRUE"
	if f.RuleID != "" {
		args = append(args, f.RuleID)
		clause += fmt.Sprintf(" AND rule_id = $%d", len(args))
	}
	if f.SourceFile != "" {
		args = append(args, f.SourceFile)
		clause += fmt.Sprintf(" AND source_file = $%d", len(args))
	}
	if f.UploadBatch != "" {
		args = append(args, f.UploadBatch)
		clause += fmt.Sprintf(" AND upload_batch = $%d", len(args))
	}
	return clause, args
}

func (r *repoPG) List(ctx context.Context, f RunFilter, limit, offset int) ([]*RuleRun, int, error) {
	clause, args := runFilterClause(f, nil)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM rule_runs WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, rule_id, rule_name, stage, source_file, upload_batch, reference_period,
		       matched, affected, errored, duration_ms, success, error, created_at
		FROM rule_runs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*RuleRun
	for rows.Next() {
		var run RuleRun
		if err := rows.Scan(&run.ID, &run.RuleID, &run.RuleName, &run.Stage, &run.SourceFile,
			&run.UploadBatch, &run.ReferencePeriod, &run.Matched, &run.Affected, &run.Errored,
			&run.DurationMS, &run.Success, &run.Error, &run.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &run)
	}
	return out, total, rows.Err()
}
