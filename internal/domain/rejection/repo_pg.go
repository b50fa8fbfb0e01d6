package rejection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const ledgerCols = `id, source_file, upload_batch, record_id, reason_code, detail, line_number, original_data, created_at`

func scanLedger(row pgx.Row) (*Record, error) {
	var rec Record
	var original []byte
	err := row.Scan(&rec.ID, &rec.SourceFile, &rec.UploadBatch, &rec.RecordID,
		&rec.ReasonCode, &rec.Detail, &rec.LineNumber, &original, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(original, &rec.OriginalData); err != nil {
		return nil, fmt.Errorf("decode original_data for ledger entry %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func (r *repoPG) Append(ctx context.Context, rec *Record) (bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	original, err := json.Marshal(rec.OriginalData)
	if err != nil {
		return false, fmt.Errorf("encode original_data: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO rejection_ledger
			(id, source_file, upload_batch, record_id, reason_code, detail, line_number, original_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reason_code, upload_batch, record_id) DO NOTHING`,
		rec.ID, rec.SourceFile, rec.UploadBatch, rec.RecordID,
		rec.ReasonCode, rec.Detail, rec.LineNumber, original)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func filterClause(f Filter, args []interface{}) (string, []interface{}) {
	clause := "TRUE"
	if f.ReasonCode != "" {
		args = append(args, f.ReasonCode)
		clause += fmt.Sprintf(" AND reason_code = $%d", len(args))
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

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	clause, args := filterClause(f, nil)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rejection_ledger WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+ledgerCols+` FROM rejection_ledger WHERE `+clause+
			fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := scanLedger(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListChunk(ctx context.Context, f Filter, after uuid.UUID, limit int) ([]*Record, error) {
	clause, args := filterClause(f, nil)
	args = append(args, after, limit)
	rows, err := r.pool.Query(ctx,
		`SELECT `+ledgerCols+` FROM rejection_ledger WHERE `+clause+
			fmt.Sprintf(` AND id > $%d ORDER BY id LIMIT $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM rejection_ledger WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
