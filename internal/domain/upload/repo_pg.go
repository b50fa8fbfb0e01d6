package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const statusCols = `id, file_name, source_file, status, processed, inserted, updated, errored, details, created_at, updated_at, finished_at`

func scanStatus(row pgx.Row) (*UploadStatus, error) {
	var u UploadStatus
	var details []byte
	err := row.Scan(&u.ID, &u.FileName, &u.SourceFile, &u.Status, &u.Processed,
		&u.Inserted, &u.Updated, &u.Errored, &details, &u.CreatedAt, &u.UpdatedAt, &u.FinishedAt)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &u.Details); err != nil {
			return nil, fmt.Errorf("decode details for upload %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

func (r *repoPG) Insert(ctx context.Context, u *UploadStatus) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	details, err := json.Marshal(u.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO upload_status
			(id, file_name, source_file, status, processed, inserted, updated, errored, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.FileName, u.SourceFile, u.Status, u.Processed, u.Inserted, u.Updated, u.Errored, details)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*UploadStatus, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+statusCols+` FROM upload_status WHERE id = $1`, id)
	return scanStatus(row)
}

func (r *repoPG) Update(ctx context.Context, u *UploadStatus) error {
	details, err := json.Marshal(u.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE upload_status
		SET status = $2, processed = $3, inserted = $4, updated = $5, errored = $6,
		    details = $7, finished_at = $8, updated_at = now()
		WHERE id = $1`,
		u.ID, u.Status, u.Processed, u.Inserted, u.Updated, u.Errored, details, u.FinishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload %s not found", u.ID)
	}
	return nil
}

func (r *repoPG) ProcessingOlderThan(ctx context.Context, cutoff time.Time) ([]*UploadStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+statusCols+`
		FROM upload_status
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at`, StatusProcessing, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UploadStatus
	for rows.Next() {
		u, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
