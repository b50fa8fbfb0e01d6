package records

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable { return r.pool }

const recCols = `id, source_file, upload_batch, reference_period,
	modality, specialty, category, priority, billing_type,
	company, patient_name, exam_description, physician, accession_number, value,
	date_of_exam, date_of_report, date_of_deadline, created_at, updated_at`

func scanRecord(row pgx.Row) (*ExamRecord, error) {
	var rec ExamRecord
	err := row.Scan(&rec.ID, &rec.SourceFile, &rec.UploadBatch, &rec.ReferencePeriod,
		&rec.Modality, &rec.Specialty, &rec.Category, &rec.Priority, &rec.BillingType,
		&rec.Company, &rec.PatientName, &rec.ExamDescription, &rec.Physician, &rec.AccessionNumber, &rec.Value,
		&rec.DateOfExam, &rec.DateOfReport, &rec.DateOfDeadline, &rec.CreatedAt, &rec.UpdatedAt)
	return &rec, err
}

// selectorClause builds the WHERE fragment for a selector, appending bind
// args starting at position len(args)+1.
func selectorClause(sel Selector, args []interface{}) (string, []interface{}) {
	args = append(args, sel.SourceFile)
	clause := fmt.Sprintf("source_file = $%d", len(args))
	if sel.UploadBatch != "" {
		args = append(args, sel.UploadBatch)
		clause += fmt.Sprintf(" AND upload_batch = $%d", len(args))
	}
	return clause, args
}

func (r *repoPG) InsertBatch(ctx context.Context, recs []*ExamRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	rows := make([][]interface{}, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rows = append(rows, []interface{}{
			rec.ID, rec.SourceFile, rec.UploadBatch, rec.ReferencePeriod,
			rec.Modality, rec.Specialty, rec.Category, rec.Priority, rec.BillingType,
			rec.Company, rec.PatientName, rec.ExamDescription, rec.Physician, rec.AccessionNumber, rec.Value,
			rec.DateOfExam, rec.DateOfReport, rec.DateOfDeadline,
		})
	}

	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"exam_records"},
		[]string{"id", "source_file", "upload_batch", "reference_period",
			"modality", "specialty", "category", "priority", "billing_type",
			"company", "patient_name", "exam_description", "physician", "accession_number", "value",
			"date_of_exam", "date_of_report", "date_of_deadline"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return int(n), fmt.Errorf("copy exam records: %w", err)
	}
	return int(n), nil
}

const restoreSQL = `
	INSERT INTO exam_records (id, source_file, upload_batch, reference_period,
		modality, specialty, category, priority, billing_type,
		company, patient_name, exam_description, physician, accession_number, value,
		date_of_exam, date_of_report, date_of_deadline)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (id) DO NOTHING`

// RestoreBatch differs from InsertBatch in that rows whose id already exists
// are skipped instead of failing the whole batch. Ledger replay depends on
// this: a chunk whose records landed but whose ledger delete failed gets
// replayed again.
func (r *repoPG) RestoreBatch(ctx context.Context, recs []*ExamRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for _, rec := range recs {
		b.Queue(restoreSQL,
			rec.ID, rec.SourceFile, rec.UploadBatch, rec.ReferencePeriod,
			rec.Modality, rec.Specialty, rec.Category, rec.Priority, rec.BillingType,
			rec.Company, rec.PatientName, rec.ExamDescription, rec.Physician, rec.AccessionNumber, rec.Value,
			rec.DateOfExam, rec.DateOfReport, rec.DateOfDeadline)
	}
	br := r.pool.SendBatch(ctx, b)
	defer br.Close()

	restored := 0
	for range recs {
		tag, err := br.Exec()
		if err != nil {
			return restored, fmt.Errorf("restore exam records: %w", err)
		}
		restored += int(tag.RowsAffected())
	}
	return restored, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ExamRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recCols+` FROM exam_records WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, sel Selector, limit, offset int) ([]*ExamRecord, int, error) {
	clause, args := selectorClause(sel, nil)

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_records WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recCols+` FROM exam_records WHERE `+clause+
			fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*ExamRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListChunk(ctx context.Context, sel Selector, after uuid.UUID, limit int) ([]*ExamRecord, error) {
	clause, args := selectorClause(sel, nil)
	args = append(args, after, limit)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recCols+` FROM exam_records WHERE `+clause+
			fmt.Sprintf(` AND id > $%d ORDER BY id LIMIT $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*ExamRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, rec *ExamRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE exam_records SET
			reference_period=$2, modality=$3, specialty=$4, category=$5,
			priority=$6, billing_type=$7, company=$8, patient_name=$9,
			exam_description=$10, physician=$11, value=$12, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.ReferencePeriod, rec.Modality, rec.Specialty, rec.Category,
		rec.Priority, rec.BillingType, rec.Company, rec.PatientName,
		rec.ExamDescription, rec.Physician, rec.Value)
	return err
}

func (r *repoPG) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM exam_records WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Count(ctx context.Context, sel Selector) (int, error) {
	clause, args := selectorClause(sel, nil)
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_records WHERE `+clause, args...).Scan(&n)
	return n, err
}

func (r *repoPG) CountInvalidValues(ctx context.Context, batch string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_records WHERE upload_batch = $1 AND (value IS NULL OR value < 0)`,
		batch).Scan(&n)
	return n, err
}

func (r *repoPG) CountMissingRequired(ctx context.Context, batch string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM exam_records
		WHERE upload_batch = $1
		  AND (exam_description = '' OR patient_name = '' OR company = '')`,
		batch).Scan(&n)
	return n, err
}

func (r *repoPG) CountDuplicateKeys(ctx context.Context, batch string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(c - 1), 0) FROM (
			SELECT COUNT(*) AS c FROM exam_records
			WHERE upload_batch = $1 AND accession_number <> ''
			GROUP BY accession_number, exam_description, date_of_exam
			HAVING COUNT(*) > 1
		) dups`,
		batch).Scan(&n)
	return n, err
}

func (r *repoPG) DistinctPeriods(ctx context.Context, batch string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT DISTINCT reference_period FROM exam_records WHERE upload_batch = $1 ORDER BY reference_period`,
		batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}
