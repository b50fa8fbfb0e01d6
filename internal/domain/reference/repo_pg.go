package reference

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) LookupExact(ctx context.Context, examName string) (*Entry, error) {
	var e Entry
	err := r.pool.QueryRow(ctx, `
		SELECT exam_name, modality, specialty, category
		FROM reference_entries WHERE exam_name = $1`, examName).
		Scan(&e.ExamName, &e.Modality, &e.Specialty, &e.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LookupSubstring finds the longest catalog entry whose exam name is
// contained in the description.
func (r *repoPG) LookupSubstring(ctx context.Context, examDescription string) (*Entry, error) {
	var e Entry
	err := r.pool.QueryRow(ctx, `
		SELECT exam_name, modality, specialty, category
		FROM reference_entries
		WHERE $1 ILIKE '%' || exam_name || '%'
		ORDER BY length(exam_name) DESC
		LIMIT 1`, examDescription).
		Scan(&e.ExamName, &e.Modality, &e.Specialty, &e.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) ListEntries(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reference_entries`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT exam_name, modality, specialty, category
		FROM reference_entries ORDER BY exam_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ExamName, &e.Modality, &e.Specialty, &e.Category); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}

func (r *repoPG) PrioritySynonyms(ctx context.Context) (map[string]string, error) {
	return r.stringMap(ctx, `SELECT synonym, canonical FROM priority_synonyms`)
}

func (r *repoPG) ClientAliases(ctx context.Context) (map[string]string, error) {
	return r.stringMap(ctx, `SELECT alias, canonical FROM client_aliases`)
}

func (r *repoPG) stringMap(ctx context.Context, sql string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *repoPG) Price(ctx context.Context, examName, modality string) (float64, bool, error) {
	var v float64
	err := r.pool.QueryRow(ctx, `
		SELECT value FROM price_entries WHERE exam_name = $1 AND modality = $2`,
		examName, modality).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r *repoPG) QuebraRules(ctx context.Context) (map[string][]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT exam_name, derived_exams FROM quebra_rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var name string
		var derived []string
		if err := rows.Scan(&name, &derived); err != nil {
			return nil, err
		}
		out[name] = derived
	}
	return out, rows.Err()
}

func (r *repoPG) ExclusionCriteria(ctx context.Context) ([]ExclusionCriterion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, field, value, priority, active
		FROM exclusion_criteria WHERE active ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExclusionCriterion
	for rows.Next() {
		var c ExclusionCriterion
		if err := rows.Scan(&c.ID, &c.Field, &c.Value, &c.Priority, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) UpsertEntries(ctx context.Context, entries []Entry) (int, error) {
	n := 0
	for _, e := range entries {
		if e.ExamName == "" {
			return n, fmt.Errorf("catalog entry with empty exam name")
		}
		_, err := r.pool.Exec(ctx, `
			INSERT INTO reference_entries (exam_name, modality, specialty, category)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (exam_name) DO UPDATE
			SET modality = EXCLUDED.modality,
			    specialty = EXCLUDED.specialty,
			    category = EXCLUDED.category`,
			e.ExamName, e.Modality, e.Specialty, e.Category)
		if err != nil {
			return n, fmt.Errorf("upsert catalog entry %q: %w", e.ExamName, err)
		}
		n++
	}
	return n, nil
}

func (r *repoPG) UpsertPrioritySynonyms(ctx context.Context, syns []PrioritySynonym) (int, error) {
	n := 0
	for _, s := range syns {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO priority_synonyms (synonym, canonical) VALUES ($1, $2)
			ON CONFLICT (synonym) DO UPDATE SET canonical = EXCLUDED.canonical`,
			s.Synonym, s.Canonical)
		if err != nil {
			return n, fmt.Errorf("upsert priority synonym %q: %w", s.Synonym, err)
		}
		n++
	}
	return n, nil
}

func (r *repoPG) UpsertClientAliases(ctx context.Context, aliases []ClientAlias) (int, error) {
	n := 0
	for _, a := range aliases {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO client_aliases (alias, canonical) VALUES ($1, $2)
			ON CONFLICT (alias) DO UPDATE SET canonical = EXCLUDED.canonical`,
			a.Alias, a.Canonical)
		if err != nil {
			return n, fmt.Errorf("upsert client alias %q: %w", a.Alias, err)
		}
		n++
	}
	return n, nil
}

func (r *repoPG) UpsertPrices(ctx context.Context, prices []PriceEntry) (int, error) {
	n := 0
	for _, p := range prices {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO price_entries (exam_name, modality, value) VALUES ($1, $2, $3)
			ON CONFLICT (exam_name, modality) DO UPDATE SET value = EXCLUDED.value`,
			p.ExamName, p.Modality, p.Value)
		if err != nil {
			return n, fmt.Errorf("upsert price %q/%q: %w", p.ExamName, p.Modality, err)
		}
		n++
	}
	return n, nil
}

func (r *repoPG) UpsertQuebraRules(ctx context.Context, rules []QuebraRule) (int, error) {
	n := 0
	for _, q := range rules {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO quebra_rules (exam_name, derived_exams) VALUES ($1, $2)
			ON CONFLICT (exam_name) DO UPDATE SET derived_exams = EXCLUDED.derived_exams`,
			q.ExamName, q.DerivedExams)
		if err != nil {
			return n, fmt.Errorf("upsert quebra rule %q: %w", q.ExamName, err)
		}
		n++
	}
	return n, nil
}

func (r *repoPG) UpsertExclusionCriteria(ctx context.Context, criteria []ExclusionCriterion) (int, error) {
	n := 0
	for _, c := range criteria {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO exclusion_criteria (field, value, priority, active)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (field, value) DO UPDATE
			SET priority = EXCLUDED.priority, active = EXCLUDED.active`,
			c.Field, c.Value, c.Priority, c.Active)
		if err != nil {
			return n, fmt.Errorf("upsert exclusion criterion %s=%s: %w", c.Field, c.Value, err)
		}
		n++
	}
	return n, nil
}
