package records

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository for tests.
type memRepo struct {
	items      map[uuid.UUID]*ExamRecord
	failInsert bool
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[uuid.UUID]*ExamRecord)}
}

func (m *memRepo) sorted(sel Selector) []*ExamRecord {
	var out []*ExamRecord
	for _, rec := range m.items {
		if rec.SourceFile != sel.SourceFile {
			continue
		}
		if sel.UploadBatch != "" && rec.UploadBatch != sel.UploadBatch {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func (m *memRepo) InsertBatch(_ context.Context, recs []*ExamRecord) (int, error) {
	if m.failInsert {
		return 0, fmt.Errorf("insert failed")
	}
	for _, rec := range recs {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.CreatedAt = time.Now()
		rec.UpdatedAt = rec.CreatedAt
		cp := *rec
		m.items[rec.ID] = &cp
	}
	return len(recs), nil
}

func (m *memRepo) RestoreBatch(_ context.Context, recs []*ExamRecord) (int, error) {
	n := 0
	for _, rec := range recs {
		if _, ok := m.items[rec.ID]; ok {
			continue
		}
		cp := *rec
		m.items[rec.ID] = &cp
		n++
	}
	return n, nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*ExamRecord, error) {
	rec, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return rec, nil
}

func (m *memRepo) List(_ context.Context, sel Selector, limit, offset int) ([]*ExamRecord, int, error) {
	all := m.sorted(sel)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *memRepo) ListChunk(_ context.Context, sel Selector, after uuid.UUID, limit int) ([]*ExamRecord, error) {
	var out []*ExamRecord
	for _, rec := range m.sorted(sel) {
		if bytes.Compare(rec.ID[:], after[:]) <= 0 {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, rec *ExamRecord) error {
	if _, ok := m.items[rec.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *rec
	cp.UpdatedAt = time.Now()
	m.items[rec.ID] = &cp
	return nil
}

func (m *memRepo) DeleteByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Count(_ context.Context, sel Selector) (int, error) {
	return len(m.sorted(sel)), nil
}

func (m *memRepo) CountInvalidValues(_ context.Context, batch string) (int, error) {
	n := 0
	for _, rec := range m.items {
		if rec.UploadBatch == batch && rec.Value < 0 {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CountMissingRequired(_ context.Context, batch string) (int, error) {
	n := 0
	for _, rec := range m.items {
		if rec.UploadBatch == batch &&
			(rec.ExamDescription == "" || rec.PatientName == "" || rec.Company == "") {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CountDuplicateKeys(_ context.Context, batch string) (int, error) {
	seen := map[string]int{}
	for _, rec := range m.items {
		if rec.UploadBatch != batch || rec.AccessionNumber == "" {
			continue
		}
		key := rec.AccessionNumber + "|" + rec.ExamDescription
		if rec.DateOfExam != nil {
			key += "|" + rec.DateOfExam.Format("2006-01-02")
		}
		seen[key]++
	}
	n := 0
	for _, c := range seen {
		if c > 1 {
			n += c - 1
		}
	}
	return n, nil
}

func (m *memRepo) DistinctPeriods(_ context.Context, batch string) ([]string, error) {
	set := map[string]bool{}
	for _, rec := range m.items {
		if rec.UploadBatch == batch {
			set[rec.ReferencePeriod] = true
		}
	}
	var out []string
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// memTracker records upload lifecycle calls.
type memTracker struct {
	started  int
	finished int
	declared int
	inserted int
	errored  int
	runErr   error
}

func (m *memTracker) Start(_ context.Context, _ string, _ SourceFile, _ string, declared int) (uuid.UUID, error) {
	m.started++
	m.declared = declared
	return uuid.New(), nil
}

func (m *memTracker) Finish(_ context.Context, _ uuid.UUID, inserted, errored int, runErr error) error {
	m.finished++
	m.inserted = inserted
	m.errored = errored
	m.runErr = runErr
	return nil
}
