package rejection

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/volumetria/volumetria/internal/domain/records"
)

// memLedger is an in-memory Repository for tests.
type memLedger struct {
	items      map[uuid.UUID]*Record
	failDelete bool
}

func newMemLedger() *memLedger {
	return &memLedger{items: make(map[uuid.UUID]*Record)}
}

func (m *memLedger) sorted(f Filter) []*Record {
	var out []*Record
	for _, e := range m.items {
		if f.ReasonCode != "" && e.ReasonCode != f.ReasonCode {
			continue
		}
		if f.SourceFile != "" && e.SourceFile != f.SourceFile {
			continue
		}
		if f.UploadBatch != "" && e.UploadBatch != f.UploadBatch {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func (m *memLedger) Append(_ context.Context, rec *Record) (bool, error) {
	for _, e := range m.items {
		if e.ReasonCode == rec.ReasonCode && e.UploadBatch == rec.UploadBatch && e.RecordID == rec.RecordID {
			return false, nil
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()
	cp := *rec
	m.items[rec.ID] = &cp
	return true, nil
}

func (m *memLedger) List(_ context.Context, f Filter, limit, offset int) ([]*Record, int, error) {
	all := m.sorted(f)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *memLedger) ListChunk(_ context.Context, f Filter, after uuid.UUID, limit int) ([]*Record, error) {
	var out []*Record
	for _, e := range m.sorted(f) {
		if bytes.Compare(e.ID[:], after[:]) <= 0 {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memLedger) DeleteByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	if m.failDelete {
		return 0, fmt.Errorf("delete failed")
	}
	var n int64
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// memRecordStore collects restored records. Like the real store it keeps
// existing ids untouched and skips them on a repeat restore.
type memRecordStore struct {
	byID        map[uuid.UUID]*records.ExamRecord
	inserted    []*records.ExamRecord
	failRestore bool
}

func (m *memRecordStore) RestoreBatch(_ context.Context, recs []*records.ExamRecord) (int, error) {
	if m.failRestore {
		return 0, fmt.Errorf("restore failed")
	}
	if m.byID == nil {
		m.byID = make(map[uuid.UUID]*records.ExamRecord)
	}
	n := 0
	for _, rec := range recs {
		if _, ok := m.byID[rec.ID]; ok {
			continue
		}
		cp := *rec
		m.byID[rec.ID] = &cp
		m.inserted = append(m.inserted, &cp)
		n++
	}
	return n, nil
}
