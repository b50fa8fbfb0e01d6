package rules

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volumetria/volumetria/internal/domain/records"
	"github.com/volumetria/volumetria/internal/domain/rejection"
	"github.com/volumetria/volumetria/internal/domain/reference"
)

// memStore is an in-memory RecordStore for rule tests.
type memStore struct {
	items      map[uuid.UUID]*records.ExamRecord
	failUpdate bool
}

func newMemStore() *memStore {
	return &memStore{items: make(map[uuid.UUID]*records.ExamRecord)}
}

func (m *memStore) add(rec *records.ExamRecord) *records.ExamRecord {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	cp := *rec
	m.items[rec.ID] = &cp
	return &cp
}

func (m *memStore) sorted(sel records.Selector) []*records.ExamRecord {
	var out []*records.ExamRecord
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

func (m *memStore) ListChunk(_ context.Context, sel records.Selector, after uuid.UUID, limit int) ([]*records.ExamRecord, error) {
	var out []*records.ExamRecord
	for _, rec := range m.sorted(sel) {
		if bytes.Compare(rec.ID[:], after[:]) <= 0 {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) InsertBatch(_ context.Context, recs []*records.ExamRecord) (int, error) {
	for _, rec := range recs {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		cp := *rec
		m.items[rec.ID] = &cp
	}
	return len(recs), nil
}

func (m *memStore) Update(_ context.Context, rec *records.ExamRecord) error {
	if m.failUpdate {
		return fmt.Errorf("update failed")
	}
	if _, ok := m.items[rec.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *rec
	m.items[rec.ID] = &cp
	return nil
}

func (m *memStore) DeleteByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) get(id uuid.UUID) *records.ExamRecord { return m.items[id] }

// memCatalog is an in-memory Catalog.
type memCatalog struct {
	entries  map[string]*reference.Entry
	synonyms map[string]string
	aliases  map[string]string
	prices   map[string]float64
	quebras  map[string][]string
	criteria []reference.ExclusionCriterion
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		entries:  make(map[string]*reference.Entry),
		synonyms: make(map[string]string),
		aliases:  make(map[string]string),
		prices:   make(map[string]float64),
		quebras:  make(map[string][]string),
	}
}

func (m *memCatalog) addEntry(e reference.Entry) {
	m.entries[e.ExamName] = &e
}

func (m *memCatalog) LookupExact(_ context.Context, examName string) (*reference.Entry, error) {
	if e, ok := m.entries[examName]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *memCatalog) LookupSubstring(_ context.Context, desc string) (*reference.Entry, error) {
	var best *reference.Entry
	for name, e := range m.entries {
		if strings.Contains(strings.ToUpper(desc), strings.ToUpper(name)) {
			if best == nil || len(e.ExamName) > len(best.ExamName) {
				best = e
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (m *memCatalog) PrioritySynonyms(_ context.Context) (map[string]string, error) {
	return m.synonyms, nil
}

func (m *memCatalog) ClientAliases(_ context.Context) (map[string]string, error) {
	return m.aliases, nil
}

func (m *memCatalog) Price(_ context.Context, examName, modality string) (float64, bool, error) {
	v, ok := m.prices[examName+"|"+modality]
	return v, ok, nil
}

func (m *memCatalog) QuebraRules(_ context.Context) (map[string][]string, error) {
	return m.quebras, nil
}

func (m *memCatalog) ExclusionCriteria(_ context.Context) ([]reference.ExclusionCriterion, error) {
	return m.criteria, nil
}

// memLedger records exclusion snapshots.
type memLedger struct {
	entries []ledgerEntry
	failLog bool
}

type ledgerEntry struct {
	rec    records.ExamRecord
	reason rejection.ReasonCode
	detail string
}

func (m *memLedger) Log(_ context.Context, rec *records.ExamRecord, reason rejection.ReasonCode, detail string) (bool, error) {
	if m.failLog {
		return false, fmt.Errorf("ledger unavailable")
	}
	for _, e := range m.entries {
		if e.rec.ID == rec.ID && e.reason == reason {
			return false, nil
		}
	}
	m.entries = append(m.entries, ledgerEntry{rec: *rec, reason: reason, detail: detail})
	return true, nil
}

func baseRec(source records.SourceFile, batch string) *records.ExamRecord {
	return &records.ExamRecord{
		ID:              uuid.New(),
		SourceFile:      source,
		UploadBatch:     batch,
		ReferencePeriod: "2025-06",
		Company:         "HOSPITAL CENTRAL",
		PatientName:     "PACIENTE TESTE",
		ExamDescription: "RX TORAX",
		Physician:       "DR. SILVA",
		Modality:        "RX",
		Specialty:       "Músculo Esquelético",
		Category:        "GERAL",
		Priority:        records.PriorityRoutine,
		Value:           30,
	}
}

func testEnv(store *memStore, cat *memCatalog, ledger *memLedger) *Env {
	return &Env{
		Records:   store,
		Catalog:   cat,
		Ledger:    ledger,
		ChunkSize: 100,
		Log:       zerolog.Nop(),
	}
}
